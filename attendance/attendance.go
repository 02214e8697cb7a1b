// Package attendance extracts per-class attendance records.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/fixture"
	"github.com/aluiziolira/go-unipa/menu"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/parser"
	"github.com/aluiziolira/go-unipa/session"
)

const (
	StubKey     = "-up-faces-up-po-Poa00701A.jsp"
	FixtureName = "attendance"
)

// TableKeywords identify the attendance table by its header row.
var TableKeywords = []string{"日付", "科目", "出席", "授業", "欠席", "date", "subject", "attend"}

// ErrMenuNotFound is returned when the student menu has no attendance entry.
var ErrMenuNotFound = errors.New("attendance menu entry not found")

// Fetch opens the attendance page and parses it. Replay mode falls back to
// built-in data when no fixture was captured.
func Fetch(ctx context.Context, s *session.Session) (*Result, error) {
	if s.Debug.Stub {
		err := s.SetStubData(StubKey)
		switch {
		case errors.Is(err, fixture.ErrNotExist):
			slog.Warn("attendance fixture not found, using built-in data")
			return StubResult(), nil
		case err != nil:
			return nil, fmt.Errorf("attendance: %w", err)
		}
	} else {
		links, err := menu.StudentMenu(s)
		if err != nil {
			return nil, fmt.Errorf("attendance: %w", err)
		}
		link, ok := findLink(links)
		if !ok {
			return nil, ErrMenuNotFound
		}
		if err := menu.Click(ctx, s, link.Entry(), FixtureName); err != nil {
			return nil, fmt.Errorf("attendance: %w", err)
		}
	}

	result := Parse(s.Document())
	s.Metrics().AddRecords(models.AttendanceItem{}.Kind(), len(result.Items))
	s.Metrics().AddSkipped(models.AttendanceItem{}.Kind(), result.skipped)
	return result, nil
}

func findLink(links []menu.Link) (menu.Link, bool) {
	for _, l := range links {
		if strings.Contains(l.Title, "注意事項") {
			continue
		}
		if strings.Contains(l.Title, "出席") || strings.Contains(l.Title, "出欠") {
			return l, true
		}
	}
	return menu.Link{}, false
}

// Parse maps the attendance table's rows, laid out as date, period,
// subject, teacher, status and an optional note. Rows that are too short or
// lack a date, subject or teacher are skipped.
func Parse(doc *goquery.Document) *Result {
	result := &Result{}
	if doc == nil {
		return result
	}
	table, ok := parser.FindTable(doc.Selection, TableKeywords)
	if !ok {
		slog.Warn("attendance table not found")
		return result
	}

	for i, cells := range parser.Rows(table) {
		if len(cells) < 5 {
			result.skipped++
			continue
		}
		date := parser.Text(cells[0])
		subject := parser.Text(cells[2])
		teacher := parser.Text(cells[3])
		if date == "" || subject == "" || teacher == "" {
			slog.Debug("skipping attendance row", slog.Int("row", i+1))
			result.skipped++
			continue
		}
		period := 0
		if n := parser.ParseInt(parser.Text(cells[1])); n != nil {
			period = *n
		}

		item := models.AttendanceItem{
			Date:    parser.NormalizeDate(date),
			Period:  period,
			Subject: subject,
			Teacher: teacher,
			Status:  parser.NormalizeStatus(parser.Text(cells[4])),
		}
		if len(cells) > 5 {
			item.Note = parser.Text(cells[5])
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// StubResult returns the built-in replay data: two subjects over five weeks.
func StubResult() *Result {
	const (
		programming = "プログラミング基礎１"
		programmer  = "濵砂　幸裕"
		algebra     = "基礎線形代数学１"
		algebraist  = "大谷 雅之"
	)
	dates := []string{"2024-04-08", "2024-04-15", "2024-04-22", "2024-04-29", "2024-05-06"}
	first := []models.AttendanceStatus{models.StatusPresent, models.StatusLate, models.StatusAbsent, models.StatusOfficial, models.StatusPresent}
	second := []models.AttendanceStatus{models.StatusPresent, models.StatusPresent, models.StatusPresent, models.StatusCancelled, models.StatusEarlyLeave}

	items := make([]models.AttendanceItem, 0, len(dates)*2)
	for i, date := range dates {
		items = append(items,
			models.AttendanceItem{Date: date, Period: 1, Subject: programming, Teacher: programmer, Status: first[i]},
			models.AttendanceItem{Date: date, Period: 2, Subject: algebra, Teacher: algebraist, Status: second[i]},
		)
	}
	return &Result{Items: items}
}
