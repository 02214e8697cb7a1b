// Package timetable extracts the weekly class grid.
package timetable

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/menu"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/parser"
	"github.com/aluiziolira/go-unipa/session"
)

const (
	MenuGroup = "時間割・授業"
	MenuTitle = "学生時間割表"
	// StubKey is the fixture replayed in stub mode.
	StubKey = "-up-faces-up-po-Poa00601A.jsp"

	Days    = 6
	Periods = 7
)

// Result is the extracted grid, ordered by day then period.
type Result struct {
	Items []models.TimetableItem
}

// ByDay returns the classes held on day (0 = Monday).
func (r *Result) ByDay(day int) []models.TimetableItem {
	var out []models.TimetableItem
	for _, item := range r.Items {
		if item.Day == day {
			out = append(out, item)
		}
	}
	return out
}

// At returns the class in the given slot.
func (r *Result) At(day, period int) (models.TimetableItem, bool) {
	for _, item := range r.Items {
		if item.Day == day && item.Period == period {
			return item, true
		}
	}
	return models.TimetableItem{}, false
}

// Subjects lists distinct subject names in grid order.
func (r *Result) Subjects() []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range r.Items {
		if !seen[item.Subject] {
			seen[item.Subject] = true
			out = append(out, item.Subject)
		}
	}
	return out
}

func (r *Result) Records() []models.Record {
	out := make([]models.Record, len(r.Items))
	for i, item := range r.Items {
		out[i] = item
	}
	return out
}

// Fetch loads the timetable page and parses it. The session must be logged
// in when not replaying.
func Fetch(ctx context.Context, s *session.Session) (*Result, error) {
	if s.Debug.Stub {
		if err := s.SetStubData(StubKey); err != nil {
			return nil, fmt.Errorf("timetable: %w", err)
		}
	} else if err := menu.Navigate(ctx, s, MenuGroup, MenuTitle, ""); err != nil {
		return nil, fmt.Errorf("timetable: %w", err)
	}

	result := Parse(s.Document())
	s.Metrics().AddRecords(models.TimetableItem{}.Kind(), len(result.Items))
	return result, nil
}

// Parse reads the grid cells form1:calendarList:{day}:rowVal0{n}, where n-1
// is the period.
func Parse(doc *goquery.Document) *Result {
	result := &Result{}
	if doc == nil {
		return result
	}
	for day := 0; day < Days; day++ {
		for n := 1; n <= Periods; n++ {
			cell := doc.Find(fmt.Sprintf("[id='form1:calendarList:%d:rowVal0%d']", day, n)).First()
			if cell.Length() == 0 {
				continue
			}
			item, ok := parseCell(cell)
			if !ok {
				continue
			}
			item.Day = day
			item.Period = n - 1
			result.Items = append(result.Items, item)
		}
	}
	return result
}

// parseCell splits a cell laid out as " subject class teacher room".
func parseCell(cell *goquery.Selection) (models.TimetableItem, bool) {
	fields := strings.Split(strings.Replace(cell.Text(), "\n", "", 1), " ")
	field := func(i int) string {
		if i < len(fields) {
			return parser.Clean(fields[i])
		}
		return ""
	}
	subject := field(1)
	if subject == "" {
		slog.Debug("skipping empty timetable cell")
		return models.TimetableItem{}, false
	}

	return models.TimetableItem{
		Subject:  subject,
		Class:    strings.Replace(field(2), " ", "", 1),
		Teacher:  field(3),
		Room:     field(4),
		Syllabus: parseSyllabus(cell.Find("a").First().AttrOr("href", "")),
	}, true
}

// parseSyllabus reads year and id from a link such as
// "javascript:openSyllabus('2024','ABC123')".
func parseSyllabus(href string) models.Syllabus {
	parts := strings.Split(href, "'")
	var syllabus models.Syllabus
	if len(parts) > 1 {
		syllabus.Year = parts[1]
	}
	if len(parts) > 3 {
		syllabus.ID = parts[3]
	}
	return syllabus
}
