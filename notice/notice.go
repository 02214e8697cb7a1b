// Package notice extracts bulletin board notices.
package notice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/fixture"
	"github.com/aluiziolira/go-unipa/menu"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/parser"
	"github.com/aluiziolira/go-unipa/session"
)

const (
	StubKey     = "-up-faces-up-po-notice.jsp"
	FixtureName = "notice"
)

// TableKeywords identify the notice table by its header row.
var TableKeywords = []string{"タイトル", "件名", "掲示", "日付", "お知らせ", "通知", "title", "notice", "bulletin"}

// MenuKeywords select the notice entry of the student menu.
var MenuKeywords = []string{"掲示", "お知らせ", "通知", "案内", "bulletin", "notice", "information"}

// ErrMenuNotFound is returned when the student menu has no notice entry.
var ErrMenuNotFound = errors.New("notice menu entry not found")

// Fetch opens the bulletin board and parses it. Replay mode falls back to
// built-in data when the fixture is missing or holds no table.
func Fetch(ctx context.Context, s *session.Session) (*Result, error) {
	if s.Debug.Stub {
		err := s.SetStubData(StubKey)
		switch {
		case errors.Is(err, fixture.ErrNotExist):
			slog.Warn("notice fixture not found, using built-in data")
			return StubResult(), nil
		case err != nil:
			return nil, fmt.Errorf("notice: %w", err)
		case s.Document().Find("table").Length() == 0:
			slog.Warn("notice fixture has no table, using built-in data")
			return StubResult(), nil
		}
	} else {
		links, err := menu.StudentMenu(s)
		if err != nil {
			return nil, fmt.Errorf("notice: %w", err)
		}
		link, ok := menu.FindLink(links, MenuKeywords...)
		if !ok {
			return nil, ErrMenuNotFound
		}
		if err := menu.Click(ctx, s, link.Entry(), FixtureName); err != nil {
			return nil, fmt.Errorf("notice: %w", err)
		}
	}

	result := Parse(s.Document())
	s.Metrics().AddRecords(models.NoticeItem{}.Kind(), len(result.Items))
	s.Metrics().AddSkipped(models.NoticeItem{}.Kind(), result.skipped)
	return result, nil
}

// Parse maps the notice table's rows, laid out as title, category, date and
// optional author and content. Rows without a title or date are skipped.
func Parse(doc *goquery.Document) *Result {
	result := &Result{}
	if doc == nil {
		return result
	}
	table, ok := parser.FindTable(doc.Selection, TableKeywords)
	if !ok {
		slog.Warn("notice table not found")
		return result
	}

	for i, cells := range parser.Rows(table) {
		if len(cells) < 3 {
			result.skipped++
			continue
		}
		title := parser.Text(cells[0])
		date := parser.NormalizeDate(parser.Text(cells[2]))
		if title == "" || date == "" {
			result.skipped++
			continue
		}
		category := parser.NormalizeCategory(parser.Text(cells[1]))

		item := models.NoticeItem{
			ID:       fmt.Sprintf("notice_%d", i+1),
			Title:    title,
			Category: category,
			Priority: parser.DeterminePriority(title, category),
			Date:     date,
		}
		if len(cells) > 3 {
			item.Author = parser.Text(cells[3])
		}
		if len(cells) > 4 {
			item.Content = parser.Text(cells[4])
		}
		if href, ok := cells[0].Find("a").First().Attr("href"); ok {
			item.URL = href
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// StubResult returns the built-in replay data.
func StubResult() *Result {
	return &Result{Items: []models.NoticeItem{
		{
			ID:         "1",
			Title:      "【重要】システムメンテナンスのお知らせ",
			Content:    "2024年7月15日(月) 2:00～6:00の間、システムメンテナンスを実施いたします。",
			Category:   models.CategoryImportant,
			Priority:   models.PriorityHigh,
			Date:       "2024-07-10",
			Author:     "システム管理部",
			Department: "情報システム課",
			Deadline:   "2024-07-15",
		},
		{
			ID:         "2",
			Title:      "夏季休暇期間中の図書館利用について",
			Content:    "夏季休暇期間中の図書館利用時間が変更となります。詳細は図書館ホームページをご確認ください。",
			Category:   models.CategoryStudent,
			Priority:   models.PriorityNormal,
			Date:       "2024-07-08",
			Author:     "図書館",
			Department: "図書館",
			IsRead:     true,
		},
		{
			ID:         "3",
			Title:      "就活セミナーのご案内",
			Content:    "2024年度就職活動支援セミナーを開催いたします。参加希望者は期日までにお申し込みください。",
			Category:   models.CategoryCareer,
			Priority:   models.PriorityNormal,
			Date:       "2024-07-05",
			Author:     "キャリアセンター",
			Department: "キャリアセンター",
			Deadline:   "2024-07-20",
		},
		{
			ID:         "4",
			Title:      "【緊急】台風接近に伴う休講措置について",
			Content:    "台風の接近に伴い、本日午後の授業を休講といたします。",
			Category:   models.CategoryImportant,
			Priority:   models.PriorityHigh,
			Date:       "2024-07-03",
			Author:     "教務課",
			Department: "教務課",
			IsRead:     true,
		},
		{
			ID:         "5",
			Title:      "学生証再発行手続きについて",
			Content:    "学生証の再発行手続きに関するご案内です。",
			Category:   models.CategoryClerical,
			Priority:   models.PriorityLow,
			Date:       "2024-07-01",
			Author:     "学生課",
			Department: "学生課",
			IsRead:     true,
		},
		{
			ID:         "6",
			Title:      "前期試験時間割発表",
			Content:    "前期末試験の時間割を発表いたします。各自確認をお願いします。",
			Category:   models.CategoryAcademic,
			Priority:   models.PriorityHigh,
			Date:       "2024-06-28",
			Author:     "教務課",
			Department: "教務課",
		},
		{
			ID:         "7",
			Title:      "サークル活動における注意事項",
			Content:    "サークル活動を行う際の注意事項について連絡いたします。",
			Category:   models.CategoryStudent,
			Priority:   models.PriorityNormal,
			Date:       "2024-06-25",
			Author:     "学生課",
			Department: "学生課",
			IsRead:     true,
		},
		{
			ID:         "8",
			Title:      "学食メニュー変更のお知らせ",
			Content:    "来月より学食のメニューが一部変更となります。",
			Category:   models.CategoryGeneral,
			Priority:   models.PriorityLow,
			Date:       "2024-06-20",
			Author:     "生協",
			Department: "生協",
			IsRead:     true,
		},
	}}
}
