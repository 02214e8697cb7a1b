// Package grades extracts the grade report and credit summaries.
package grades

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/menu"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/parser"
	"github.com/aluiziolira/go-unipa/session"
)

const (
	MenuGroup = "成績・履修登録"
	MenuTitle = "成績照会"
	// FixtureName tells the grades page apart from other pages served by
	// the same URL.
	FixtureName = "grades"
	StubKey     = "-up-faces-up-xu-Xuk00301A.jspgrades"

	// indentUnit is the spacer width, in pixels, of one hierarchy level.
	indentUnit = 8
)

// ErrSettingsFormNotFound is returned when the grades page has no display
// settings form.
var ErrSettingsFormNotFound = errors.New("grades settings form not found")

var semesterTitle = regexp.MustCompile(`(\d{4})年度(前期|後期)`)

// Fetch opens the grade report, switches it to term-grouped display with
// grade names and raw scores, and parses it.
func Fetch(ctx context.Context, s *session.Session) (*Result, error) {
	if s.Debug.Stub {
		if err := s.SetStubData(StubKey); err != nil {
			return nil, fmt.Errorf("grades: %w", err)
		}
	} else {
		if err := menu.Navigate(ctx, s, MenuGroup, MenuTitle, FixtureName); err != nil {
			return nil, fmt.Errorf("grades: %w", err)
		}
		if err := postSettings(ctx, s); err != nil {
			return nil, fmt.Errorf("grades: %w", err)
		}
	}

	result, err := Parse(s.Document())
	if err != nil {
		return nil, fmt.Errorf("grades: %w", err)
	}
	s.Metrics().AddRecords(models.GradeItem{}.Kind(), len(result.Grades))
	s.Metrics().AddRecords(models.CreditSummary{}.Kind(), len(result.Credits))
	return result, nil
}

func postSettings(ctx context.Context, s *session.Session) error {
	doc := s.Document()
	if doc == nil {
		return session.ErrNoDocument
	}
	form := doc.Find("[id='form1']").First()
	if form.Length() == 0 {
		return ErrSettingsFormNotFound
	}
	token := s.Token()
	if token == "" {
		return session.ErrNoToken
	}

	params := url.Values{}
	params.Set("form1:viewhidden", "表示")
	params.Set("form1:htmlDispPtn", "gakki")
	params.Set("form1:htmlChkHyoka", "on")
	params.Set("form1:htmlChkSoten", "on")
	params.Set("form1:htmlChkHugoukakuKamoku", "on")
	params.Set("form1:htmlChkRisyuuCyuuKamoku", "on")
	params.Set("form1:htmlChkTaniSyutoku", "on")
	params.Set("form1:htmlChkMediaJugyo", "on")
	params.Set("form1:htmlHidnErr", "")
	params.Set("form1:htmlHidnPtn", "gakki")
	params.Set("form1:htmlHidnMediaJugyo", "0")
	params.Set("form1:htmlHidnHyoka", "0")
	params.Set("form1:htmlHidnSoten", "0")
	params.Set("form1:htmlHidnSyusseki", "1")
	params.Set("form1:htmlHidnHugoukakuKamoku", "0")
	params.Set("form1:htmlHidnRisyuuCyuuKamoku", "0")
	params.Set("form1:htmlHidnGpa", "1")
	params.Set("form1:htmlHidnTaniSyutoku", "0")
	params.Set(session.TokenField, token)
	params.Set("form1", "form1")

	page, err := s.Fetch(ctx, form.AttrOr("action", ""), params, session.FetchOptions{
		Method: http.MethodPost,
		Name:   FixtureName,
	})
	if err != nil {
		return err
	}
	if page.State != session.StateSuccess {
		return &session.StateError{Op: "apply grades settings", State: page.State}
	}
	s.SetDocument(page.Doc)
	return nil
}

// Parse reads the student header, every term table and the credit summary
// tables of doc.
func Parse(doc *goquery.Document) (*Result, error) {
	if doc == nil {
		return nil, session.ErrNoDocument
	}
	return &Result{
		Student: parseStudent(doc),
		Grades:  parseGrades(doc),
		Credits: parseCredits(doc),
	}, nil
}

func parseStudent(doc *goquery.Document) models.StudentInfo {
	byID := func(id string) string {
		return parser.Text(doc.Find("[id='" + id + "']").First())
	}
	return models.StudentInfo{
		Department: byID("form1:propShozokuGakkaRenketsuName"),
		Year:       byID("form1:htmlGakunen"),
		Semester:   byID("form1:htmlSemester"),
	}
}

// parseGrades pairs each term title with the table at the same index.
func parseGrades(doc *goquery.Document) []models.GradeItem {
	var (
		grades   []models.GradeItem
		year     int
		semester string
	)
	tables := doc.Find(".singleTableLine")

	doc.Find(".kamokuTitle .subTitleArea .left").Each(func(i int, title *goquery.Selection) {
		if m := semesterTitle.FindStringSubmatch(parser.Text(title)); m != nil {
			year, _ = strconv.Atoi(m[1])
			semester = m[2]
		}
		if i >= tables.Length() {
			return
		}

		var stack []string
		tables.Eq(i).Find("tr").Each(func(row int, tr *goquery.Selection) {
			if row == 0 {
				return
			}
			kamoku := tr.Find(".kamokuList").First()
			if kamoku.Length() == 0 {
				return
			}
			subject := parser.Text(kamoku.Find(".tdKamokuList").First())
			if subject == "" {
				return
			}

			indent := 0
			if width := parser.ParseInt(kamoku.Find(".tdBlankList").First().AttrOr("width", "0")); width != nil {
				indent = *width / indentUnit
			}
			switch {
			case indent == 0:
				stack = []string{subject}
			case indent <= len(stack):
				stack = append(stack[:indent], subject)
			default:
				stack = append(stack, subject)
			}

			credits := parser.Text(tr.Find(".tdTaniList").First())
			grade := parser.Text(tr.Find(".tdHyokaList").First())
			score := parser.Text(tr.Find(".tdSotenList").First())
			if credits == "" && grade == "" && score == "" {
				return
			}

			grades = append(grades, models.GradeItem{
				Year:           year,
				Semester:       semester,
				Category:       level(stack, 0),
				Subcategory:    level(stack, 1),
				Subsubcategory: level(stack, 2),
				Subject:        subject,
				ClassType:      parser.Text(tr.Find(".tdJugyoSbtList").First()),
				Credits:        parser.ParseFloat(credits),
				Grade:          grade,
				Score:          parser.ParseInt(score),
				Teacher:        parser.Text(tr.Find(".tdKyoshokuinNameList").First()),
				Indent:         indent,
			})
		})
	})
	return grades
}

func level(stack []string, i int) string {
	if i < len(stack) {
		return stack[i]
	}
	return ""
}

// parseCredits reads the full-width summary tables. The first row names the
// categories and the second-to-last row holds "earned (media)" cells.
func parseCredits(doc *goquery.Document) []models.CreditSummary {
	var summaries []models.CreditSummary
	doc.Find(`table.singleTableLine[width="100%"]`).Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		earnedCells := rows.Eq(rows.Length() - 2).Find("td")

		rows.First().Find("td").Each(func(i int, header *goquery.Selection) {
			category := parser.Text(header)
			if i == 0 || category == "" || i >= earnedCells.Length() {
				return
			}
			earned, media, ok := parser.ParseCreditPair(parser.Text(earnedCells.Eq(i)))
			if !ok {
				return
			}
			summaries = append(summaries, models.CreditSummary{
				Category:      category,
				EarnedCredits: earned,
				MediaCredits:  media,
				TotalCredits:  earned,
			})
		})
	})
	return summaries
}
