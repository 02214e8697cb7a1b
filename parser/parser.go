// Package parser holds the extraction helpers shared by the page extractors.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/models"
)

var (
	datePattern   = regexp.MustCompile(`(\d{4})[/\-年](\d{1,2})[/\-月](\d{1,2})`)
	creditPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[(（](\d+(?:\.\d+)?)[)）]`)
)

// ValidateRecord ensures an extractor produced a usable record.
func ValidateRecord(r models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	return r.Validate()
}

// Text returns the trimmed text content of sel.
func Text(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

// Clean removes line breaks, turns ideographic spaces into ASCII spaces and
// drops the first pair of full-width parentheses and lenticular brackets.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\n", "")
	text = strings.ReplaceAll(text, "　", " ")
	for _, mark := range []string{"（", "）", "【", "】"} {
		text = strings.Replace(text, mark, "", 1)
	}
	return text
}

// NormalizeDate rewrites YYYY/MM/DD, YYYY-MM-DD and YYYY年MM月DD forms as
// YYYY-MM-DD. Anything else is returned unchanged.
func NormalizeDate(text string) string {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
}

var statusAliases = map[string]models.AttendanceStatus{
	"出席": models.StatusPresent,
	"○":  models.StatusPresent,
	"△":  models.StatusLate,
	"遅刻": models.StatusLate,
	"×":  models.StatusAbsent,
	"欠席": models.StatusAbsent,
	"早退": models.StatusEarlyLeave,
	"公欠": models.StatusOfficial,
	"忌引": models.StatusBereavement,
	"病欠": models.StatusSick,
	"補講": models.StatusMakeup,
	"休講": models.StatusCancelled,
	"-":  models.StatusUnknown,
	"":   models.StatusUnknown,
}

// NormalizeStatus maps a status cell to its canonical status. Unrecognised
// text maps to StatusUnknown.
func NormalizeStatus(text string) models.AttendanceStatus {
	if status, ok := statusAliases[strings.TrimSpace(text)]; ok {
		return status
	}
	return models.StatusUnknown
}

var categoryRules = []struct {
	category models.NoticeCategory
	keywords []string
}{
	{models.CategoryImportant, []string{"重要", "緊急"}},
	{models.CategoryClerical, []string{"事務", "手続き"}},
	{models.CategoryStudent, []string{"学生", "生活"}},
	{models.CategoryAcademic, []string{"教務", "試験", "授業"}},
	{models.CategoryCareer, []string{"就活", "就職", "キャリア"}},
	{models.CategoryGeneral, []string{"一般", "お知らせ"}},
}

// NormalizeCategory infers a notice category from its label. Rules are
// checked in order and the first hit wins.
func NormalizeCategory(text string) models.NoticeCategory {
	text = strings.TrimSpace(text)
	for _, rule := range categoryRules {
		if ContainsAny(text, rule.keywords) {
			return rule.category
		}
	}
	return models.CategoryOther
}

// DeterminePriority derives a notice priority from its category and title.
func DeterminePriority(title string, category models.NoticeCategory) models.NoticePriority {
	if category == models.CategoryImportant || ContainsAny(title, []string{"重要", "緊急", "至急"}) {
		return models.PriorityHigh
	}
	if category == models.CategoryAcademic || category == models.CategoryCareer ||
		ContainsAny(title, []string{"試験", "期限", "締切"}) {
		return models.PriorityNormal
	}
	return models.PriorityLow
}

// ContainsAny reports whether text contains any of keywords.
func ContainsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// FindTable picks the first table whose first row mentions one of keywords,
// compared case-insensitively. Without a match it falls back to the table
// with the most rows. ok is false when the document has no tables.
func FindTable(root *goquery.Selection, keywords []string) (table *goquery.Selection, ok bool) {
	tables := root.Find("table")
	if tables.Length() == 0 {
		return nil, false
	}

	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}

	var match *goquery.Selection
	tables.EachWithBreak(func(_ int, t *goquery.Selection) bool {
		header := t.Find("tr").First()
		if header.Length() == 0 {
			return true
		}
		if ContainsAny(strings.ToLower(Text(header)), lowered) {
			match = t
			return false
		}
		return true
	})
	if match != nil {
		return match, true
	}

	maxRows := 0
	tables.Each(func(_ int, t *goquery.Selection) {
		if rows := t.Find("tr").Length(); rows > maxRows {
			maxRows = rows
			match = t
		}
	})
	if match == nil {
		return nil, false
	}
	return match, true
}

// Rows returns the cells of every row after the header.
func Rows(table *goquery.Selection) [][]*goquery.Selection {
	var rows [][]*goquery.Selection
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		var cells []*goquery.Selection
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cell)
		})
		rows = append(rows, cells)
	})
	return rows
}

// ParseCreditPair reads an "earned (media)" cell such as "12.0 (2.0)".
func ParseCreditPair(text string) (earned, media float64, ok bool) {
	m := creditPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	earned, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	media, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return earned, media, true
}

// ParseFloat returns a pointer to the leading number in text, or nil.
func ParseFloat(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(leadingNumber(text), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseInt returns a pointer to the leading integer in text, or nil.
func ParseInt(text string) *int {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	num := leadingNumber(text)
	if dot := strings.IndexByte(num, '.'); dot >= 0 {
		num = num[:dot]
	}
	v, err := strconv.Atoi(num)
	if err != nil {
		return nil
	}
	return &v
}

func leadingNumber(text string) string {
	end := 0
	for end < len(text) {
		c := text[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	return text[:end]
}
