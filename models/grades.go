package models

import (
	"fmt"
	"strconv"
	"strings"
)

// GradeItem is one graded course row. Credits and Score are nil when the
// portal left the cell blank.
type GradeItem struct {
	Year           int      `json:"year"`
	Semester       string   `json:"semester"` // 前期 or 後期
	Category       string   `json:"category"`
	Subcategory    string   `json:"subcategory,omitempty"`
	Subsubcategory string   `json:"subsubcategory,omitempty"`
	Subject        string   `json:"subject"`
	ClassType      string   `json:"class_type,omitempty"`
	Credits        *float64 `json:"credits,omitempty"`
	Grade          string   `json:"grade,omitempty"`
	Score          *int     `json:"score,omitempty"`
	Teacher        string   `json:"teacher,omitempty"`
	Indent         int      `json:"indent"`
}

func (g GradeItem) Kind() string { return "grades" }

func (g GradeItem) Key() string {
	return fmt.Sprintf("%d/%s/%s/%s", g.Year, g.Semester, g.Category, g.Subject)
}

func (g GradeItem) Columns() []string {
	return []string{"year", "semester", "category", "subcategory", "subsubcategory", "subject", "class_type", "credits", "grade", "score", "teacher", "indent"}
}

func (g GradeItem) Values() []string {
	return []string{
		strconv.Itoa(g.Year),
		g.Semester,
		g.Category,
		g.Subcategory,
		g.Subsubcategory,
		g.Subject,
		g.ClassType,
		formatOptionalFloat(g.Credits),
		g.Grade,
		formatOptionalInt(g.Score),
		g.Teacher,
		strconv.Itoa(g.Indent),
	}
}

func (g GradeItem) Validate() error {
	if strings.TrimSpace(g.Subject) == "" {
		return fmt.Errorf("grade item missing subject")
	}
	if g.Credits == nil && g.Grade == "" && g.Score == nil {
		return fmt.Errorf("grade item %s has no credits, grade or score", g.Subject)
	}
	return nil
}

// CreditSummary is one category column of the credit-earned tables.
type CreditSummary struct {
	Category      string  `json:"category"`
	Subcategory   string  `json:"subcategory,omitempty"`
	EarnedCredits float64 `json:"earned_credits"`
	MediaCredits  float64 `json:"media_credits"`
	TotalCredits  float64 `json:"total_credits"`
}

func (c CreditSummary) Kind() string { return "credits" }

func (c CreditSummary) Key() string {
	return c.Category + "/" + c.Subcategory
}

func (c CreditSummary) Columns() []string {
	return []string{"category", "subcategory", "earned_credits", "media_credits", "total_credits"}
}

func (c CreditSummary) Values() []string {
	return []string{
		c.Category,
		c.Subcategory,
		strconv.FormatFloat(c.EarnedCredits, 'f', -1, 64),
		strconv.FormatFloat(c.MediaCredits, 'f', -1, 64),
		strconv.FormatFloat(c.TotalCredits, 'f', -1, 64),
	}
}

func (c CreditSummary) Validate() error {
	if strings.TrimSpace(c.Category) == "" {
		return fmt.Errorf("credit summary missing category")
	}
	return nil
}

// StudentInfo is the header block of the grades page.
type StudentInfo struct {
	Department string `json:"department"`
	Year       string `json:"year"`
	Semester   string `json:"semester,omitempty"`
}
