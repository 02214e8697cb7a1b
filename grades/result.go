package grades

import "github.com/aluiziolira/go-unipa/models"

// gradePoints maps grade names to GPA points.
var gradePoints = map[string]float64{
	"秀":  4,
	"優":  3,
	"良":  2,
	"可":  1,
	"不可": 0,
	"不受": 0,
}

func failing(grade string) bool {
	return grade == "不可" || grade == "不受"
}

// Result is an extracted grade report.
type Result struct {
	Student models.StudentInfo
	Grades  []models.GradeItem
	Credits []models.CreditSummary
}

// ByPeriod returns the grades of one academic year and term.
func (r *Result) ByPeriod(year int, semester string) []models.GradeItem {
	return r.filter(func(g models.GradeItem) bool {
		return g.Year == year && g.Semester == semester
	})
}

// ByCategory returns the grades under a top-level category.
func (r *Result) ByCategory(category string) []models.GradeItem {
	return r.filter(func(g models.GradeItem) bool {
		return g.Category == category
	})
}

// Passed returns graded courses with credits that were not failed.
func (r *Result) Passed() []models.GradeItem {
	return r.filter(func(g models.GradeItem) bool {
		return g.Grade != "" && !failing(g.Grade) && g.Credits != nil && *g.Credits != 0
	})
}

// Failed returns courses graded 不可 or 不受.
func (r *Result) Failed() []models.GradeItem {
	return r.filter(func(g models.GradeItem) bool {
		return failing(g.Grade)
	})
}

// GPA is the credit-weighted mean grade point over courses with a known
// grade and credits. It is 0 when no course qualifies.
func (r *Result) GPA() float64 {
	var points, credits float64
	for _, g := range r.Grades {
		p, ok := gradePoints[g.Grade]
		if !ok || g.Credits == nil || *g.Credits == 0 {
			continue
		}
		points += p * *g.Credits
		credits += *g.Credits
	}
	if credits == 0 {
		return 0
	}
	return points / credits
}

// TotalEarnedCredits sums the credits of passed courses.
func (r *Result) TotalEarnedCredits() float64 {
	var total float64
	for _, g := range r.Passed() {
		total += *g.Credits
	}
	return total
}

// Records returns grades followed by credit summaries for export.
func (r *Result) Records() []models.Record {
	out := make([]models.Record, 0, len(r.Grades)+len(r.Credits))
	for _, g := range r.Grades {
		out = append(out, g)
	}
	for _, c := range r.Credits {
		out = append(out, c)
	}
	return out
}

func (r *Result) filter(keep func(models.GradeItem) bool) []models.GradeItem {
	var out []models.GradeItem
	for _, g := range r.Grades {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}
