package attendance

import (
	"fmt"
	"math"
	"time"

	"github.com/aluiziolira/go-unipa/models"
)

// DefaultLowThreshold is the attendance rate, in percent, below which a
// subject is reported as at risk.
const DefaultLowThreshold = 80.0

const dateLayout = "2006-01-02"

// Result is an extracted attendance record set.
type Result struct {
	Items []models.AttendanceItem

	skipped int
}

// StatusCounts counts items per status. Every status is present, zero or
// not, so the counts always sum to len(Items).
func (r *Result) StatusCounts() map[models.AttendanceStatus]int {
	counts := make(map[models.AttendanceStatus]int, len(models.AttendanceStatuses))
	for _, status := range models.AttendanceStatuses {
		counts[status] = 0
	}
	for _, item := range r.Items {
		if _, ok := counts[item.Status]; ok {
			counts[item.Status]++
		} else {
			counts[models.StatusUnknown]++
		}
	}
	return counts
}

// OverallRate is the percentage of items attended (present, late or early
// leave), rounded to two decimals. It is 0 for an empty set.
func (r *Result) OverallRate() float64 {
	if len(r.Items) == 0 {
		return 0
	}
	attended := 0
	for _, item := range r.Items {
		if item.Status.Attended() {
			attended++
		}
	}
	return rate(attended, len(r.Items))
}

type subjectKey struct {
	subject string
	teacher string
}

// SubjectSummaries rolls items up per subject and teacher, in order of first
// appearance.
func (r *Result) SubjectSummaries() []models.AttendanceSummary {
	index := make(map[subjectKey]int)
	var summaries []models.AttendanceSummary
	for _, item := range r.Items {
		key := subjectKey{subject: item.Subject, teacher: item.Teacher}
		i, ok := index[key]
		if !ok {
			i = len(summaries)
			index[key] = i
			summaries = append(summaries, models.AttendanceSummary{Subject: item.Subject, Teacher: item.Teacher})
		}
		s := &summaries[i]
		s.TotalClasses++
		switch {
		case item.Status == models.StatusPresent:
			s.AttendedClasses++
		case item.Status == models.StatusAbsent:
			s.AbsentClasses++
		case item.Status == models.StatusLate:
			s.LateClasses++
		case item.Status == models.StatusEarlyLeave:
			s.EarlyLeaveClasses++
		case item.Status.Excused():
			s.ExcusedAbsences++
		}
	}
	for i := range summaries {
		s := &summaries[i]
		s.AttendanceRate = rate(s.AttendedClasses+s.LateClasses+s.EarlyLeaveClasses, s.TotalClasses)
	}
	return summaries
}

// LowAttendanceSubjects returns the summaries whose rate is strictly below
// threshold percent.
func (r *Result) LowAttendanceSubjects(threshold float64) []models.AttendanceSummary {
	var out []models.AttendanceSummary
	for _, s := range r.SubjectSummaries() {
		if s.AttendanceRate < threshold {
			out = append(out, s)
		}
	}
	return out
}

// BySubject returns the items for one subject.
func (r *Result) BySubject(subject string) []models.AttendanceItem {
	var out []models.AttendanceItem
	for _, item := range r.Items {
		if item.Subject == subject {
			out = append(out, item)
		}
	}
	return out
}

// ByDateRange returns items dated within [start, end], both YYYY-MM-DD.
// Items whose date cannot be read are left out.
func (r *Result) ByDateRange(start, end string) ([]models.AttendanceItem, error) {
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}

	var out []models.AttendanceItem
	for _, item := range r.Items {
		day, err := time.Parse(dateLayout, item.Date)
		if err != nil {
			continue
		}
		if !day.Before(from) && !day.After(to) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Records returns the items for export.
func (r *Result) Records() []models.Record {
	out := make([]models.Record, len(r.Items))
	for i, item := range r.Items {
		out[i] = item
	}
	return out
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
