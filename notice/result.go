package notice

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-unipa/models"
)

const (
	dateLayout = "2006-01-02"
	recentSize = 5

	// DefaultDeadlineWindow is the look-ahead, in days, for upcoming
	// deadlines.
	DefaultDeadlineWindow = 7
)

// Result is an extracted notice collection. Read state is the only field
// callers change, through the Mark methods.
type Result struct {
	Items []models.NoticeItem

	skipped int
}

// Summary counts notices and lists the five most recent without reordering
// Items.
func (r *Result) Summary() models.NoticeSummary {
	summary := models.NoticeSummary{
		TotalNotices:   len(r.Items),
		CategoryCounts: make(map[models.NoticeCategory]int, len(models.NoticeCategories)),
	}
	for _, c := range models.NoticeCategories {
		summary.CategoryCounts[c] = 0
	}
	for _, item := range r.Items {
		if !item.IsRead {
			summary.UnreadNotices++
		}
		if item.Priority == models.PriorityHigh {
			summary.HighPriorityNotices++
		}
		summary.CategoryCounts[item.Category]++
	}
	recent := r.SortByDate(false)
	if len(recent) > recentSize {
		recent = recent[:recentSize]
	}
	summary.RecentNotices = recent
	return summary
}

// Filter returns the notices matching every set field of f. Dates compare
// by calendar day; the keyword matches title, content and author without
// regard to case.
func (r *Result) Filter(f models.NoticeFilter) ([]models.NoticeItem, error) {
	var from, to time.Time
	var err error
	if f.DateFrom != "" {
		if from, err = time.Parse(dateLayout, f.DateFrom); err != nil {
			return nil, fmt.Errorf("parse date from: %w", err)
		}
	}
	if f.DateTo != "" {
		if to, err = time.Parse(dateLayout, f.DateTo); err != nil {
			return nil, fmt.Errorf("parse date to: %w", err)
		}
	}
	keyword := strings.ToLower(f.Keyword)

	var out []models.NoticeItem
	for _, item := range r.Items {
		if f.Category != "" && item.Category != f.Category {
			continue
		}
		if f.Priority != "" && item.Priority != f.Priority {
			continue
		}
		if f.DateFrom != "" || f.DateTo != "" {
			day, err := time.Parse(dateLayout, item.Date)
			if err != nil {
				continue
			}
			if f.DateFrom != "" && day.Before(from) {
				continue
			}
			if f.DateTo != "" && day.After(to) {
				continue
			}
		}
		if f.IsRead != nil && item.IsRead != *f.IsRead {
			continue
		}
		if keyword != "" {
			text := strings.ToLower(item.Title + " " + item.Content + " " + item.Author)
			if !strings.Contains(text, keyword) {
				continue
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// ByCategory returns the notices in one category.
func (r *Result) ByCategory(category models.NoticeCategory) []models.NoticeItem {
	return r.where(func(n models.NoticeItem) bool { return n.Category == category })
}

// Unread returns the notices not yet marked read.
func (r *Result) Unread() []models.NoticeItem {
	return r.where(func(n models.NoticeItem) bool { return !n.IsRead })
}

// HighPriority returns the high-priority notices.
func (r *Result) HighPriority() []models.NoticeItem {
	return r.where(func(n models.NoticeItem) bool { return n.Priority == models.PriorityHigh })
}

// WithDeadline returns the notices carrying a deadline.
func (r *Result) WithDeadline() []models.NoticeItem {
	return r.where(func(n models.NoticeItem) bool { return n.Deadline != "" })
}

// UpcomingDeadlines returns notices whose deadline falls between the day of
// now and days later, inclusive.
func (r *Result) UpcomingDeadlines(now time.Time, days int) []models.NoticeItem {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	until := today.AddDate(0, 0, days)
	return r.where(func(n models.NoticeItem) bool {
		if n.Deadline == "" {
			return false
		}
		deadline, err := time.Parse(dateLayout, n.Deadline)
		if err != nil {
			return false
		}
		return !deadline.Before(today) && !deadline.After(until)
	})
}

// SortByDate returns a copy of Items ordered by date, newest first unless
// ascending is set. Unreadable dates sort as the oldest.
func (r *Result) SortByDate(ascending bool) []models.NoticeItem {
	out := r.copyItems()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := parseDate(out[i].Date), parseDate(out[j].Date)
		if ascending {
			return a.Before(b)
		}
		return a.After(b)
	})
	return out
}

// SortByPriority returns a copy of Items ordered high, normal, low.
func (r *Result) SortByPriority() []models.NoticeItem {
	out := r.copyItems()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

// MarkAsRead flags the notice with id as read and reports whether it exists.
func (r *Result) MarkAsRead(id string) bool {
	for i := range r.Items {
		if r.Items[i].ID == id {
			r.Items[i].IsRead = true
			return true
		}
	}
	return false
}

// MarkMultipleAsRead flags every listed notice as read.
func (r *Result) MarkMultipleAsRead(ids ...string) {
	for _, id := range ids {
		r.MarkAsRead(id)
	}
}

// MarkAllAsRead flags every notice as read.
func (r *Result) MarkAllAsRead() {
	for i := range r.Items {
		r.Items[i].IsRead = true
	}
}

// Records returns the notices for export.
func (r *Result) Records() []models.Record {
	out := make([]models.Record, len(r.Items))
	for i, item := range r.Items {
		out[i] = item
	}
	return out
}

func (r *Result) where(keep func(models.NoticeItem) bool) []models.NoticeItem {
	var out []models.NoticeItem
	for _, item := range r.Items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func (r *Result) copyItems() []models.NoticeItem {
	out := make([]models.NoticeItem, len(r.Items))
	copy(out, r.Items)
	return out
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
