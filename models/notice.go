package models

import (
	"fmt"
	"strconv"
	"strings"
)

// NoticeCategory classifies a bulletin board entry.
type NoticeCategory string

const (
	CategoryImportant NoticeCategory = "重要"
	CategoryGeneral   NoticeCategory = "一般"
	CategoryClerical  NoticeCategory = "事務"
	CategoryStudent   NoticeCategory = "学生"
	CategoryAcademic  NoticeCategory = "教務"
	CategoryCareer    NoticeCategory = "就活"
	CategoryOther     NoticeCategory = "その他"
)

// NoticeCategories lists every category in display order.
var NoticeCategories = []NoticeCategory{
	CategoryImportant,
	CategoryGeneral,
	CategoryClerical,
	CategoryStudent,
	CategoryAcademic,
	CategoryCareer,
	CategoryOther,
}

// NoticePriority orders notices by urgency.
type NoticePriority string

const (
	PriorityHigh   NoticePriority = "high"
	PriorityNormal NoticePriority = "normal"
	PriorityLow    NoticePriority = "low"
)

// Rank is 3 for high, 2 for normal, 1 for low and 0 otherwise.
func (p NoticePriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// NoticeItem is one bulletin board entry. IsRead is the only field a consumer
// is expected to change after extraction.
type NoticeItem struct {
	ID             string         `json:"id,omitempty"`
	Title          string         `json:"title"`
	Content        string         `json:"content,omitempty"`
	Category       NoticeCategory `json:"category"`
	Priority       NoticePriority `json:"priority"`
	Date           string         `json:"date"`
	Author         string         `json:"author,omitempty"`
	Department     string         `json:"department,omitempty"`
	URL            string         `json:"url,omitempty"`
	IsRead         bool           `json:"is_read"`
	Attachments    []string       `json:"attachments,omitempty"`
	Deadline       string         `json:"deadline,omitempty"`
	TargetAudience []string       `json:"target_audience,omitempty"`
}

func (n NoticeItem) Kind() string { return "notice" }

func (n NoticeItem) Key() string {
	if n.ID != "" {
		return n.ID
	}
	return n.Date + "/" + n.Title
}

func (n NoticeItem) Columns() []string {
	return []string{"id", "title", "category", "priority", "date", "author", "department", "is_read", "deadline", "content"}
}

func (n NoticeItem) Values() []string {
	return []string{
		n.ID,
		n.Title,
		string(n.Category),
		string(n.Priority),
		n.Date,
		n.Author,
		n.Department,
		strconv.FormatBool(n.IsRead),
		n.Deadline,
		n.Content,
	}
}

func (n NoticeItem) Validate() error {
	if strings.TrimSpace(n.Title) == "" || strings.TrimSpace(n.Date) == "" {
		return fmt.Errorf("notice %s missing title or date", n.Key())
	}
	return nil
}

// NoticeFilter selects notices. Zero-valued fields do not filter.
type NoticeFilter struct {
	Category NoticeCategory
	Priority NoticePriority
	DateFrom string
	DateTo   string
	IsRead   *bool
	Keyword  string
}

// NoticeSummary aggregates a notice collection.
type NoticeSummary struct {
	TotalNotices        int                    `json:"total_notices"`
	UnreadNotices       int                    `json:"unread_notices"`
	HighPriorityNotices int                    `json:"high_priority_notices"`
	CategoryCounts      map[NoticeCategory]int `json:"category_counts"`
	RecentNotices       []NoticeItem           `json:"recent_notices"`
}
