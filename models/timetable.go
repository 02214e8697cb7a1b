package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Syllabus locates a course's syllabus page.
type Syllabus struct {
	Year string `json:"year"`
	ID   string `json:"id"`
}

// TimetableItem is one occupied cell of the weekly grid.
type TimetableItem struct {
	Day      int      `json:"day"` // 0 = Monday
	Period   int      `json:"period"`
	Subject  string   `json:"subject"`
	Class    string   `json:"class,omitempty"`
	Teacher  string   `json:"teacher,omitempty"`
	Room     string   `json:"room,omitempty"`
	Syllabus Syllabus `json:"syllabus"`
}

func (t TimetableItem) Kind() string { return "timetable" }

func (t TimetableItem) Key() string {
	return fmt.Sprintf("%d:%d", t.Day, t.Period)
}

func (t TimetableItem) Columns() []string {
	return []string{"day", "period", "subject", "class", "teacher", "room", "syllabus_year", "syllabus_id"}
}

func (t TimetableItem) Values() []string {
	return []string{
		strconv.Itoa(t.Day),
		strconv.Itoa(t.Period),
		t.Subject,
		t.Class,
		t.Teacher,
		t.Room,
		t.Syllabus.Year,
		t.Syllabus.ID,
	}
}

func (t TimetableItem) Validate() error {
	if strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("timetable item %s missing subject", t.Key())
	}
	if t.Day < 0 || t.Day > 5 {
		return fmt.Errorf("timetable item %s has day out of range", t.Key())
	}
	return nil
}
