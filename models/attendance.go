package models

import (
	"fmt"
	"strconv"
	"strings"
)

// AttendanceStatus is one of the ten statuses the portal reports.
type AttendanceStatus string

const (
	StatusPresent     AttendanceStatus = "出席"
	StatusAbsent      AttendanceStatus = "欠席"
	StatusLate        AttendanceStatus = "遅刻"
	StatusEarlyLeave  AttendanceStatus = "早退"
	StatusOfficial    AttendanceStatus = "公欠"
	StatusBereavement AttendanceStatus = "忌引"
	StatusSick        AttendanceStatus = "病欠"
	StatusMakeup      AttendanceStatus = "補講"
	StatusCancelled   AttendanceStatus = "休講"
	StatusUnknown     AttendanceStatus = "-"
)

// AttendanceStatuses lists every status in display order.
var AttendanceStatuses = []AttendanceStatus{
	StatusPresent,
	StatusAbsent,
	StatusLate,
	StatusEarlyLeave,
	StatusOfficial,
	StatusBereavement,
	StatusSick,
	StatusMakeup,
	StatusCancelled,
	StatusUnknown,
}

// Attended reports whether the status counts toward the attendance rate.
func (s AttendanceStatus) Attended() bool {
	return s == StatusPresent || s == StatusLate || s == StatusEarlyLeave
}

// Excused reports whether the status is an excused absence.
func (s AttendanceStatus) Excused() bool {
	return s == StatusOfficial || s == StatusBereavement || s == StatusSick
}

// AttendanceItem is one class meeting.
type AttendanceItem struct {
	Date    string           `json:"date"`
	Period  int              `json:"period"`
	Subject string           `json:"subject"`
	Teacher string           `json:"teacher"`
	Status  AttendanceStatus `json:"status"`
	Note    string           `json:"note,omitempty"`
}

func (a AttendanceItem) Kind() string { return "attendance" }

func (a AttendanceItem) Key() string {
	return fmt.Sprintf("%s/%d/%s", a.Date, a.Period, a.Subject)
}

func (a AttendanceItem) Columns() []string {
	return []string{"date", "period", "subject", "teacher", "status", "note"}
}

func (a AttendanceItem) Values() []string {
	return []string{a.Date, strconv.Itoa(a.Period), a.Subject, a.Teacher, string(a.Status), a.Note}
}

func (a AttendanceItem) Validate() error {
	if strings.TrimSpace(a.Date) == "" || strings.TrimSpace(a.Subject) == "" || strings.TrimSpace(a.Teacher) == "" {
		return fmt.Errorf("attendance item %s missing date, subject or teacher", a.Key())
	}
	return nil
}

// AttendanceSummary rolls up one subject/teacher pair.
type AttendanceSummary struct {
	Subject           string  `json:"subject"`
	Teacher           string  `json:"teacher"`
	TotalClasses      int     `json:"total_classes"`
	AttendedClasses   int     `json:"attended_classes"`
	AbsentClasses     int     `json:"absent_classes"`
	LateClasses       int     `json:"late_classes"`
	EarlyLeaveClasses int     `json:"early_leave_classes"`
	ExcusedAbsences   int     `json:"excused_absences"`
	AttendanceRate    float64 `json:"attendance_rate"`
}
