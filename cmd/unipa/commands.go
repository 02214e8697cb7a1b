package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-unipa/attendance"
	"github.com/aluiziolira/go-unipa/config"
	"github.com/aluiziolira/go-unipa/grades"
	"github.com/aluiziolira/go-unipa/menu"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/notice"
	"github.com/aluiziolira/go-unipa/timetable"
)

var weekdays = []string{"月", "火", "水", "木", "金", "土"}

type runFunc func(ctx context.Context, a *app, out io.Writer) ([]models.Record, error)

// withSession logs in, runs fn and exports whatever records it returns.
func withSession(cfg *config.Config, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := openSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		records, err := fn(cmd.Context(), a, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return a.export(records)
	}
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

func newLoginCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and show the account banner",
		RunE: withSession(cfg, func(_ context.Context, a *app, out io.Writer) ([]models.Record, error) {
			t := newTable(out)
			t.AppendRow(table.Row{"Name", a.account.FullName})
			t.AppendRow(table.Row{"Last login", a.account.LastLogin})
			t.AppendRow(table.Row{"Site", a.session.Site.Name + " " + a.session.Site.Campus})
			t.Render()
			return nil, nil
		}),
	}
}

func newMenuCmd(cfg *config.Config) *cobra.Command {
	var flat, student bool
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "List the navigation menu of the landing page",
		RunE: withSession(cfg, func(_ context.Context, a *app, out io.Writer) ([]models.Record, error) {
			t := newTable(out)
			if student {
				links, err := menu.StudentMenu(a.session)
				if err != nil {
					return nil, err
				}
				t.AppendHeader(table.Row{"Title", "Link"})
				for _, l := range links {
					t.AppendRow(table.Row{l.Title, l.Link})
				}
				t.Render()
				return nil, nil
			}

			m, err := menu.Parse(a.session.Document(), flat)
			if err != nil {
				return nil, err
			}
			t.AppendHeader(table.Row{"Group", "Entry", "Target"})
			for _, g := range m {
				appendEntries(t, g.Title, g.Entries, 0)
			}
			t.Render()
			return nil, nil
		}),
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "Flatten nested submenus")
	cmd.Flags().BoolVar(&student, "student", false, "Only list attendance, grade, timetable and notice entries")
	return cmd
}

func appendEntries(t table.Writer, group string, entries []menu.Entry, depth int) {
	for _, e := range entries {
		target := ""
		if tgt, ok := menu.ParseHandler(e.Handler); ok {
			target = tgt.MenuNo + "/" + tgt.FuncRowID
		}
		t.AppendRow(table.Row{group, strings.Repeat("  ", depth) + e.Title, target})
		appendEntries(t, group, e.Children, depth+1)
	}
}

func newTimetableCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "timetable",
		Short: "Show the weekly class grid",
		RunE: withSession(cfg, func(ctx context.Context, a *app, out io.Writer) ([]models.Record, error) {
			result, err := timetable.Fetch(ctx, a.session)
			if err != nil {
				return nil, err
			}

			t := newTable(out)
			header := table.Row{"限"}
			for _, d := range weekdays {
				header = append(header, d)
			}
			t.AppendHeader(header)
			for period := 0; period < timetable.Periods; period++ {
				row := table.Row{period + 1}
				for day := 0; day < timetable.Days; day++ {
					cell := ""
					if item, ok := result.At(day, period); ok {
						cell = item.Subject
						if item.Room != "" {
							cell += "\n" + item.Room
						}
					}
					row = append(row, cell)
				}
				t.AppendRow(row)
			}
			t.Render()
			return result.Records(), nil
		}),
	}
}

func newGradesCmd(cfg *config.Config) *cobra.Command {
	var (
		year     int
		semester string
		category string
		failed   bool
	)
	cmd := &cobra.Command{
		Use:   "grades",
		Short: "Show the grade report and credit totals",
		RunE: withSession(cfg, func(ctx context.Context, a *app, out io.Writer) ([]models.Record, error) {
			result, err := grades.Fetch(ctx, a.session)
			if err != nil {
				return nil, err
			}

			items := result.Grades
			switch {
			case failed:
				items = result.Failed()
			case year != 0:
				items = result.ByPeriod(year, semester)
			case category != "":
				items = result.ByCategory(category)
			}

			t := newTable(out)
			t.SetTitle(fmt.Sprintf("%s %s %s", result.Student.Department, result.Student.Year, result.Student.Semester))
			t.AppendHeader(table.Row{"Year", "Term", "Category", "Subject", "Credits", "Grade", "Score", "Teacher"})
			for _, g := range items {
				t.AppendRow(table.Row{g.Year, g.Semester, g.Category, g.Subject, optionalFloat(g.Credits), g.Grade, optionalInt(g.Score), g.Teacher})
			}
			t.AppendFooter(table.Row{"", "", "", "GPA", fmt.Sprintf("%.2f", result.GPA()), "", "", ""})
			t.Render()

			credits := newTable(out)
			credits.SetTitle("Credits")
			credits.AppendHeader(table.Row{"Category", "Subcategory", "Earned", "Media", "Total"})
			for _, c := range result.Credits {
				credits.AppendRow(table.Row{c.Category, c.Subcategory, c.EarnedCredits, c.MediaCredits, c.TotalCredits})
			}
			credits.AppendFooter(table.Row{"", "", result.TotalEarnedCredits(), "", ""})
			credits.Render()

			records := make([]models.Record, 0, len(items)+len(result.Credits))
			for _, g := range items {
				records = append(records, g)
			}
			for _, c := range result.Credits {
				records = append(records, c)
			}
			return records, nil
		}),
	}
	cmd.Flags().IntVar(&year, "year", 0, "Only grades of this academic year")
	cmd.Flags().StringVar(&semester, "semester", "前期", "Term used with --year")
	cmd.Flags().StringVar(&category, "category", "", "Only grades in this category")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only failed grades")
	return cmd
}

func newAttendanceCmd(cfg *config.Config) *cobra.Command {
	var (
		subject   string
		from, to  string
		threshold float64
		low       bool
	)
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Show attendance records and per-subject rates",
		RunE: withSession(cfg, func(ctx context.Context, a *app, out io.Writer) ([]models.Record, error) {
			result, err := attendance.Fetch(ctx, a.session)
			if err != nil {
				return nil, err
			}

			items := result.Items
			if subject != "" {
				items = result.BySubject(subject)
			}
			if from != "" || to != "" {
				if from == "" || to == "" {
					return nil, fmt.Errorf("--from and --to must be set together")
				}
				scoped := &attendance.Result{Items: items}
				if items, err = scoped.ByDateRange(from, to); err != nil {
					return nil, err
				}
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"Date", "Period", "Subject", "Teacher", "Status", "Note"})
			for _, item := range items {
				t.AppendRow(table.Row{item.Date, item.Period, item.Subject, item.Teacher, item.Status, item.Note})
			}
			t.Render()

			summaries := result.SubjectSummaries()
			if low {
				summaries = result.LowAttendanceSubjects(threshold)
			}
			s := newTable(out)
			s.SetTitle("Summary")
			s.AppendHeader(table.Row{"Subject", "Teacher", "Classes", "Attended", "Absent", "Late", "Excused", "Rate %"})
			for _, sum := range summaries {
				s.AppendRow(table.Row{sum.Subject, sum.Teacher, sum.TotalClasses, sum.AttendedClasses, sum.AbsentClasses, sum.LateClasses, sum.ExcusedAbsences, sum.AttendanceRate})
			}
			s.AppendFooter(table.Row{"Overall", "", "", "", "", "", "", result.OverallRate()})
			s.Render()

			records := make([]models.Record, len(items))
			for i, item := range items {
				records[i] = item
			}
			return records, nil
		}),
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Only this subject")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&low, "low", false, "Only summarise subjects below --threshold")
	cmd.Flags().Float64Var(&threshold, "threshold", attendance.DefaultLowThreshold, "Low attendance threshold in percent")
	return cmd
}

func newNoticeCmd(cfg *config.Config) *cobra.Command {
	var (
		filter    models.NoticeFilter
		category  string
		priority  string
		unread    bool
		byPrio    bool
		deadlines int
	)
	cmd := &cobra.Command{
		Use:   "notice",
		Short: "Show bulletin board notices",
		RunE: withSession(cfg, func(ctx context.Context, a *app, out io.Writer) ([]models.Record, error) {
			result, err := notice.Fetch(ctx, a.session)
			if err != nil {
				return nil, err
			}

			filter.Category = models.NoticeCategory(category)
			filter.Priority = models.NoticePriority(priority)
			if unread {
				isRead := false
				filter.IsRead = &isRead
			}
			items, err := result.Filter(filter)
			if err != nil {
				return nil, err
			}
			view := &notice.Result{Items: items}
			if deadlines > 0 {
				view.Items = view.UpcomingDeadlines(time.Now(), deadlines)
			}
			if byPrio {
				items = view.SortByPriority()
			} else {
				items = view.SortByDate(false)
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"ID", "Date", "Priority", "Category", "Title", "Author", "Deadline", "Read"})
			for _, n := range items {
				t.AppendRow(table.Row{n.ID, n.Date, n.Priority, n.Category, n.Title, n.Author, n.Deadline, n.IsRead})
			}
			summary := result.Summary()
			t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d notices, %d unread, %d high priority",
				summary.TotalNotices, summary.UnreadNotices, summary.HighPriorityNotices), "", "", ""})
			t.Render()

			records := make([]models.Record, len(items))
			for i, n := range items {
				records[i] = n
			}
			return records, nil
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "Only this category (重要, 一般, 事務, 学生, 教務, 就活, その他)")
	cmd.Flags().StringVar(&priority, "priority", "", "Only this priority (high, normal, low)")
	cmd.Flags().StringVar(&filter.Keyword, "keyword", "", "Match title, content or author")
	cmd.Flags().StringVar(&filter.DateFrom, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filter.DateTo, "to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notices")
	cmd.Flags().BoolVar(&byPrio, "by-priority", false, "Sort by priority instead of date")
	cmd.Flags().IntVar(&deadlines, "deadlines", 0, "Only notices whose deadline falls within this many days")
	return cmd
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
