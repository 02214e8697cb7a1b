package menu

import (
	"strings"

	"github.com/aluiziolira/go-unipa/session"
)

// Link is a student-facing menu item. In live mode Link is the raw click
// handler, not a URL.
type Link struct {
	Title string
	Link  string
}

// Entry converts l into a clickable entry.
func (l Link) Entry() Entry {
	return Entry{Title: l.Title, Handler: l.Link}
}

var stubStudentMenu = []Link{
	{Title: "出席状況確認", Link: "/up/faces/up/po/Poa00701A.jsp"},
	{Title: "成績照会", Link: "/up/faces/up/po/Poa00601A.jsp"},
	{Title: "時間割表", Link: "/up/faces/up/xu/Xuk00301A.jsp"},
}

// StudentKeywords select the student menu entries out of the full menu.
var StudentKeywords = []string{
	"出席", "成績", "時間割", "attendance", "grade", "timetable", "出欠",
	"掲示", "お知らせ", "通知", "案内", "notice", "bulletin", "information",
}

// StudentMenu lists attendance, grade, timetable and notice entries. Replay
// mode returns a fixed list.
func StudentMenu(s *session.Session) ([]Link, error) {
	if s.Debug.Stub {
		out := make([]Link, len(stubStudentMenu))
		copy(out, stubStudentMenu)
		return out, nil
	}

	m, err := Parse(s.Document(), true)
	if err != nil {
		return nil, err
	}
	var links []Link
	for _, g := range m {
		for _, e := range g.Entries {
			if e.Handler == "" || e.Title == "" {
				continue
			}
			if containsAny(e.Title, StudentKeywords) {
				links = append(links, Link{Title: e.Title, Link: e.Handler})
			}
		}
	}
	return links, nil
}

// FindLink returns the first link whose title contains any of keywords.
func FindLink(links []Link, keywords ...string) (Link, bool) {
	for _, l := range links {
		if containsAny(l.Title, keywords) {
			return l, true
		}
	}
	return Link{}, false
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
