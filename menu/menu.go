// Package menu reads the portal's navigation menu and replays menu clicks as
// the form submissions the portal expects.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/session"
)

var (
	// ErrNoTarget is returned when a handler string carries no
	// menu-number/function-row pair.
	ErrNoTarget = errors.New("menuNo or funcRowId is not defined")
	// ErrNoForm is returned when the current document has no form action to post to.
	ErrNoForm = errors.New("form is not defined")
	// ErrEntryNotFound is returned when a named entry is not in the menu.
	ErrEntryNotFound = errors.New("menu entry not found")
)

// Entry is one clickable menu item. Handler holds the raw client-side click
// handler; nested entries carry Children instead.
type Entry struct {
	Title    string
	Handler  string
	Children []Entry
}

// Group is a headed block of entries.
type Group struct {
	Title   string
	Entries []Entry
}

// Menu lists groups in document order. Group titles are unique.
type Menu []Group

// Lookup returns the entries under the group titled title.
func (m Menu) Lookup(title string) ([]Entry, bool) {
	for _, g := range m {
		if g.Title == title {
			return g.Entries, true
		}
	}
	return nil, false
}

// Find returns the entry titled title inside group. Nested children are
// searched too.
func (m Menu) Find(group, title string) (Entry, bool) {
	entries, ok := m.Lookup(group)
	if !ok {
		return Entry{}, false
	}
	return findEntry(entries, title)
}

func findEntry(entries []Entry, title string) (Entry, bool) {
	for _, e := range entries {
		if e.Title == title && e.Handler != "" {
			return e, true
		}
		if found, ok := findEntry(e.Children, title); ok {
			return found, true
		}
	}
	return Entry{}, false
}

// Parse reads the menu out of doc. With flatten set, submenu entries are
// appended to their parent group; otherwise they become Children of an
// entry titled after the submenu trigger. Blocks without a heading are
// skipped.
func Parse(doc *goquery.Document, flatten bool) (Menu, error) {
	if doc == nil {
		return nil, session.ErrNoDocument
	}

	var menu Menu
	doc.Find("#menubox").First().Children().Filter("div").Each(func(_ int, block *goquery.Selection) {
		title := strings.TrimSpace(block.Find(".menuhead").First().Text())
		if title == "" {
			slog.Debug("skipping menu block without heading")
			return
		}

		var entries []Entry
		block.Find(".submenu").First().Find("a").Each(func(_ int, a *goquery.Selection) {
			if handler, ok := a.Attr("onclick"); ok && handler != "" {
				entries = append(entries, Entry{Title: strings.TrimSpace(a.Text()), Handler: handler})
			}

			trigger, ok := a.Attr("onmouseover")
			if !ok || trigger == "" {
				return
			}
			submenu := block.Find("div").FilterFunction(func(_ int, div *goquery.Selection) bool {
				return div.AttrOr("onmouseover", "") == trigger
			}).First()

			var children []Entry
			submenu.Find("a").Each(func(_ int, sub *goquery.Selection) {
				children = append(children, Entry{
					Title:   prettyTitle(sub.Text()),
					Handler: sub.AttrOr("onclick", ""),
				})
			})
			if flatten {
				entries = append(entries, children...)
				return
			}
			entries = append(entries, Entry{Title: prettyTitle(a.Text()), Children: children})
		})

		menu = menu.set(Group{Title: title, Entries: entries})
	})
	return menu, nil
}

// set replaces an existing group of the same title, keeping its position.
func (m Menu) set(g Group) Menu {
	for i := range m {
		if m[i].Title == g.Title {
			m[i] = g
			return m
		}
	}
	return append(m, g)
}

var titleNoise = strings.NewReplacer("　", "", "<", "", ">", "", "＜", "", "＞", "", " ", "")

func prettyTitle(title string) string {
	return strings.TrimSpace(titleNoise.Replace(title))
}

// Target is the portal's address for a menu action.
type Target struct {
	MenuNo    string
	FuncRowID string
}

// ParseHandler decodes the first parenthesised, comma-separated pair of a
// click handler such as "return menuItemClick('12','345');".
func ParseHandler(handler string) (Target, bool) {
	open := strings.Index(handler, "(")
	if open < 0 {
		return Target{}, false
	}
	rest := handler[open+1:]
	closing := strings.Index(rest, ")")
	if closing < 0 {
		return Target{}, false
	}
	args := rest[:closing]
	comma := strings.Index(args, ",")
	if comma < 0 {
		return Target{}, false
	}
	target := Target{
		MenuNo:    trimArg(args[:comma]),
		FuncRowID: trimArg(args[comma+1:]),
	}
	if target.MenuNo == "" || target.FuncRowID == "" {
		return Target{}, false
	}
	return target, true
}

func trimArg(arg string) string {
	return strings.Trim(strings.TrimSpace(arg), `'"`)
}

// Click submits entry through the current document's form. On success the
// response becomes the current document; on failure the session is left
// untouched. name disambiguates fixtures when one URL serves several pages.
func Click(ctx context.Context, s *session.Session, entry Entry, name string) error {
	target, ok := ParseHandler(entry.Handler)
	if !ok {
		return fmt.Errorf("click %q: %w", entry.Title, ErrNoTarget)
	}
	doc := s.Document()
	if doc == nil {
		return fmt.Errorf("click %q: %w", entry.Title, session.ErrNoDocument)
	}
	action := strings.TrimSpace(doc.Find("form").First().AttrOr("action", ""))
	if action == "" {
		return fmt.Errorf("click %q: %w", entry.Title, ErrNoForm)
	}
	token := s.Token()
	if token == "" {
		return fmt.Errorf("click %q: %w", entry.Title, session.ErrNoToken)
	}

	params := url.Values{}
	params.Set("header:form1:htmlMenuItemButton", "実行")
	params.Set("header:form1:hiddenMenuNo", target.MenuNo)
	params.Set("header:form1:hiddenFuncRowId", target.FuncRowID)
	params.Set(session.TokenField, token)
	params.Set("header:form1", "header:form1")

	slog.Debug("menu click",
		slog.String("title", entry.Title),
		slog.String("menu_no", target.MenuNo),
		slog.String("func_row_id", target.FuncRowID),
	)
	page, err := s.Fetch(ctx, action, params, session.FetchOptions{Method: http.MethodPost, Name: name})
	if err != nil {
		return fmt.Errorf("click %q: %w", entry.Title, err)
	}
	if page.State != session.StateSuccess {
		return &session.StateError{Op: fmt.Sprintf("click %q", entry.Title), State: page.State}
	}
	s.SetDocument(page.Doc)
	return nil
}

// Navigate parses the current menu and clicks group/title.
func Navigate(ctx context.Context, s *session.Session, group, title, name string) error {
	m, err := Parse(s.Document(), true)
	if err != nil {
		return err
	}
	entry, ok := m.Find(group, title)
	if !ok {
		return fmt.Errorf("%s > %s: %w", group, title, ErrEntryNotFound)
	}
	return Click(ctx, s, entry, name)
}
