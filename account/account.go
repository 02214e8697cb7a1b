// Package account drives the portal's two-step login.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/session"
)

var (
	// ErrLoginPathUndefined is returned when the site has no login path.
	ErrLoginPathUndefined = errors.New("loginPath is not defined")
	// ErrMissingCredentials is returned when a live login has no user id or
	// password.
	ErrMissingCredentials = errors.New("credentials are not defined")
	// ErrLoginFormNotFound is returned when the login page carries no form
	// action or view token.
	ErrLoginFormNotFound = errors.New("LoginURL or Token not found")
	// ErrLoginFailed is returned when the credential post is not accepted.
	ErrLoginFailed = errors.New("Login failed")
)

// Phase is a step of the login state machine.
type Phase string

const (
	PhaseAnonymous            Phase = "anonymous"
	PhaseLoginFormFetched     Phase = "login_form_fetched"
	PhaseCredentialsSubmitted Phase = "credentials_submitted"
	PhaseAuthenticated        Phase = "authenticated"
	PhaseFailed               Phase = "failed"
)

// Account is what the portal shows about the signed-in user. Both fields are
// best effort and may be empty.
type Account struct {
	FullName  string
	LastLogin string
}

// Login performs the login flow for one session.
type Login struct {
	session *session.Session
	phase   Phase
}

// New returns an anonymous login flow bound to s.
func New(s *session.Session) *Login {
	return &Login{session: s, phase: PhaseAnonymous}
}

// Phase reports where the flow currently stands.
func (l *Login) Phase() Phase {
	return l.phase
}

// Login fetches the login form, posts the credentials and, on success,
// installs the landing page as the session's current document.
func (l *Login) Login(ctx context.Context) (*Account, error) {
	account, err := l.run(ctx)
	if err != nil {
		l.phase = PhaseFailed
		return nil, err
	}
	l.phase = PhaseAuthenticated
	return account, nil
}

func (l *Login) run(ctx context.Context) (*Account, error) {
	s := l.session
	loginPath := s.Site.LoginPath
	if loginPath == "" {
		return nil, ErrLoginPathUndefined
	}
	if !s.Debug.Stub && (s.Credentials.Username == "" || s.Credentials.Password == "") {
		return nil, ErrMissingCredentials
	}

	form, err := s.Fetch(ctx, loginPath, nil, session.FetchOptions{
		Method: http.MethodGet,
		From:   "<form",
		To:     "</form>",
	})
	if err != nil {
		return nil, err
	}
	if form.State != session.StateSuccess && form.State != session.StateSessionTimeout {
		return nil, &session.StateError{Op: "fetch login form", State: form.State}
	}
	l.phase = PhaseLoginFormFetched

	action, _ := form.Doc.Find("#form1").Attr("action")
	token := form.Doc.Find("input[name='"+session.TokenField+"']").First().AttrOr("value", "")
	// Replayed login and landing pages are the same fixture, so neither
	// field is guaranteed there.
	if !s.Debug.Stub && (action == "" || token == "") {
		return nil, ErrLoginFormNotFound
	}
	target := action
	if target == "" {
		target = loginPath
	}

	params := url.Values{}
	params.Set("form1:htmlUserId", s.Credentials.Username)
	params.Set("form1:htmlPassword", s.Credentials.Password)
	params.Set("form1:login.x", "50")
	params.Set("form1:login.y", "10")
	params.Set("form1:htmlNextFuncId", "")
	params.Set("form1:htmlHiddenSsoFlg", "")
	params.Set("form1:htmlHiddenUserId", "")
	params.Set("form1:htmlHiddenPassword", "")
	params.Set("form1:htmlHiddenUnipaSso", "")
	params.Set(session.TokenField, token)
	params.Set("form1", "form1")

	l.phase = PhaseCredentialsSubmitted
	landing, err := s.Fetch(ctx, target, params, session.FetchOptions{Method: http.MethodPost})
	if err != nil {
		return nil, err
	}
	if landing.State != session.StateSuccess {
		return nil, errors.Join(ErrLoginFailed, &session.StateError{Op: "submit credentials", State: landing.State})
	}

	s.SetDocument(landing.Doc)
	account := parseAccount(landing.Doc)
	slog.Info("logged in",
		slog.String("site", s.Site.Name),
		slog.String("last_login", account.LastLogin),
	)
	return account, nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ")

func parseAccount(doc *goquery.Document) *Account {
	text := doc.Find("#account .middle").First().Text()
	if text == "" {
		return &Account{}
	}
	parts := strings.Split(text, "\u00a0")
	account := &Account{FullName: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		last := strings.ReplaceAll(parts[len(parts)-1], " ", "")
		account.LastLogin = strings.TrimSpace(lineBreaks.Replace(last))
	}
	return account
}
