// Package session emulates a browser session against the portal: it owns the
// cookie accumulator and the current document, and turns raw responses into
// classified, parsed pages.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-unipa/config"
	"github.com/aluiziolira/go-unipa/fixture"
	"github.com/gocolly/colly/v2"
)

// TokenField is the hidden input carrying the per-page view token.
const TokenField = "com.sun.faces.VIEW"

const (
	formContentType = "application/x-www-form-urlencoded"

	ctxBody    = "body"
	ctxHeaders = "headers"
	ctxStatus  = "status"
)

var scriptBlock = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)

// Credentials identify the portal user.
type Credentials struct {
	Username string
	Password string
}

// Debug selects replay and capture behaviour.
type Debug struct {
	// Stub replays fixtures instead of touching the network.
	Stub bool
	// SaveHTML captures every live fragment as a fixture.
	SaveHTML bool
}

// Options configure a Session.
type Options struct {
	Credentials Credentials
	Site        config.Site
	Debug       Debug
	FS          fixture.FS
	UserAgent   string
	Timeout     time.Duration
	Metrics     *Metrics
}

// FetchOptions control a single Fetch. Zero values select GET and the
// <body ... </body> fragment.
type FetchOptions struct {
	Method string
	From   string
	To     string
	// Name disambiguates fixtures when one URL serves several pages.
	Name string
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Method == "" {
		o.Method = http.MethodGet
	}
	if o.From == "" {
		o.From = "<body"
	}
	if o.To == "" {
		o.To = "</body>"
	}
	return o
}

// Page is a classified, parsed response fragment.
type Page struct {
	State State
	Doc   *goquery.Document
	Text  string
}

// Session is single-owner state: one navigation at a time. Independent
// sessions share nothing and may run in parallel.
type Session struct {
	Credentials Credentials
	Site        config.Site
	Debug       Debug

	fs        fixture.FS
	metrics   *Metrics
	collector *colly.Collector

	cookies string
	doc     *goquery.Document
}

// New builds a session for opts.Site.
func New(opts Options) (*Session, error) {
	parsed, err := url.Parse(opts.Site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if (opts.Debug.Stub || opts.Debug.SaveHTML) && opts.FS == nil {
		return nil, ErrNoFixtureStore
	}

	collectorOpts := []colly.CollectorOption{
		colly.AllowedDomains(parsed.Hostname()),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(collectorOpts...)
	collector.DisableCookies()
	if opts.Timeout > 0 {
		collector.SetRequestTimeout(opts.Timeout)
	}

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, r.Body)
		r.Ctx.Put(ctxHeaders, r.Headers)
		r.Ctx.Put(ctxStatus, r.StatusCode)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxStatus, r.StatusCode)
		}
	})

	return &Session{
		Credentials: opts.Credentials,
		Site:        opts.Site,
		Debug:       opts.Debug,
		fs:          opts.FS,
		metrics:     opts.Metrics,
		collector:   collector,
	}, nil
}

// FromConfig builds a session for site using cfg's credentials, debug flags
// and fixture directory.
func FromConfig(cfg *config.Config, site config.Site, metrics *Metrics) (*Session, error) {
	var store fixture.FS
	if cfg.FixtureDir != "" {
		store = fixture.Dir(cfg.FixtureDir)
	}
	return New(Options{
		Credentials: Credentials{Username: cfg.Username, Password: cfg.Password},
		Site:        site,
		Debug:       Debug{Stub: cfg.Stub, SaveHTML: cfg.SaveHTML},
		FS:          store,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		Metrics:     metrics,
	})
}

// WithTransport replaces the HTTP transport used for live requests.
func (s *Session) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

// Metrics returns the collectors the session reports to, possibly nil.
func (s *Session) Metrics() *Metrics {
	return s.metrics
}

// Document returns the most recently loaded document, or nil.
func (s *Session) Document() *goquery.Document {
	return s.doc
}

// SetDocument replaces the current document.
func (s *Session) SetDocument(doc *goquery.Document) {
	s.doc = doc
}

// Cookies returns the accumulated Cookie header value.
func (s *Session) Cookies() string {
	return s.cookies
}

// RemoveCookies forgets every cookie so the next request starts a new
// server-side session.
func (s *Session) RemoveCookies() {
	s.cookies = ""
}

// Token reads the view token from the current document.
func (s *Session) Token() string {
	if s.doc == nil {
		return ""
	}
	return s.doc.Find("input[name='"+TokenField+"']").First().AttrOr("value", "")
}

// SetStubData loads the fixture stored under key straight into the current
// document.
func (s *Session) SetStubData(key string) error {
	if s.fs == nil {
		return ErrNoFixtureStore
	}
	text, err := s.fs.Read(fixture.Key(key))
	if err != nil {
		return fmt.Errorf("load stub data: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(StripScripts(text)))
	if err != nil {
		return fmt.Errorf("parse stub data: %w", err)
	}
	s.metrics.IncRequest(http.MethodGet, "stub")
	s.doc = doc
	return nil
}

// Fetch loads path, from the network or from a fixture in stub mode, and
// returns the classified fragment between opts.From and opts.To. It never
// changes the current document.
func (s *Session) Fetch(ctx context.Context, path string, params url.Values, opts FetchOptions) (*Page, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.withDefaults()
	slug := fixture.Slug(fixturePath(path), opts.Name)

	var text string
	if s.Debug.Stub {
		slog.Debug("portal fetch",
			slog.String("mode", "stub"),
			slog.String("method", opts.Method),
			slog.String("fixture", slug),
		)
		s.metrics.IncRequest(opts.Method, "stub")
		loaded, err := s.fs.Read(slug)
		if err != nil {
			return nil, fmt.Errorf("load fixture: %w", err)
		}
		text = loaded
	} else {
		s.metrics.IncRequest(opts.Method, "fetch")
		body, err := s.roundTrip(ctx, opts.Method, s.URL(path), params)
		if err != nil {
			s.metrics.IncError(errorTypeLabel(err))
			return nil, err
		}
		text = body
	}

	fragment := Slice(text, opts.From, opts.To)
	if s.Debug.SaveHTML && !s.Debug.Stub {
		if err := s.fs.Write(slug, fragment); err != nil {
			slog.Warn("failed to save fixture", slog.String("fixture", slug), slog.Any("error", err))
		}
	}

	fragment = StripScripts(fragment)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	state := Classify(fragment)
	s.metrics.IncState(state)

	return &Page{State: state, Doc: doc, Text: fragment}, nil
}

// URL resolves path against the site's base URL. Absolute URLs pass through.
func (s *Session) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(s.Site.BaseURL, "/") + path
}

func (s *Session) roundTrip(ctx context.Context, method, target string, params url.Values) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// colly only applies its UserAgent when no header is passed.
	hdr := http.Header{}
	hdr.Set("Content-Type", formContentType)
	hdr.Set("User-Agent", s.collector.UserAgent)
	if s.cookies != "" {
		hdr.Set("Cookie", s.cookies)
	}

	var body io.Reader
	if len(params) > 0 {
		if method == http.MethodGet {
			target += "?" + params.Encode()
		} else {
			body = strings.NewReader(params.Encode())
		}
	}

	slog.Debug("portal fetch",
		slog.String("mode", "fetch"),
		slog.String("method", method),
		slog.String("url", target),
	)

	rctx := colly.NewContext()
	start := time.Now()
	err := s.collector.Request(method, target, body, rctx, hdr)
	s.metrics.ObserveDuration(time.Since(start))

	status, _ := rctx.GetAny(ctxStatus).(int)
	if err != nil {
		return "", newTransportError(method, target, status, err)
	}

	if headers, ok := rctx.GetAny(ctxHeaders).(*http.Header); ok && headers != nil {
		s.appendCookies(headers.Values("Set-Cookie"))
	}
	raw, _ := rctx.GetAny(ctxBody).([]byte)
	text := string(raw)

	// Error pages that carry a recognisable state are left to the caller.
	if status >= http.StatusBadRequest && Classify(text) == StateSuccess {
		return "", newTransportError(method, target, status, nil)
	}
	return text, nil
}

// appendCookies adds the name=value prefix of each Set-Cookie value. The
// portal issues cookies incrementally, so earlier ones are kept.
func (s *Session) appendCookies(values []string) {
	pairs := make([]string, 0, len(values))
	for _, value := range values {
		pair := strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
		if pair != "" {
			pairs = append(pairs, pair)
		}
	}
	if len(pairs) == 0 {
		return
	}
	joined := strings.Join(pairs, "; ")
	if s.cookies == "" {
		s.cookies = joined
		return
	}
	s.cookies += "; " + joined
}

// Slice returns text from the first from marker through the last to marker.
// Each marker falls back to its upper-case form. A missing from marker
// yields an empty fragment; a missing to marker runs to the end of text.
func Slice(text, from, to string) string {
	start := indexFold(text, from, strings.Index)
	if start < 0 {
		return ""
	}
	end := indexFold(text, to, strings.LastIndex)
	if end < start {
		return text[start:]
	}
	return text[start : end+len(to)]
}

func indexFold(text, marker string, find func(string, string) int) int {
	if i := find(text, marker); i >= 0 {
		return i
	}
	return find(text, strings.ToUpper(marker))
}

// StripScripts removes every inline script block.
func StripScripts(text string) string {
	return scriptBlock.ReplaceAllString(text, "")
}

func fixturePath(path string) string {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return path
	}
	parsed, err := url.Parse(path)
	if err != nil {
		return path
	}
	return parsed.Path
}
