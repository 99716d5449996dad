// Package static implements driver.Driver over plain HTTP and goquery. It
// suits server-rendered search pages: links navigate, forms submit, selects
// submit their form on change and checkboxes toggle. Nothing is executed.
package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/newscrawl/driver"
)

// DefaultUserAgent identifies the crawler to the sites it visits.
const DefaultUserAgent = "newscrawl/1.0 (search results crawler)"

var errSessionClosed = errors.New("session is closed")

// Driver opens static sessions.
type Driver struct {
	client *http.Client
}

// New creates a driver. A nil client gets a 10 second timeout.
func New(client *http.Client) *Driver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Driver{client: client}
}

// Open fetches url and returns a session positioned on it.
func (d *Driver) Open(ctx context.Context, rawURL string, opts driver.Options) (driver.Session, error) {
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	s := &Session{
		client:    d.client,
		userAgent: userAgent,
		timeout:   opts.Timeout,
	}
	if err := s.load(ctx, http.MethodGet, rawURL, nil); err != nil {
		return nil, &driver.SessionError{URL: rawURL, Err: err}
	}

	return s, nil
}

// Session holds the current document of one static browsing context.
type Session struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	url       *url.URL
	doc       *goquery.Document
	closed    bool
}

// load fetches target and replaces the current document.
func (s *Session) load(ctx context.Context, method, target string, form url.Values) error {
	if s.closed {
		return errSessionClosed
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	s.url = resp.Request.URL
	s.doc = doc
	return nil
}

// resolve turns ref into an absolute URL against the current document.
func (s *Session) resolve(ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	if s.url == nil {
		return parsed.String(), nil
	}
	return s.url.ResolveReference(parsed).String(), nil
}

func (s *Session) FindElement(_ context.Context, selector string) (driver.Element, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	found := s.doc.Find(selector)
	if found.Length() == 0 {
		return nil, driver.NotFound(selector)
	}
	return &Element{session: s, sel: found.First()}, nil
}

func (s *Session) FindElements(_ context.Context, selector string) ([]driver.Element, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	return wrapAll(s, s.doc.Find(selector)), nil
}

// WaitVisible returns immediately: a static document never changes while it
// is being waited on. Hidden elements report ErrTimeout.
func (s *Session) WaitVisible(ctx context.Context, selector string, _ time.Duration) (driver.Element, error) {
	el, err := s.FindElement(ctx, selector)
	if err != nil {
		return nil, err
	}
	if isHidden(el.(*Element).sel) {
		return nil, fmt.Errorf("%w: %s is hidden", driver.ErrTimeout, selector)
	}
	return el, nil
}

func (s *Session) Refresh(ctx context.Context) error {
	return s.load(ctx, http.MethodGet, s.URL(), nil)
}

func (s *Session) Navigate(ctx context.Context, target string) error {
	abs, err := s.resolve(target)
	if err != nil {
		return err
	}
	return s.load(ctx, http.MethodGet, abs, nil)
}

func (s *Session) URL() string {
	if s.url == nil {
		return ""
	}
	return s.url.String()
}

func (s *Session) Close() error {
	s.closed = true
	s.doc = nil
	return nil
}

func isHidden(sel *goquery.Selection) bool {
	for node := sel; node.Length() > 0; node = node.Parent() {
		if _, ok := node.Attr("hidden"); ok {
			return true
		}
		style, _ := node.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") {
			return true
		}
	}
	return false
}
