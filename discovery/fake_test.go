package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pevans/newscrawl/driver"
	"github.com/pevans/newscrawl/retry"
	"github.com/pevans/newscrawl/scraper"
)

const (
	testBaseURL = "https://news.test/"
	// always makes a failure injection permanent.
	always = -1
)

var (
	testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	sel     = scraper.DefaultSelectors()
)

// fakeElement is a scripted driver.Element.
type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string][]*fakeElement
	onClick  func() error
	onInput  func(string) error
	onSelect func(string) error
}

func (e *fakeElement) FindElement(selector string) (driver.Element, error) {
	kids := e.children[selector]
	if len(kids) == 0 {
		return nil, driver.NotFound(selector)
	}
	return kids[0], nil
}

func (e *fakeElement) FindElements(selector string) ([]driver.Element, error) {
	kids := e.children[selector]
	out := make([]driver.Element, len(kids))
	for i, k := range kids {
		out[i] = k
	}
	return out, nil
}

func (e *fakeElement) Attribute(name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Text() (string, error) {
	return e.text, nil
}

func (e *fakeElement) Click() error {
	if e.onClick != nil {
		return e.onClick()
	}
	return nil
}

func (e *fakeElement) InputText(text string) error {
	if e.onInput != nil {
		return e.onInput(text)
	}
	return nil
}

func (e *fakeElement) SelectOption(text string) error {
	if e.onSelect != nil {
		return e.onSelect(text)
	}
	return nil
}

// item describes one search result on a fake page.
type item struct {
	url         string
	title       string
	description string
	image       string
	live        string
	absolute    string
	noLink      bool
}

func (it item) element() *fakeElement {
	el := &fakeElement{attrs: map[string]string{}, children: map[string][]*fakeElement{}}
	if it.title != "" {
		el.attrs[sel.ItemTitleAttr] = it.title
	}
	if !it.noLink {
		el.children[sel.ItemLink] = []*fakeElement{{attrs: map[string]string{"href": it.url}}}
	}
	if it.description != "" {
		el.children[sel.Description] = []*fakeElement{{text: it.description}}
	}
	if it.image != "" {
		el.children[sel.Image] = []*fakeElement{{attrs: map[string]string{"src": it.image}}}
	}
	if it.live != "" {
		el.children[sel.LiveTimestamp] = []*fakeElement{{text: it.live}}
	}
	if it.absolute != "" {
		el.children[sel.Timestamp] = []*fakeElement{{text: it.absolute}}
	}
	return el
}

// fakeSession serves scripted result pages and records what the crawler
// did to it.
type fakeSession struct {
	pages  [][]item
	labels []string
	// failures maps a selector to the number of lookups that fail before
	// it starts working, or always.
	failures    map[string]int
	brokenPages map[int]bool

	page          int
	searched      string
	sorted        string
	checked       []string
	filterApplied bool
	navigations   []string
	refreshes     int
	closes        int
}

func (s *fakeSession) fail(selector string) error {
	switch n := s.failures[selector]; {
	case n == always:
		return fmt.Errorf("%w: %s", driver.ErrTimeout, selector)
	case n > 0:
		s.failures[selector] = n - 1
		return fmt.Errorf("%w: %s", driver.ErrTimeout, selector)
	}
	return nil
}

func (s *fakeSession) lookup(selector string) ([]*fakeElement, error) {
	if s.closes > 0 {
		return nil, errors.New("session closed")
	}
	if err := s.fail(selector); err != nil {
		return nil, err
	}

	switch selector {
	case sel.SearchInput:
		return []*fakeElement{{onInput: func(text string) error {
			s.searched = text
			return nil
		}}}, nil
	case sel.SortSelect:
		return []*fakeElement{{onSelect: func(text string) error {
			s.sorted = text
			return nil
		}}}, nil
	case sel.FiltersApply:
		return []*fakeElement{{onClick: func() error {
			s.filterApplied = true
			return nil
		}}}, nil
	case sel.CategoryLabel:
		var labels []*fakeElement
		for _, label := range s.labels {
			labels = append(labels, &fakeElement{text: label, onClick: func() error {
				s.checked = append(s.checked, label)
				return nil
			}})
		}
		return labels, nil
	case sel.Results:
		if s.brokenPages[s.page+1] {
			return nil, fmt.Errorf("%w: %s", driver.ErrTimeout, selector)
		}
		container := &fakeElement{children: map[string][]*fakeElement{}}
		if s.page < len(s.pages) {
			for _, it := range s.pages[s.page] {
				container.children[sel.Item] = append(container.children[sel.Item], it.element())
			}
		}
		return []*fakeElement{container}, nil
	case sel.NextPage:
		if s.page >= len(s.pages)-1 {
			return nil, nil
		}
		href := fmt.Sprintf("%ssearch?p=%d", testBaseURL, s.page+2)
		return []*fakeElement{{attrs: map[string]string{"href": href}}}, nil
	case sel.SearchButton, sel.SearchSubmit, sel.FiltersOpen, sel.FiltersExpand:
		return []*fakeElement{{}}, nil
	}
	return nil, nil
}

func (s *fakeSession) FindElement(_ context.Context, selector string) (driver.Element, error) {
	found, err := s.lookup(selector)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, driver.NotFound(selector)
	}
	return found[0], nil
}

func (s *fakeSession) FindElements(_ context.Context, selector string) ([]driver.Element, error) {
	found, err := s.lookup(selector)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, len(found))
	for i, f := range found {
		out[i] = f
	}
	return out, nil
}

func (s *fakeSession) WaitVisible(ctx context.Context, selector string, _ time.Duration) (driver.Element, error) {
	return s.FindElement(ctx, selector)
}

func (s *fakeSession) Refresh(context.Context) error {
	s.refreshes++
	return nil
}

func (s *fakeSession) Navigate(_ context.Context, target string) error {
	s.navigations = append(s.navigations, target)
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	if p, err := strconv.Atoi(u.Query().Get("p")); err == nil {
		s.page = p - 1
	}
	return nil
}

func (s *fakeSession) URL() string {
	return testBaseURL
}

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

// visitedPage reports whether the crawler navigated to result page n.
func (s *fakeSession) visitedPage(n int) bool {
	for _, nav := range s.navigations {
		if nav == fmt.Sprintf("%ssearch?p=%d", testBaseURL, n) {
			return true
		}
	}
	return false
}

// fakeDriver hands out a single fakeSession.
type fakeDriver struct {
	session      *fakeSession
	openFailures int
	opens        int
}

func (d *fakeDriver) Open(_ context.Context, target string, _ driver.Options) (driver.Session, error) {
	d.opens++
	if d.openFailures == always || d.openFailures > 0 {
		if d.openFailures > 0 {
			d.openFailures--
		}
		return nil, &driver.SessionError{URL: target, Err: errors.New("browser not found")}
	}
	return d.session, nil
}

// fakeImages records Save calls and fails for sources listed in broken.
type fakeImages struct {
	broken map[string]bool
	saved  []string
}

func (f *fakeImages) Save(_ context.Context, recordURL, src string) (string, error) {
	if f.broken[src] {
		return "", errors.New("download failed")
	}
	f.saved = append(f.saved, src)
	name := recordURL[len(recordURL)-1:] + ".png"
	return name, nil
}

// fakeRecorder counts observations.
type fakeRecorder struct {
	mu       sync.Mutex
	steps    map[string]int
	failures map[string]int
	pages    int
	dropped  int
	outcome  string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{steps: map[string]int{}, failures: map[string]int{}}
}

func (r *fakeRecorder) ObserveStep(step string, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step]++
	if err != nil {
		r.failures[step]++
	}
}

func (r *fakeRecorder) ObservePage(_ int, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages++
	r.dropped += dropped
}

func (r *fakeRecorder) ObserveCrawl(outcome string, _, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = outcome
}

// cancellingRecorder cancels its context once a page has been extracted.
type cancellingRecorder struct {
	*fakeRecorder
	cancel context.CancelFunc
}

func (r *cancellingRecorder) ObservePage(records, dropped int) {
	r.fakeRecorder.ObservePage(records, dropped)
	r.cancel()
}

// instantPolicy retries like the default policy without pausing.
func instantPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MinDelay = 0
	p.MaxDelay = 0
	return p
}

// Test helper: a crawler over d with a fixed clock and no backoff
func newTestCrawler(d driver.Driver, opts ...Option) *Crawler {
	base := []Option{
		WithRetryPolicy(instantPolicy()),
		WithClock(func() time.Time { return testNow }),
	}
	return NewCrawler(d, testBaseURL, append(base, opts...)...)
}
