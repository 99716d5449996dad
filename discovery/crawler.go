package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/newscrawl/driver"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/newsfeed"
	"github.com/pevans/newscrawl/retry"
	"github.com/pevans/newscrawl/scraper"
)

// Recorder receives crawl measurements. The metrics package provides a
// Prometheus implementation.
type Recorder interface {
	ObserveStep(step string, attempt int, err error)
	ObservePage(records, dropped int)
	ObserveCrawl(outcome string, pages, records int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStep(string, int, error) {}
func (nopRecorder) ObservePage(int, int) {}
func (nopRecorder) ObserveCrawl(string, int, int, time.Duration) {}

// Query is what a single crawl searches for.
type Query struct {
	Keyword string
	// Category is matched case-insensitively against the filter labels.
	// Empty skips the filter step.
	Category string
	// MonthsWindow is how many calendar months back to crawl; 0 means the
	// current month only.
	MonthsWindow int
}

// Crawler drives one browser session through search, filter and the
// paginated result pages.
type Crawler struct {
	driver    driver.Driver
	baseURL   string
	selectors scraper.Selectors
	browser   driver.Options
	timeout   time.Duration
	policy    retry.Policy
	images    ImageSaver
	refresh   bool
	maxPages  int
	now       func() time.Time
	log       logger.Logger
	recorder  Recorder
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithSelectors overrides the default selectors. Empty fields keep their
// defaults.
func WithSelectors(s scraper.Selectors) Option {
	return func(c *Crawler) { c.selectors = s.Merge(scraper.DefaultSelectors()) }
}

// WithBrowserOptions sets the options passed to Driver.Open.
func WithBrowserOptions(opts driver.Options) Option {
	return func(c *Crawler) { c.browser = opts }
}

// WithStepTimeout bounds every element wait.
func WithStepTimeout(d time.Duration) Option {
	return func(c *Crawler) { c.timeout = d }
}

// WithRetryPolicy replaces the default 3 attempts, 1-3s policy. Its
// Retryable predicate is ignored; each step retries only its own errors.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Crawler) { c.policy = p }
}

// WithImageSaver enables image downloads.
func WithImageSaver(s ImageSaver) Option {
	return func(c *Crawler) { c.images = s }
}

// WithRefreshBeforeExtract reloads each page before reading it, which some
// sites need before relative timestamps render.
func WithRefreshBeforeExtract(refresh bool) Option {
	return func(c *Crawler) { c.refresh = refresh }
}

// WithMaxPages caps the number of result pages. 0 means no cap.
func WithMaxPages(n int) Option {
	return func(c *Crawler) { c.maxPages = n }
}

// WithClock replaces time.Now for timestamp parsing and the recency check.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Crawler) { c.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Crawler) { c.recorder = r }
}

// NewCrawler creates a crawler that starts every session at baseURL.
func NewCrawler(drv driver.Driver, baseURL string, opts ...Option) *Crawler {
	c := &Crawler{
		driver:    drv,
		baseURL:   baseURL,
		selectors: scraper.DefaultSelectors(),
		browser:   driver.Options{Headless: true, NoSandbox: true},
		timeout:   10 * time.Second,
		policy:    retry.DefaultPolicy(),
		refresh:   true,
		now:       time.Now,
		log:       logger.NewNop(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.browser.Timeout == 0 {
		c.browser.Timeout = c.timeout
	}
	return c
}

// state is a stage of a crawl.
type state int

const (
	stateInit state = iota
	stateSessionOpen
	stateSearchApplied
	stateFilterApplied
	stateFilterSkipped
	stateExtracting
	stateDeciding
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateSessionOpen:
		return "session_open"
	case stateSearchApplied:
		return "search_applied"
	case stateFilterApplied:
		return "filter_applied"
	case stateFilterSkipped:
		return "filter_skipped"
	case stateExtracting:
		return "extracting"
	case stateDeciding:
		return "deciding"
	case stateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// crawlState is everything a single crawl mutates. It lives for one Crawl
// call and is never shared.
type crawlState struct {
	state     state
	session   driver.Session
	extractor *Extractor
	page      int
	batch     newsfeed.PageBatch
	seen      map[string]bool
	result    newsfeed.AggregateResult
}

// Crawl runs a full crawl for q. It returns an error when the session
// cannot be opened, the search cannot be applied or ctx ends first; every
// other failure ends the crawl with whatever was collected so far.
func (c *Crawler) Crawl(ctx context.Context, q Query) (*newsfeed.AggregateResult, error) {
	if strings.TrimSpace(q.Keyword) == "" {
		return nil, fmt.Errorf("%w: keyword is required", ErrInvalidQuery)
	}
	if q.MonthsWindow < 0 {
		return nil, fmt.Errorf("%w: months window must not be negative", ErrInvalidQuery)
	}

	started := time.Now()
	log := c.log.With(logger.String("keyword", q.Keyword))
	st := &crawlState{state: stateInit, seen: map[string]bool{}}

	defer func() {
		if st.session == nil {
			return
		}
		if err := st.session.Close(); err != nil {
			log.Warn("Failed to close browser session", logger.Error(err))
		}
	}()

	for st.state != stateTerminated {
		next, err := c.advance(ctx, q, st, log)
		if err == nil {
			err = cancelled(ctx)
		}
		if err != nil {
			c.recorder.ObserveCrawl("failed", st.result.Pages, len(st.result.Records), time.Since(started))
			log.Error("Crawl failed", logger.String("state", st.state.String()), logger.Error(err))
			return nil, err
		}
		log.Debug("Crawl state changed",
			logger.String("from", st.state.String()), logger.String("to", next.String()))
		st.state = next
	}

	c.recorder.ObserveCrawl(string(st.result.StopReason), st.result.Pages, len(st.result.Records), time.Since(started))
	log.Info("Crawl finished",
		logger.Int("pages", st.result.Pages),
		logger.Int("records", len(st.result.Records)),
		logger.String("stop_reason", string(st.result.StopReason)))

	result := st.result
	return &result, nil
}

// advance runs the work of the current state and returns the next one.
func (c *Crawler) advance(ctx context.Context, q Query, st *crawlState, log logger.Logger) (state, error) {
	switch st.state {
	case stateInit:
		log.Info("Opening browser session", logger.String("url", c.baseURL))
		session, err := c.openSession(ctx, log)
		if err != nil {
			return st.state, fmt.Errorf("%w: %w", ErrSessionOpen, err)
		}
		st.session = session
		st.extractor = NewExtractor(ExtractorConfig{
			Selectors: c.selectors,
			Images:    c.images,
			Timeout:   c.timeout,
			Now:       c.now,
			Logger:    log,
			Recorder:  c.recorder,
		})
		return stateSessionOpen, nil

	case stateSessionOpen:
		log.Info("Performing search")
		if err := c.applySearch(ctx, st.session, q.Keyword, log); err != nil {
			return st.state, fmt.Errorf("%w: %w", ErrSearch, err)
		}
		return stateSearchApplied, nil

	case stateSearchApplied:
		if q.Category == "" {
			return stateFilterSkipped, nil
		}
		log.Info("Applying category filter", logger.String("category", q.Category))
		if err := c.applyFilter(ctx, st.session, q.Category, log); err != nil {
			if cerr := cancelled(ctx); cerr != nil {
				return st.state, cerr
			}
			log.Warn("Error when applying filters, running without filters applied", logger.Error(err))
			return stateFilterSkipped, nil
		}
		return stateFilterApplied, nil

	case stateFilterApplied, stateFilterSkipped:
		st.page = 1
		return stateExtracting, nil

	case stateExtracting:
		log.Info("Processing search result page", logger.Int("page", st.page))
		batch, err := c.extractPage(ctx, st, log)
		if err != nil {
			if cerr := cancelled(ctx); cerr != nil {
				return st.state, cerr
			}
			log.Warn("Giving up on result pages", logger.Int("page", st.page), logger.Error(err))
			st.result.StopReason = newsfeed.StopExtractionFailed
			return stateTerminated, nil
		}
		st.batch = batch
		st.result.Append(st.unseen(batch, log))
		return stateDeciding, nil

	case stateDeciding:
		if !ShouldContinue(st.batch, c.now(), q.MonthsWindow) {
			st.result.StopReason = newsfeed.StopPolicy
			return stateTerminated, nil
		}
		if c.maxPages > 0 && st.page >= c.maxPages {
			st.result.StopReason = newsfeed.StopMaxPages
			return stateTerminated, nil
		}
		err := c.nextPage(ctx, st.session, log)
		if errors.Is(err, ErrNoNextPage) {
			st.result.StopReason = newsfeed.StopNoNextPage
			return stateTerminated, nil
		}
		if err != nil {
			if cerr := cancelled(ctx); cerr != nil {
				return st.state, cerr
			}
			log.Warn("Failed to move to the next page", logger.Int("page", st.page), logger.Error(err))
			st.result.StopReason = newsfeed.StopPaginationFailed
			return stateTerminated, nil
		}
		st.page++
		return stateExtracting, nil
	}

	return stateTerminated, fmt.Errorf("unexpected crawl state %s", st.state)
}

// unseen drops records whose URL was already collected on an earlier page.
func (st *crawlState) unseen(batch newsfeed.PageBatch, log logger.Logger) newsfeed.PageBatch {
	fresh := make(newsfeed.PageBatch, 0, len(batch))
	for _, record := range batch {
		if st.seen[record.URL] {
			log.Debug("Skipping duplicate result", logger.String("url", record.URL))
			continue
		}
		st.seen[record.URL] = true
		fresh = append(fresh, record)
	}
	return fresh
}

// attempt runs op under the retry policy, retrying only StepErrors of step.
func (c *Crawler) attempt(ctx context.Context, step Step, log logger.Logger, op func() error) error {
	policy := c.policy.WithRetryable(recoverableFor(step))
	return retry.Do(ctx, policy, func(n int) error {
		err := op()
		c.recorder.ObserveStep(string(step), n, err)
		if err != nil {
			log.Warn("Step attempt failed",
				logger.String("step", string(step)), logger.Int("attempt", n), logger.Error(err))
		}
		return err
	})
}

func (c *Crawler) openSession(ctx context.Context, log logger.Logger) (driver.Session, error) {
	var session driver.Session
	err := c.attempt(ctx, StepOpenSession, log, func() error {
		s, err := c.driver.Open(ctx, c.baseURL, c.browser)
		if err != nil {
			return stepError(StepOpenSession, err)
		}
		session = s
		return nil
	})
	return session, err
}

// click waits for selector to become visible and clicks it.
func (c *Crawler) click(ctx context.Context, session driver.Session, selector string) error {
	el, err := session.WaitVisible(ctx, selector, c.timeout)
	if err != nil {
		return err
	}
	return el.Click()
}

func (c *Crawler) applySearch(ctx context.Context, session driver.Session, keyword string, log logger.Logger) error {
	return c.attempt(ctx, StepSearch, log, func() error {
		err := c.search(ctx, session, keyword)
		if err == nil {
			log.Info("Applied newest sorting")
			return nil
		}
		if navErr := session.Navigate(ctx, c.baseURL); navErr != nil {
			log.Warn("Failed to return to the start page", logger.Error(navErr))
		}
		return stepError(StepSearch, err)
	})
}

func (c *Crawler) search(ctx context.Context, session driver.Session, keyword string) error {
	if err := c.click(ctx, session, c.selectors.SearchButton); err != nil {
		return fmt.Errorf("failed to open search: %w", err)
	}

	input, err := session.WaitVisible(ctx, c.selectors.SearchInput, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to find search input: %w", err)
	}
	if err := input.InputText(keyword); err != nil {
		return fmt.Errorf("failed to type keyword: %w", err)
	}

	if err := c.click(ctx, session, c.selectors.SearchSubmit); err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}

	sort, err := session.WaitVisible(ctx, c.selectors.SortSelect, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to find sort control: %w", err)
	}
	if err := sort.SelectOption(c.selectors.SortNewest); err != nil {
		return fmt.Errorf("failed to sort by newest: %w", err)
	}
	return nil
}

func (c *Crawler) applyFilter(ctx context.Context, session driver.Session, category string, log logger.Logger) error {
	return c.attempt(ctx, StepFilter, log, func() error {
		err := c.filter(ctx, session, category, log)
		if err == nil {
			log.Info("Applied category filter", logger.String("category", category))
			return nil
		}
		if refreshErr := session.Refresh(ctx); refreshErr != nil {
			log.Warn("Failed to refresh after filter error", logger.Error(refreshErr))
		}
		return stepError(StepFilter, err)
	})
}

func (c *Crawler) filter(ctx context.Context, session driver.Session, category string, log logger.Logger) error {
	if err := c.click(ctx, session, c.selectors.FiltersOpen); err != nil {
		return fmt.Errorf("failed to open filters: %w", err)
	}
	if err := c.click(ctx, session, c.selectors.FiltersExpand); err != nil {
		return fmt.Errorf("failed to expand categories: %w", err)
	}

	labels, err := session.FindElements(ctx, c.selectors.CategoryLabel)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}

	want := strings.ToLower(category)
	checked := 0
	for _, label := range labels {
		text, err := label.Text()
		if err != nil {
			return fmt.Errorf("failed to read category label: %w", err)
		}
		if !strings.Contains(strings.ToLower(text), want) {
			continue
		}
		if err := label.Click(); err != nil {
			return fmt.Errorf("failed to check %q: %w", text, err)
		}
		checked++
		log.Info("Checked filter", logger.String("label", text))
	}
	if checked == 0 {
		log.Warn("No category label matched", logger.String("category", category))
	}

	// Applying works even when nothing was checked.
	if err := c.click(ctx, session, c.selectors.FiltersApply); err != nil {
		return fmt.Errorf("failed to apply filters: %w", err)
	}
	return nil
}

func (c *Crawler) extractPage(ctx context.Context, st *crawlState, log logger.Logger) (newsfeed.PageBatch, error) {
	var batch newsfeed.PageBatch
	err := c.attempt(ctx, StepExtract, log, func() error {
		if c.refresh {
			if err := st.session.Refresh(ctx); err != nil {
				return stepError(StepExtract, fmt.Errorf("failed to refresh page: %w", err))
			}
		}
		b, err := st.extractor.ExtractPage(ctx, st.session)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	return batch, err
}

// nextPage follows the next-page link. A page without one returns
// ErrNoNextPage without retrying.
func (c *Crawler) nextPage(ctx context.Context, session driver.Session, log logger.Logger) error {
	return c.attempt(ctx, StepNextPage, log, func() error {
		link, err := session.FindElement(ctx, c.selectors.NextPage)
		if errors.Is(err, driver.ErrElementNotFound) {
			return ErrNoNextPage
		}
		if err != nil {
			return stepError(StepNextPage, err)
		}

		href, ok, err := link.Attribute("href")
		if err != nil {
			return stepError(StepNextPage, err)
		}
		if ok && href != "" {
			if err := session.Navigate(ctx, href); err != nil {
				return stepError(StepNextPage, err)
			}
			return nil
		}

		if err := link.Click(); err != nil {
			return stepError(StepNextPage, err)
		}
		return nil
	})
}
