package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newscrawl/driver"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/newsfeed"
	"github.com/pevans/newscrawl/scraper"
	"github.com/pevans/newscrawl/timeparse"
)

var errMissingHref = errors.New("link has no href")

// ImageSaver stores the image of a record and returns its local reference.
type ImageSaver interface {
	Save(ctx context.Context, recordURL, src string) (string, error)
}

// ExtractorConfig holds the collaborators of an Extractor.
type ExtractorConfig struct {
	Selectors scraper.Selectors
	// Images may be nil, in which case every record gets ImageNotFound.
	Images ImageSaver
	// Timeout bounds the wait for the results container.
	Timeout  time.Duration
	Now      func() time.Time
	Logger   logger.Logger
	Recorder Recorder
}

// Extractor turns the results of the current page into a PageBatch.
type Extractor struct {
	sel      scraper.Selectors
	images   ImageSaver
	timeout  time.Duration
	now      func() time.Time
	log      logger.Logger
	recorder Recorder
}

// NewExtractor creates an extractor, filling unset collaborators with
// defaults.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	x := &Extractor{
		sel:      cfg.Selectors.Merge(scraper.DefaultSelectors()),
		images:   cfg.Images,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		log:      cfg.Logger,
		recorder: cfg.Recorder,
	}
	if x.now == nil {
		x.now = time.Now
	}
	if x.log == nil {
		x.log = logger.NewNop()
	}
	if x.recorder == nil {
		x.recorder = nopRecorder{}
	}
	return x
}

// field is the outcome of reading one optional part of a result.
type field struct {
	value string
	err   error
}

func (f field) ok() bool {
	return f.err == nil
}

// or returns the value, or fallback when the read failed.
func (f field) or(fallback string) string {
	if f.err != nil {
		return fallback
	}
	return f.value
}

func readText(scope driver.Element, selector string) field {
	el, err := scope.FindElement(selector)
	if err != nil {
		return field{err: err}
	}
	text, err := el.Text()
	return field{value: text, err: err}
}

func readAttr(el driver.Element, name string) field {
	value, ok, err := el.Attribute(name)
	if err != nil {
		return field{err: err}
	}
	if !ok {
		return field{err: fmt.Errorf("attribute %s not present", name)}
	}
	return field{value: value}
}

// ExtractPage reads every result of the current page in DOM order. Failing
// to locate the results container or list its items is a recoverable
// StepError; problems with a single result never are.
func (x *Extractor) ExtractPage(ctx context.Context, session driver.Session) (newsfeed.PageBatch, error) {
	container, err := session.WaitVisible(ctx, x.sel.Results, x.timeout)
	if err != nil {
		return nil, stepError(StepExtract, fmt.Errorf("failed to locate results: %w", err))
	}

	items, err := container.FindElements(x.sel.Item)
	if err != nil {
		return nil, stepError(StepExtract, fmt.Errorf("failed to list results: %w", err))
	}
	x.log.Info("Retrieved news from search", logger.Int("items", len(items)))

	now := x.now()
	batch := make(newsfeed.PageBatch, 0, len(items))
	dropped := 0
	for i, item := range items {
		record, err := x.extractItem(ctx, item, now)
		if err != nil {
			dropped++
			x.log.Warn("Dropping result without a readable link",
				logger.Int("position", i), logger.Error(err))
			continue
		}
		batch = append(batch, record)
	}

	x.recorder.ObservePage(len(batch), dropped)
	return batch, nil
}

// extractItem builds one record. Only a missing URL is an error.
func (x *Extractor) extractItem(ctx context.Context, item driver.Element, now time.Time) (newsfeed.NewsRecord, error) {
	link, err := item.FindElement(x.sel.ItemLink)
	if err != nil {
		return newsfeed.NewsRecord{}, fmt.Errorf("failed to find link: %w", err)
	}
	href := readAttr(link, "href")
	if !href.ok() {
		return newsfeed.NewsRecord{}, fmt.Errorf("failed to read link: %w", href.err)
	}
	if href.value == "" {
		return newsfeed.NewsRecord{}, errMissingHref
	}

	record := newsfeed.NewsRecord{
		ID:          uuid.New(),
		URL:         href.value,
		Title:       readAttr(item, x.sel.ItemTitleAttr).or(newsfeed.TitleNotFound),
		Description: readText(item, x.sel.Description).or(""),
	}

	image := x.saveImage(ctx, item, record.URL)
	if !image.ok() {
		x.log.Debug("Image not available", logger.String("url", record.URL), logger.Error(image.err))
	}
	record.ImageRef = image.or(newsfeed.ImageNotFound)

	record.PublishedAt = x.publishedAt(item, now)
	if record.PublishedAt.State == newsfeed.TimestampParseError {
		x.log.Warn("Error processing date",
			logger.String("url", record.URL), logger.String("timestamp", record.PublishedAt.Raw))
	}

	return record, nil
}

func (x *Extractor) saveImage(ctx context.Context, item driver.Element, recordURL string) field {
	if x.images == nil {
		return field{err: errors.New("image storage disabled")}
	}

	img, err := item.FindElement(x.sel.Image)
	if err != nil {
		return field{err: err}
	}
	src := readAttr(img, "src")
	if !src.ok() {
		return src
	}

	name, err := x.images.Save(ctx, recordURL, src.value)
	return field{value: name, err: err}
}

// publishedAt prefers the relative timestamp and falls back to the absolute
// one.
func (x *Extractor) publishedAt(item driver.Element, now time.Time) newsfeed.Timestamp {
	text := readText(item, x.sel.LiveTimestamp)
	if !text.ok() {
		text = readText(item, x.sel.Timestamp)
	}
	if !text.ok() {
		return newsfeed.NotFound()
	}
	return timeparse.Parse(text.value, now)
}
