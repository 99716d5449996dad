// Package pipeline runs a crawl end to end: record the run, crawl, derive
// text features, export files and persist the records.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newscrawl/discovery"
	"github.com/pevans/newscrawl/enrich"
	"github.com/pevans/newscrawl/export"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/newsfeed"
	"github.com/pevans/newscrawl/runs"
)

// Crawler is satisfied by *discovery.Crawler.
type Crawler interface {
	Crawl(ctx context.Context, q discovery.Query) (*newsfeed.AggregateResult, error)
}

// RunStore is the write side of runs.Store.
type RunStore interface {
	CreateRun(keyword, category string, monthsWindow int) (*runs.Run, error)
	AddRecords(runID uuid.UUID, records []newsfeed.NewsRecord) error
	FinishRun(runID uuid.UUID, result *newsfeed.AggregateResult, crawlErr error) error
}

// Config holds the collaborators of a Pipeline.
type Config struct {
	Crawler Crawler
	// Store may be nil to skip persistence.
	Store RunStore
	// OutputDir and Formats control exported files. No formats skips export.
	OutputDir string
	Formats   []string
	Now       func() time.Time
	Logger    logger.Logger
}

// Pipeline executes crawls.
type Pipeline struct {
	crawler   Crawler
	store     RunStore
	outputDir string
	formats   []string
	now       func() time.Time
	log       logger.Logger
}

// Report is the outcome of one execution.
type Report struct {
	// RunID is uuid.Nil when no store is configured.
	RunID   uuid.UUID
	Result  *newsfeed.AggregateResult
	Records []newsfeed.NewsRecord
	Files   []string
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		crawler:   cfg.Crawler,
		store:     cfg.Store,
		outputDir: cfg.OutputDir,
		formats:   cfg.Formats,
		now:       cfg.Now,
		log:       cfg.Logger,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.log == nil {
		p.log = logger.NewNop()
	}
	return p
}

// Execute runs one crawl for q. A crawl error is recorded on the run and
// returned; export and storage errors are returned after the run is closed.
func (p *Pipeline) Execute(ctx context.Context, q discovery.Query) (*Report, error) {
	runAt := p.now()
	report := &Report{}
	log := p.log.With(logger.String("keyword", q.Keyword))

	if p.store != nil {
		run, err := p.store.CreateRun(q.Keyword, q.Category, q.MonthsWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		report.RunID = run.RunID
		log = log.With(logger.String("run_id", run.RunID.String()))
	}

	result, err := p.crawler.Crawl(ctx, q)
	if err != nil {
		p.finish(report.RunID, nil, err, log)
		return nil, err
	}
	report.Result = result
	report.Records = enrich.Annotate(result.Records, q.Keyword)

	if len(p.formats) > 0 {
		files, err := export.Write(p.outputDir, p.formats, report.Records, runAt)
		report.Files = files
		if err != nil {
			p.finish(report.RunID, result, err, log)
			return report, fmt.Errorf("failed to export results: %w", err)
		}
		log.Info("Exported results", logger.Any("files", files))
	}

	if p.store != nil {
		if err := p.store.AddRecords(report.RunID, report.Records); err != nil {
			p.finish(report.RunID, result, err, log)
			return report, fmt.Errorf("failed to store records: %w", err)
		}
	}

	p.finish(report.RunID, result, nil, log)
	return report, nil
}

func (p *Pipeline) finish(runID uuid.UUID, result *newsfeed.AggregateResult, runErr error, log logger.Logger) {
	if p.store == nil {
		return
	}
	if err := p.store.FinishRun(runID, result, runErr); err != nil {
		log.Error("Failed to finish run", logger.Error(err))
	}
}
