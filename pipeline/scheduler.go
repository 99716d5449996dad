package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pevans/newscrawl/discovery"
	"github.com/pevans/newscrawl/logger"
)

// Scheduler repeats a crawl at a fixed interval. Crawls never overlap; a
// crawl that outlasts the interval delays the next one.
type Scheduler struct {
	pipeline *Pipeline
	query    discovery.Query
	interval time.Duration
	log      logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler for q.
func NewScheduler(p *Pipeline, q discovery.Query, interval time.Duration, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		pipeline: p,
		query:    q,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Run crawls immediately and then once per interval until Stop is called or
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler starting", logger.Duration("interval", s.interval))

	s.execute(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-s.stopChan:
			s.log.Info("Scheduler stopping")
			return nil
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

// Stop signals the scheduler to stop after the current crawl.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Scheduler) execute(ctx context.Context) {
	report, err := s.pipeline.Execute(ctx, s.query)
	if err != nil {
		s.log.Error("Scheduled crawl failed", logger.Error(err))
		return
	}
	s.log.Info("Scheduled crawl finished",
		logger.String("run_id", report.RunID.String()),
		logger.Int("records", len(report.Records)))
}
