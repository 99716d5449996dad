package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pevans/newscrawl/api"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/metrics"
	"github.com/pevans/newscrawl/pipeline"
	"github.com/pevans/newscrawl/runs"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, every string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over HTTP",
		Long: `Serve the read-only runs API and Prometheus metrics. With --every (or
crawl.interval) the configured search is also crawled on that interval
for as long as the server runs.

Examples:
  newscrawl serve
  newscrawl serve --addr :9090
  newscrawl serve --every 6h --config crawl.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.API.Addr = addr
			}
			if every != "" {
				interval, err := parseDuration(every)
				if err != nil {
					return err
				}
				a.cfg.Crawl.Interval = interval
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from api.addr)")
	cmd.Flags().StringVar(&every, "every", getEnv("NEWSCRAWL_EVERY", ""), "crawl interval, e.g. 30m, 6h or 1d")

	return cmd
}

func runServe(ctx context.Context, a *app) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	var scheduled bool
	if cfg.Crawl.Interval > 0 {
		if err := cfg.ValidateSearch(); err != nil {
			return fmt.Errorf("scheduled crawling needs a search: %w", err)
		}
		scheduled = true
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := runs.NewStore(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	server := api.NewServer(store,
		api.WithConfig(cfg),
		api.WithMetrics(m.Handler()),
		api.WithLogger(a.log),
	)

	var wg sync.WaitGroup
	if scheduled {
		p, err := newPipeline(cfg, a.log, store, m)
		if err != nil {
			return err
		}
		scheduler := pipeline.NewScheduler(p, queryFrom(cfg), cfg.Crawl.Interval, a.log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("Scheduler stopped", logger.Error(err))
			}
		}()
		defer scheduler.Stop()
	}

	err = server.Run(ctx, cfg.API.Addr)
	stop()
	wg.Wait()
	return err
}
