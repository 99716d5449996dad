package main

import (
	"fmt"

	"github.com/pevans/newscrawl/assets"
	"github.com/pevans/newscrawl/config"
	"github.com/pevans/newscrawl/discovery"
	"github.com/pevans/newscrawl/driver"
	"github.com/pevans/newscrawl/driver/rodriver"
	"github.com/pevans/newscrawl/driver/static"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/pipeline"
)

// newDriver picks the page driver named in site.driver.
func newDriver(cfg *config.Config) driver.Driver {
	if cfg.Site.Driver == config.DriverStatic {
		return static.New(nil)
	}
	return rodriver.New()
}

// newCrawler wires a crawler from cfg.
func newCrawler(cfg *config.Config, log logger.Logger, recorder discovery.Recorder) (*discovery.Crawler, error) {
	opts := []discovery.Option{
		discovery.WithSelectors(cfg.Site.Selectors),
		discovery.WithBrowserOptions(cfg.BrowserOptions()),
		discovery.WithStepTimeout(cfg.Crawl.StepTimeout),
		discovery.WithRetryPolicy(cfg.RetryPolicy()),
		discovery.WithMaxPages(cfg.Crawl.MaxPages),
		discovery.WithRefreshBeforeExtract(cfg.Crawl.RefreshBeforeExtract),
		discovery.WithLogger(log),
	}
	if recorder != nil {
		opts = append(opts, discovery.WithRecorder(recorder))
	}

	if cfg.Output.Images {
		userAgent := cfg.Browser.UserAgent
		if userAgent == "" {
			userAgent = static.DefaultUserAgent
		}
		images, err := assets.NewStore(cfg.Output.Dir, assets.NewDownloader(nil, userAgent))
		if err != nil {
			return nil, fmt.Errorf("failed to create image store: %w", err)
		}
		opts = append(opts, discovery.WithImageSaver(images))
	}

	return discovery.NewCrawler(newDriver(cfg), cfg.Site.BaseURL, opts...), nil
}

// newPipeline wires a pipeline that records into store.
func newPipeline(cfg *config.Config, log logger.Logger, store pipeline.RunStore, recorder discovery.Recorder) (*pipeline.Pipeline, error) {
	crawler, err := newCrawler(cfg, log, recorder)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Config{
		Crawler:   crawler,
		Store:     store,
		OutputDir: cfg.Output.Dir,
		Formats:   cfg.Output.Formats,
		Logger:    log,
	}), nil
}

// queryFrom builds the crawl query from the search section.
func queryFrom(cfg *config.Config) discovery.Query {
	return discovery.Query{
		Keyword:      cfg.Search.Keyword,
		Category:     cfg.Search.Category,
		MonthsWindow: cfg.Search.MonthsWindow,
	}
}
