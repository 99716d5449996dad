package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/metrics"
	"github.com/pevans/newscrawl/pipeline"
	"github.com/pevans/newscrawl/runs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type crawlFlags struct {
	keyword     string
	category    string
	months      int
	driver      string
	output      string
	formats     []string
	maxPages    int
	noImages    bool
	metricsFile string
}

func newCrawlCmd(a *app) *cobra.Command {
	f := &crawlFlags{}

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and export the results",
		Long: `Search the configured site for a phrase, optionally narrow the results to
a category, and collect records until a page falls outside the window of
months. Results are exported to the output directory and stored as a run.

Examples:
  newscrawl crawl --keyword finance
  newscrawl crawl --keyword finance --category stories --months 2
  newscrawl crawl --keyword finance --format xlsx,json --no-images`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a)
			return runCrawl(cmd, a, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.keyword, "keyword", "k", "", "search phrase")
	flags.StringVarP(&f.category, "category", "c", "", "category filter label")
	flags.IntVarP(&f.months, "months", "m", 0, "calendar months back to crawl; 0 is the current month only")
	flags.StringVar(&f.driver, "driver", "", "page driver (rod or static)")
	flags.StringVarP(&f.output, "output", "o", "", "output directory")
	flags.StringSliceVar(&f.formats, "format", nil, "export formats (xlsx, json)")
	flags.IntVar(&f.maxPages, "max-pages", 0, "stop after this many result pages; 0 is unlimited")
	flags.BoolVar(&f.noImages, "no-images", false, "skip downloading result images")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write crawl metrics in text format to this file")

	return cmd
}

// apply overlays the flags that were set on the loaded configuration.
func (f *crawlFlags) apply(cmd *cobra.Command, a *app) {
	flags := cmd.Flags()
	if flags.Changed("keyword") {
		a.cfg.Search.Keyword = f.keyword
	}
	if flags.Changed("category") {
		a.cfg.Search.Category = f.category
	}
	if flags.Changed("months") {
		a.cfg.Search.MonthsWindow = f.months
	}
	if flags.Changed("driver") {
		a.cfg.Site.Driver = f.driver
	}
	if flags.Changed("output") {
		a.cfg.Output.Dir = f.output
	}
	if flags.Changed("format") {
		a.cfg.Output.Formats = f.formats
	}
	if flags.Changed("max-pages") {
		a.cfg.Crawl.MaxPages = f.maxPages
	}
	if f.noImages {
		a.cfg.Output.Images = false
	}
}

func runCrawl(cmd *cobra.Command, a *app, f *crawlFlags) error {
	cfg := a.cfg
	if err := cfg.ValidateSearch(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := runs.NewStore(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	p, err := newPipeline(cfg, a.log, store, m)
	if err != nil {
		return err
	}

	report, crawlErr := p.Execute(ctx, queryFrom(cfg))

	if f.metricsFile != "" {
		if err := prometheus.WriteToTextfile(f.metricsFile, m.Registry()); err != nil {
			a.log.Warn("Failed to write metrics file", logger.Error(err))
		}
	}

	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	return crawlErr
}

// printReport prints the summary of a finished crawl
func printReport(w io.Writer, report *pipeline.Report) {
	if report.Result != nil {
		fmt.Fprintf(w, "Collected %d records from %d pages (stopped: %s)\n",
			len(report.Records), report.Result.Pages, report.Result.StopReason)
	}
	for _, path := range report.Files {
		fmt.Fprintf(w, "Wrote %s\n", path)
	}
	if report.RunID != uuid.Nil {
		fmt.Fprintf(w, "Run ID: %s\n", report.RunID)
	}
}
