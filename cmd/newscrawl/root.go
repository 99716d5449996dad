package main

import (
	"github.com/pevans/newscrawl/config"
	"github.com/pevans/newscrawl/logger"
	"github.com/spf13/cobra"
)

// app carries the state shared by every command.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	log        logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "newscrawl",
		Short: "Crawl news search results into spreadsheets",
		Long: `newscrawl searches a news site for a phrase, walks the result pages back
through a window of calendar months and exports what it finds.

Example usage:
  newscrawl crawl --keyword finance --category stories --months 1
  newscrawl runs list
  newscrawl runs show <run-id> --records
  newscrawl serve --every 6h`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", getEnv("NEWSCRAWL_CONFIG", ""),
		"config file (default is ~/.newscrawl/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newCrawlCmd(a))
	root.AddCommand(newRunsCmd(a))
	root.AddCommand(newServeCmd(a))

	return root
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	path := a.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}
