package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pevans/newscrawl/runs"
	"github.com/spf13/cobra"
)

const (
	formatTable   = "table"
	formatJSON    = "json"
	formatCompact = "compact"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored crawl runs",
	}
	cmd.AddCommand(newRunsListCmd(a))
	cmd.AddCommand(newRunsShowCmd(a))
	return cmd
}

func newRunsListCmd(a *app) *cobra.Command {
	var status, keyword, format string
	var limit, offset int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List runs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runs.NewStore(a.cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := runs.RunFilter{Limit: limit, Offset: offset}
			if status != "" {
				filter.Status = &status
			}
			if keyword != "" {
				filter.Keyword = &keyword
			}

			list, err := store.ListRuns(filter)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch format {
			case formatJSON:
				return printJSON(w, map[string]any{"runs": list, "total": len(list)})
			case formatCompact:
				printRunsCompact(w, list)
			case formatTable:
				printRunsTable(w, list, offset)
			default:
				return fmt.Errorf("invalid format %q (must be table, json or compact)", format)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&status, "status", "", "filter by status (running, completed, failed)")
	flags.StringVar(&keyword, "keyword", "", "filter by keyword")
	flags.IntVar(&limit, "limit", 20, "maximum runs to show")
	flags.IntVar(&offset, "offset", 0, "runs to skip")
	flags.StringVar(&format, "format", formatTable, "output format (table, json, compact)")

	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	var format string
	var withRecords bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and optionally its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			store, err := runs.NewStore(a.cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(runID)
			if errors.Is(err, runs.ErrRunNotFound) {
				return fmt.Errorf("run %s not found", runID)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !withRecords {
				if format == formatJSON {
					return printJSON(w, run)
				}
				printRunSummary(w, run)
				return nil
			}

			records, err := store.ListRecords(runID)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return printJSON(w, map[string]any{"run": run, "records": records})
			}
			printRunSummary(w, run)
			fmt.Fprintln(w)
			printRecords(w, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "output format (table, json)")
	cmd.Flags().BoolVar(&withRecords, "records", false, "include the run's records")

	return cmd
}
