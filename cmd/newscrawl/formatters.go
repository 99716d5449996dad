package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pevans/newscrawl/newsfeed"
	"github.com/pevans/newscrawl/runs"
)

const timeFormat = "2006-01-02 15:04"

// printRunsTable prints runs in human-readable table format
func printRunsTable(w io.Writer, list []runs.Run, offset int) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No runs to display.")
		return
	}

	fmt.Fprintf(w, "Showing runs %d-%d\n\n", offset+1, offset+len(list))

	for _, run := range list {
		printRunSummary(w, &run)
		fmt.Fprintln(w)
	}
}

func printRunSummary(w io.Writer, run *runs.Run) {
	category := run.Category
	if category == "" {
		category = "any"
	}

	fmt.Fprintf(w, "%s %q\n", statusMarker(run.Status), run.Keyword)
	fmt.Fprintf(w, "   Category: %s | Months: %d | Started: %s\n",
		category, run.MonthsWindow, run.StartedAt.Local().Format(timeFormat))

	line := fmt.Sprintf("   Status: %s | Pages: %d | Records: %d", run.Status, run.Pages, run.RecordCount)
	if run.StopReason != nil {
		line += " | Stopped: " + *run.StopReason
	}
	fmt.Fprintln(w, line)

	if run.LastError != nil {
		fmt.Fprintf(w, "   Error: %s\n", truncate(*run.LastError, 150))
	}
	fmt.Fprintf(w, "   ID: %s\n", run.RunID)
}

func statusMarker(status string) string {
	switch status {
	case runs.StatusCompleted:
		return "✓"
	case runs.StatusFailed:
		return "✗"
	default:
		return "…"
	}
}

// printJSON prints v as indented JSON
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printRunsCompact prints one line per run
func printRunsCompact(w io.Writer, list []runs.Run) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No runs to display.")
		return
	}

	for _, run := range list {
		fmt.Fprintf(w, "%s %-9s %4d  %s\n", shortID(run.RunID.String()), run.Status, run.RecordCount, run.Keyword)
	}
}

// printRecords prints the records of a run
func printRecords(w io.Writer, records []newsfeed.NewsRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}

	for i, record := range records {
		fmt.Fprintf(w, "%d. %s\n", i+1, truncate(record.Title, 70))
		fmt.Fprintf(w, "   Published: %s | Image: %s\n", record.PublishedAt, record.ImageRef)
		if record.Features != nil {
			fmt.Fprintf(w, "   Matches: %d | Money: %t\n",
				record.Features.SearchPhraseMatches, record.Features.ContainsMoney)
		}
		if record.Description != "" {
			fmt.Fprintf(w, "   %s\n", indent(wrapText(record.Description, 76), "   "))
		}
		fmt.Fprintf(w, "   URL: %s\n", record.URL)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}

// wrapText wraps text to a maximum line width
func wrapText(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}
