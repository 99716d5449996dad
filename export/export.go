// Package export writes crawl results to files named after the run time.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/newscrawl/newsfeed"
	"github.com/xuri/excelize/v2"
)

const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"

	sheetName = "Results"
)

// ErrUnknownFormat is returned by Write for a format it cannot produce.
var ErrUnknownFormat = errors.New("unknown export format")

// Header is the column order of every export.
var Header = []string{
	"Title",
	"Date",
	"Description",
	"Image",
	"URL",
	"#Search Phrase Matches",
	"Contains Money",
}

// Row is one exported record.
type Row struct {
	Title               string `json:"title"`
	Date                string `json:"date"`
	Description         string `json:"description"`
	Image               string `json:"image"`
	URL                 string `json:"url"`
	SearchPhraseMatches int    `json:"search_phrase_matches"`
	ContainsMoney       bool   `json:"contains_money"`
}

// Rows flattens records in order. Records without features export zero
// values for the feature columns.
func Rows(records []newsfeed.NewsRecord) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{
			Title:       r.Title,
			Date:        r.PublishedAt.String(),
			Description: r.Description,
			Image:       r.ImageRef,
			URL:         r.URL,
		}
		if r.Features != nil {
			rows[i].SearchPhraseMatches = r.Features.SearchPhraseMatches
			rows[i].ContainsMoney = r.Features.ContainsMoney
		}
	}
	return rows
}

// Filename returns Execution_YYYYMMDD-HHMMSS.<ext> for runAt.
func Filename(runAt time.Time, ext string) string {
	return "Execution_" + runAt.Format("20060102-150405") + "." + ext
}

// Write exports records in each format and returns the written paths.
func Write(dir string, formats []string, records []newsfeed.NewsRecord, runAt time.Time) ([]string, error) {
	var paths []string
	for _, format := range formats {
		var path string
		var err error
		switch format {
		case FormatXLSX:
			path, err = XLSX(dir, records, runAt)
		case FormatJSON:
			path, err = JSON(dir, records, runAt)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownFormat, format)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// XLSX writes records to a single-sheet workbook in dir.
func XLSX(dir string, records []newsfeed.NewsRecord, runAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := setRow(f, 1, header); err != nil {
		return "", err
	}

	for i, row := range Rows(records) {
		values := []any{
			row.Title,
			row.Date,
			row.Description,
			row.Image,
			row.URL,
			row.SearchPhraseMatches,
			row.ContainsMoney,
		}
		if err := setRow(f, i+2, values); err != nil {
			return "", err
		}
	}

	path := filepath.Join(dir, Filename(runAt, FormatXLSX))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	return path, nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

// JSON writes records as an indented array of rows in dir.
func JSON(dir string, records []newsfeed.NewsRecord, runAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(Rows(records), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal rows: %w", err)
	}

	path := filepath.Join(dir, Filename(runAt, FormatJSON))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}
