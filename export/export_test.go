package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pevans/newscrawl/newsfeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var runAt = time.Date(2024, 3, 10, 14, 5, 9, 0, time.UTC)

// Test helper: two records, the first annotated
func createTestRecords() []newsfeed.NewsRecord {
	return []newsfeed.NewsRecord{
		{
			URL:         "https://news.test/article/a",
			Title:       "Markets rally",
			Description: "Up $5",
			ImageRef:    "a.png",
			PublishedAt: newsfeed.ParsedAt(time.Date(2024, 3, 10, 9, 55, 0, 0, time.UTC)),
			Features:    &newsfeed.TextFeatures{SearchPhraseMatches: 2, ContainsMoney: true},
		},
		{
			URL:         "https://news.test/article/b",
			Title:       newsfeed.TitleNotFound,
			ImageRef:    newsfeed.ImageNotFound,
			PublishedAt: newsfeed.ParseError("sometime, 2024"),
		},
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Execution_20240310-140509.xlsx", Filename(runAt, FormatXLSX))
}

func TestRows(t *testing.T) {
	rows := Rows(createTestRecords())
	require.Len(t, rows, 2)

	assert.Equal(t, Row{
		Title:               "Markets rally",
		Date:                "2024-03-10T09:55",
		Description:         "Up $5",
		Image:               "a.png",
		URL:                 "https://news.test/article/a",
		SearchPhraseMatches: 2,
		ContainsMoney:       true,
	}, rows[0])
	assert.Equal(t, "Error processing date", rows[1].Date)
	assert.Equal(t, 0, rows[1].SearchPhraseMatches)
	assert.False(t, rows[1].ContainsMoney)
}

func TestXLSX(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := XLSX(dir, createTestRecords(), runAt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Execution_20240310-140509.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{
		"Markets rally",
		"2024-03-10T09:55",
		"Up $5",
		"a.png",
		"https://news.test/article/a",
		"2",
		"TRUE",
	}, rows[1])
	assert.Equal(t, "None", rows[2][0])
	assert.Equal(t, "Error processing date", rows[2][1])
}

func TestJSON(t *testing.T) {
	dir := t.TempDir()

	path, err := JSON(dir, createTestRecords(), runAt)
	require.NoError(t, err)
	assert.Equal(t, "Execution_20240310-140509.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []Row
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Equal(t, Rows(createTestRecords()), rows)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()

	paths, err := Write(dir, []string{FormatXLSX, FormatJSON}, createTestRecords(), runAt)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, path := range paths {
		assert.FileExists(t, path)
	}

	_, err = Write(dir, []string{"csv"}, nil, runAt)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
