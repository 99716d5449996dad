package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pevans/newscrawl/export"
	"github.com/pevans/newscrawl/internal/newssite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: run the CLI with args and capture its output
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// Test helper: a config file pointing at baseURL with temp storage
func createTestConfig(t *testing.T, baseURL string) (path, outputDir string) {
	t.Helper()
	dir := t.TempDir()
	outputDir = filepath.Join(dir, "output")
	path = filepath.Join(dir, "config.yaml")

	yaml := fmt.Sprintf(`site:
  base_url: %q
  driver: static
crawl:
  step_timeout: 5s
  retry:
    attempts: 2
    min_delay: 0s
    max_delay: 0s
output:
  dir: %q
  formats: [json]
storage:
  dsn: %q
log:
  level: error
`, baseURL, outputDir, filepath.Join(dir, "runs.db"))

	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path, outputDir
}

func TestCrawlCommand_EndToEnd(t *testing.T) {
	site := (&newssite.Site{
		Pages: [][]newssite.Item{{
			{Slug: "rally", Title: "Finance markets rally", Description: "Finance shares up $5", Live: "5 mins ago", HasImage: true},
			{Slug: "rates", Title: "Rates hold", Live: "10 mins ago"},
		}},
		Categories: []string{"Stories", "Videos"},
	}).Start()
	t.Cleanup(site.Close)

	configPath, outputDir := createTestConfig(t, site.URL())

	out, err := executeCmd(t, "--config", configPath, "crawl", "--keyword", "finance", "--category", "stories", "--months", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Collected 2 records from 1 pages (stopped: no_next_page)")
	assert.Contains(t, out, "Run ID: ")

	matches, err := filepath.Glob(filepath.Join(outputDir, "Execution_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var rows []export.Row
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Finance markets rally", rows[0].Title)
	assert.Equal(t, 2, rows[0].SearchPhraseMatches)
	assert.True(t, rows[0].ContainsMoney)
	assert.Equal(t, "rally.png", rows[0].Image)
	assert.FileExists(t, filepath.Join(outputDir, "rally.png"))

	out, err = executeCmd(t, "--config", configPath, "runs", "list", "--format", "json")
	require.NoError(t, err)
	var listed struct {
		Runs []struct {
			Keyword     string `json:"keyword"`
			Status      string `json:"status"`
			RecordCount int    `json:"record_count"`
		} `json:"runs"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Equal(t, 1, listed.Total)
	assert.Equal(t, "finance", listed.Runs[0].Keyword)
	assert.Equal(t, "completed", listed.Runs[0].Status)
	assert.Equal(t, 2, listed.Runs[0].RecordCount)
}

func TestCrawlCommand_RequiresKeyword(t *testing.T) {
	configPath, _ := createTestConfig(t, "https://news.test/")

	_, err := executeCmd(t, "--config", configPath, "crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.keyword is required")
}

func TestCrawlCommand_UnreachableSiteFailsRun(t *testing.T) {
	site := (&newssite.Site{}).Start()
	url := site.URL()
	site.Close()

	configPath, _ := createTestConfig(t, url)

	_, err := executeCmd(t, "--config", configPath, "crawl", "--keyword", "finance", "--no-images")
	require.Error(t, err)

	out, err := executeCmd(t, "--config", configPath, "runs", "list", "--format", "compact")
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "finance")
}

func TestRunsShow_NotFound(t *testing.T) {
	configPath, _ := createTestConfig(t, "https://news.test/")

	_, err := executeCmd(t, "--config", configPath, "runs", "show", "6f1c1f9e-8f8e-4e0a-9a53-2b8f1e2f0a11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = executeCmd(t, "--config", configPath, "runs", "show", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run ID")
}

func TestRunsList_InvalidFormat(t *testing.T) {
	configPath, _ := createTestConfig(t, "https://news.test/")

	_, err := executeCmd(t, "--config", configPath, "runs", "list", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestServe_ScheduleNeedsKeyword(t *testing.T) {
	configPath, _ := createTestConfig(t, "https://news.test/")

	_, err := executeCmd(t, "--config", configPath, "serve", "--every", "1h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduled crawling needs a search")
}
