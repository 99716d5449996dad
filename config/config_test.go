package config

import (
	"testing"
	"time"

	"github.com/pevans/newscrawl/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, scraper.DefaultSelectors(), cfg.Site.Selectors)
	assert.True(t, cfg.Crawl.RefreshBeforeExtract)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Site.BaseURL = "ftp://example.com"
	cfg.Site.Driver = "selenium"
	cfg.Search.MonthsWindow = -1
	cfg.Crawl.Retry.Attempts = 0
	cfg.Crawl.Interval = -time.Minute
	cfg.Output.Formats = []string{"xlsx", "csv"}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{"site.base_url", "site.driver", "months_window", "attempts", "crawl.interval", `"csv"`} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RetryDelays(t *testing.T) {
	cfg := Default()
	cfg.Crawl.Retry.MinDelay = 5 * time.Second
	cfg.Crawl.Retry.MaxDelay = time.Second

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateSearch(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.ValidateSearch(), ErrInvalidConfig)

	cfg.Search.Keyword = "finance"
	assert.NoError(t, cfg.ValidateSearch())
}

func TestRetryPolicy(t *testing.T) {
	cfg := Default()
	cfg.Crawl.Retry = RetryConfig{Attempts: 5, MinDelay: time.Second, MaxDelay: 2 * time.Second}

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.Attempts)
	assert.Equal(t, time.Second, policy.MinDelay)
	assert.Equal(t, 2*time.Second, policy.MaxDelay)
}

func TestBrowserOptions(t *testing.T) {
	cfg := Default()
	cfg.Browser.Bin = "/usr/bin/chromium"

	opts := cfg.BrowserOptions()
	assert.True(t, opts.Headless)
	assert.True(t, opts.NoSandbox)
	assert.Equal(t, "/usr/bin/chromium", opts.Bin)
	assert.Equal(t, 10*time.Second, opts.Timeout)
}
