// Package config holds the crawler settings loaded from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/pevans/newscrawl/driver"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/retry"
	"github.com/pevans/newscrawl/scraper"
)

// ErrInvalidConfig wraps every validation problem.
var ErrInvalidConfig = errors.New("invalid configuration")

// Driver names accepted in site.driver.
const (
	DriverRod    = "rod"
	DriverStatic = "static"
)

// Output formats accepted in output.formats.
var knownFormats = []string{"xlsx", "json"}

// Config is the complete crawler configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site" json:"site"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Crawl   CrawlConfig   `yaml:"crawl" json:"crawl"`
	Browser BrowserConfig `yaml:"browser" json:"browser"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	API     APIConfig     `yaml:"api" json:"api"`
	Log     logger.Config `yaml:"log" json:"log"`
}

// SiteConfig describes the site being crawled.
type SiteConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Driver is "rod" for a real browser or "static" for plain HTTP.
	Driver    string            `yaml:"driver" json:"driver"`
	Selectors scraper.Selectors `yaml:"selectors" json:"selectors"`
}

// SearchConfig is the query of a crawl.
type SearchConfig struct {
	Keyword      string `yaml:"keyword" json:"keyword"`
	Category     string `yaml:"category" json:"category,omitempty"`
	MonthsWindow int    `yaml:"months_window" json:"months_window"`
}

// CrawlConfig tunes the page loop.
type CrawlConfig struct {
	StepTimeout          time.Duration `yaml:"step_timeout" json:"step_timeout"`
	MaxPages             int           `yaml:"max_pages" json:"max_pages"`
	RefreshBeforeExtract bool          `yaml:"refresh_before_extract" json:"refresh_before_extract"`
	Retry                RetryConfig   `yaml:"retry" json:"retry"`
	// Interval repeats the crawl while serving the API; 0 disables it.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// RetryConfig bounds the retries of every crawl step.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" json:"attempts"`
	MinDelay time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
}

// BrowserConfig is passed to the driver.
type BrowserConfig struct {
	Headless  bool   `yaml:"headless" json:"headless"`
	NoSandbox bool   `yaml:"no_sandbox" json:"no_sandbox"`
	Bin       string `yaml:"bin" json:"bin,omitempty"`
	UserAgent string `yaml:"user_agent" json:"user_agent,omitempty"`
}

// OutputConfig controls exported files.
type OutputConfig struct {
	Dir     string   `yaml:"dir" json:"dir"`
	Formats []string `yaml:"formats" json:"formats"`
	// Images enables downloading result images into Dir.
	Images bool `yaml:"images" json:"images"`
}

// StorageConfig locates the run database.
type StorageConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:   "https://apnews.com/",
			Driver:    DriverRod,
			Selectors: scraper.DefaultSelectors(),
		},
		Crawl: CrawlConfig{
			StepTimeout:          10 * time.Second,
			RefreshBeforeExtract: true,
			Retry: RetryConfig{
				Attempts: 3,
				MinDelay: 1 * time.Second,
				MaxDelay: 3 * time.Second,
			},
		},
		Browser: BrowserConfig{
			Headless:  true,
			NoSandbox: true,
		},
		Output: OutputConfig{
			Dir:     "output",
			Formats: []string{"xlsx"},
			Images:  true,
		},
		Storage: StorageConfig{DSN: "newscrawl.db"},
		API:     APIConfig{Addr: ":8080"},
		Log:     logger.Config{Level: "info"},
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("site.base_url must be an http(s) URL, got %q", c.Site.BaseURL))
	}
	if c.Site.Driver != DriverRod && c.Site.Driver != DriverStatic {
		errs = append(errs, fmt.Errorf("site.driver must be %q or %q, got %q", DriverRod, DriverStatic, c.Site.Driver))
	}
	if c.Search.MonthsWindow < 0 {
		errs = append(errs, errors.New("search.months_window must not be negative"))
	}
	if c.Crawl.StepTimeout <= 0 {
		errs = append(errs, errors.New("crawl.step_timeout must be positive"))
	}
	if c.Crawl.MaxPages < 0 {
		errs = append(errs, errors.New("crawl.max_pages must not be negative"))
	}
	if c.Crawl.Interval < 0 {
		errs = append(errs, errors.New("crawl.interval must not be negative"))
	}
	if c.Crawl.Retry.Attempts < 1 {
		errs = append(errs, errors.New("crawl.retry.attempts must be at least 1"))
	}
	if c.Crawl.Retry.MinDelay < 0 || c.Crawl.Retry.MaxDelay < c.Crawl.Retry.MinDelay {
		errs = append(errs, errors.New("crawl.retry delays must satisfy 0 <= min_delay <= max_delay"))
	}
	for _, format := range c.Output.Formats {
		if !slices.Contains(knownFormats, format) {
			errs = append(errs, fmt.Errorf("output.formats: unknown format %q", format))
		}
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ValidateSearch additionally requires a keyword, which only crawling needs.
func (c *Config) ValidateSearch() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Search.Keyword == "" {
		return fmt.Errorf("%w: search.keyword is required", ErrInvalidConfig)
	}
	return nil
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: c.Crawl.Retry.Attempts,
		MinDelay: c.Crawl.Retry.MinDelay,
		MaxDelay: c.Crawl.Retry.MaxDelay,
	}
}

// BrowserOptions converts the browser section.
func (c *Config) BrowserOptions() driver.Options {
	return driver.Options{
		Headless:  c.Browser.Headless,
		NoSandbox: c.Browser.NoSandbox,
		Bin:       c.Browser.Bin,
		Timeout:   c.Crawl.StepTimeout,
		UserAgent: c.Browser.UserAgent,
	}
}
