package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.newscrawl/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".newscrawl", "config.yaml"), nil
}

// LoadFile loads the YAML file at path over the defaults. Returns nil if the
// file doesn't exist (not an error). Returns error if the file exists but
// cannot be parsed.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Site.Selectors = cfg.Site.Selectors.Merge(Default().Site.Selectors)

	return cfg, nil
}

// Load reads path, falling back to the defaults when it is missing, then
// applies NEWSCRAWL_* environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NEWSCRAWL_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.stringVar("NEWSCRAWL_BASE_URL", &c.Site.BaseURL)
	env.stringVar("NEWSCRAWL_DRIVER", &c.Site.Driver)
	env.stringVar("NEWSCRAWL_KEYWORD", &c.Search.Keyword)
	env.stringVar("NEWSCRAWL_CATEGORY", &c.Search.Category)
	env.intVar("NEWSCRAWL_MONTHS_WINDOW", &c.Search.MonthsWindow)
	env.durationVar("NEWSCRAWL_STEP_TIMEOUT", &c.Crawl.StepTimeout)
	env.intVar("NEWSCRAWL_MAX_PAGES", &c.Crawl.MaxPages)
	env.intVar("NEWSCRAWL_RETRY_ATTEMPTS", &c.Crawl.Retry.Attempts)
	env.durationVar("NEWSCRAWL_CRAWL_INTERVAL", &c.Crawl.Interval)
	env.boolVar("NEWSCRAWL_HEADLESS", &c.Browser.Headless)
	env.stringVar("NEWSCRAWL_BROWSER_BIN", &c.Browser.Bin)
	env.stringVar("NEWSCRAWL_OUTPUT_DIR", &c.Output.Dir)
	env.listVar("NEWSCRAWL_OUTPUT_FORMATS", &c.Output.Formats)
	env.stringVar("NEWSCRAWL_DB", &c.Storage.DSN)
	env.stringVar("NEWSCRAWL_API_ADDR", &c.API.Addr)
	env.stringVar("NEWSCRAWL_LOG_LEVEL", &c.Log.Level)

	return env.err
}

// envReader keeps the first parse error so overrides read as a flat list.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) value(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, v string, err error) {
	e.err = fmt.Errorf("failed to parse %s=%q: %w", key, v, err)
}

func (e *envReader) stringVar(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	if v, ok := e.value(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) boolVar(key string, dst *bool) {
	if v, ok := e.value(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) durationVar(key string, dst *time.Duration) {
	if v, ok := e.value(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) listVar(key string, dst *[]string) {
	if v, ok := e.value(key); ok {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}
