// Package assets downloads result images and stores them next to the
// exported spreadsheet.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Extension is appended to every stored image filename.
const Extension = ".png"

// ErrDownload is returned for any failed image fetch.
var ErrDownload = errors.New("download failed")

// maxImageBytes caps a single download.
const maxImageBytes = 20 << 20

// Downloader fetches image bytes over HTTP.
type Downloader struct {
	client    *http.Client
	userAgent string
}

// NewDownloader creates a downloader. A nil client gets a 10 second timeout.
func NewDownloader(client *http.Client, userAgent string) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Downloader{client: client, userAgent: userAgent}
}

// Download returns the body of src.
func (d *Downloader) Download(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrDownload, resp.StatusCode, src)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrDownload, src, maxImageBytes)
	}
	return data, nil
}

// Fetcher is the subset of Downloader that Store needs.
type Fetcher interface {
	Download(ctx context.Context, src string) ([]byte, error)
}

// Store saves downloaded images under a directory.
type Store struct {
	dir     string
	fetcher Fetcher
}

// NewStore creates the image directory if it doesn't exist.
func NewStore(dir string, fetcher Fetcher) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{dir: dir, fetcher: fetcher}, nil
}

// Save downloads src and writes it under a name derived from recordURL. It
// returns the filename relative to the store directory.
func (s *Store) Save(ctx context.Context, recordURL, src string) (string, error) {
	name, err := Filename(recordURL)
	if err != nil {
		return "", err
	}

	data, err := s.fetcher.Download(ctx, src)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return name, nil
}

// Filename is the last path segment of recordURL plus Extension.
func Filename(recordURL string) (string, error) {
	u, err := url.Parse(recordURL)
	if err != nil {
		return "", fmt.Errorf("invalid record URL: %w", err)
	}

	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("record URL %q has no path segment", recordURL)
	}
	return base + Extension, nil
}
