// Package driver defines the browser automation surface the crawler
// consumes. Implementations live in the rodriver and static subpackages.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrTimeout is returned when a wait runs past its deadline.
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrOptionNotFound is returned by SelectOption when no option has the
	// requested visible text.
	ErrOptionNotFound = errors.New("option not found")
)

// SessionError reports a failure to launch a browser or load the first page.
type SessionError struct {
	URL string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("failed to open session for %s: %v", e.URL, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NotFound wraps ErrElementNotFound with the selector that missed.
func NotFound(selector string) error {
	return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
}

// Options are passed to Driver.Open.
type Options struct {
	Headless  bool
	NoSandbox bool
	// Bin is an explicit browser binary. Empty means the driver decides.
	Bin string
	// Timeout bounds page loads and element waits.
	Timeout time.Duration
	// UserAgent overrides the default user agent when set.
	UserAgent string
}

// Driver opens browser sessions.
type Driver interface {
	Open(ctx context.Context, url string, opts Options) (Session, error)
}

// Session is one browser tab. It is not safe for concurrent use.
type Session interface {
	FindElement(ctx context.Context, selector string) (Element, error)
	FindElements(ctx context.Context, selector string) ([]Element, error)
	// WaitVisible blocks until selector matches a visible element or the
	// timeout passes.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	Refresh(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	// URL is the address of the current document.
	URL() string
	Close() error
}

// Element is a handle to a node in the current document. Handles become
// stale after navigation.
type Element interface {
	FindElement(selector string) (Element, error)
	FindElements(selector string) ([]Element, error)
	// Attribute returns the attribute value and whether it was present.
	// href and src are resolved to absolute URLs.
	Attribute(name string) (string, bool, error)
	Text() (string, error)
	Click() error
	InputText(text string) error
	SelectOption(visibleText string) error
}
