package discovery

import (
	"context"
	"errors"
	"fmt"
)

// Step names a recoverable stage of a crawl.
type Step string

const (
	StepOpenSession Step = "open_session"
	StepSearch      Step = "search"
	StepFilter      Step = "filter"
	StepExtract     Step = "extract_page"
	StepNextPage    Step = "next_page"
)

var (
	// ErrSessionOpen is returned when no browser session could be opened.
	ErrSessionOpen = errors.New("failed to open browser session")
	// ErrSearch is returned when the search and sort could not be applied.
	ErrSearch = errors.New("failed to apply search")
	// ErrNoNextPage means the current page has no link to a following one.
	ErrNoNextPage = errors.New("no next page")
	// ErrInvalidQuery is returned for a query that can never succeed.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrCancelled is returned when the context ends before the crawl does.
	ErrCancelled = errors.New("crawl cancelled")
)

// StepError is the recoverable failure of a single attempt at a step. Only
// StepErrors for the step being run are retried.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// cancelled returns ErrCancelled wrapping ctx's error once ctx is done.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

func stepError(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}

// recoverableFor returns a predicate accepting StepErrors of step only.
func recoverableFor(step Step) func(error) bool {
	return func(err error) bool {
		var se *StepError
		return errors.As(err, &se) && se.Step == step
	}
}
