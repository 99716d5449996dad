// Package retry runs an operation a bounded number of times with a random
// pause between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrAttemptsExhausted wraps the final error once every attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy describes how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// MinDelay and MaxDelay bound the uniformly random pause between tries.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Retryable selects the errors worth another try. Anything else is
	// returned immediately.
	Retryable func(error) bool
	// Notify is called before each pause with the failed attempt's error.
	Notify func(err error, next time.Duration)
}

// DefaultPolicy is three attempts with a 1-3 second random pause, retrying
// every error.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		MinDelay: 1 * time.Second,
		MaxDelay: 3 * time.Second,
	}
}

// WithRetryable returns a copy of p that only retries errors accepted by fn.
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// UniformBackOff pauses for a uniformly random duration in [Min, Max].
type UniformBackOff struct {
	Min time.Duration
	Max time.Duration
}

// NextBackOff implements backoff.BackOff.
func (b *UniformBackOff) NextBackOff() time.Duration {
	if b.Max <= b.Min {
		return b.Min
	}
	return b.Min + rand.N(b.Max-b.Min+1)
}

// Reset implements backoff.BackOff.
func (b *UniformBackOff) Reset() {}

// Do calls op until it succeeds, returns a non-retryable error, or runs out
// of attempts. The context is only consulted between attempts; an attempt
// in progress is never interrupted.
func Do(ctx context.Context, p Policy, op func(attempt int) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	attempt := 0
	var lastErr error
	rejected := false

	opts := []backoff.RetryOption{
		backoff.WithBackOff(&UniformBackOff{Min: p.MinDelay, Max: p.MaxDelay}),
		backoff.WithMaxTries(uint(p.Attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(p.Notify))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		lastErr = op(attempt)
		if lastErr == nil {
			return struct{}{}, nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			rejected = true
			return struct{}{}, backoff.Permanent(lastErr)
		}
		return struct{}{}, lastErr
	}, opts...)

	switch {
	case err == nil:
		return nil
	case rejected:
		return lastErr
	case ctx.Err() != nil && !errors.Is(err, lastErr):
		// Retry hands back the context's cause instead of the attempt's error.
		return fmt.Errorf("retry interrupted after %d attempts: %w: %w", attempt, err, lastErr)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, lastErr)
}
