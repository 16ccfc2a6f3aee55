package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds how often a conflicting compaction is retried.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the sleep before the first retry; it doubles each time.
	Backoff time.Duration
}

// DefaultRetryPolicy returns 5 attempts starting at 10ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Backoff: 10 * time.Millisecond}
}

// Run calls fn until it succeeds, fails with an error other than
// ErrConflict, or the attempts are used up. Exhaustion returns
// ErrConflictRetriesExhausted wrapping the last conflict.
func (p RetryPolicy) Run(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := p.Backoff << (i - 1)
			logger.Debug("retrying after conflict",
				"op", op,
				"attempt", i+1,
				"backoff", wait,
				"error", last,
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(wait):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		last = err
	}

	logger.Warn("conflict retries exhausted", "op", op, "attempts", attempts, "error", last)
	return fmt.Errorf("%s: %w: %w", op, ErrConflictRetriesExhausted, last)
}
