// Package retry provides the shared retry policy used by connect, read, and
// subscribe paths. The policy is a value: budgets and backoff are configured
// once and reused, rather than duplicating attempt loops per operation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRetriesExhausted marks a transient operation that failed on every
// attempt of its budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// BackoffFunc returns the delay to wait after a failed attempt.
// Attempts are numbered from 1.
type BackoffFunc func(attempt int) time.Duration

// Exponential returns unit * 2^attempt: with a one-second unit the delays
// are 2s, 4s, 8s for attempts 1..3.
func Exponential(unit time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return unit << attempt
	}
}

// Fixed returns the same delay after every failed attempt.
func Fixed(d time.Duration) BackoffFunc {
	return func(int) time.Duration {
		return d
	}
}

// Policy bounds a retryable operation: attempt budget plus backoff between
// attempts. Sleep is injectable so tests never wait on real backoff delays.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc

	// Sleep waits for d or until ctx is done. Defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// SleepContext blocks for d, returning early with ctx.Err() when the context
// is cancelled. Only the calling goroutine is parked.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn up to MaxAttempts times, backing off after every failure.
// Each failed attempt is logged as a warning on logger when provided.
// When the budget is exhausted the returned error matches both
// ErrRetriesExhausted and the last attempt's error via errors.Is/As.
func (p Policy) Do(ctx context.Context, logger *logrus.Logger, op string, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if logger != nil {
			logger.WithFields(logrus.Fields{
				"operation": op,
				"attempt":   fmt.Sprintf("%d/%d", attempt, attempts),
				"error":     lastErr,
			}).Warn("Attempt failed")
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return fmt.Errorf("%s after %d attempts: %w", op, attempts, errors.Join(ErrRetriesExhausted, lastErr))
}
