// Package retry provides a bounded-attempt wrapper with a fixed delay
// between attempts. It is deliberately simpler than exponential backoff:
// the callers retry browser navigations and database writes where the
// fault is either gone after a couple of seconds or not transient at all.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// Do invokes fn up to attempts times, sleeping delay between attempts.
// On exhaustion the last error is returned unchanged, not wrapped, so
// callers can still dispatch on its concrete type.
func Do[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	return DoWhen(ctx, attempts, delay, fn, nil)
}

// DoWhen is Do with a retryable predicate. An error the predicate rejects
// is returned immediately, unchanged, with no further attempts. A nil
// predicate retries every error.
func DoWhen[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error), retryable func(error) bool) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var (
		ans     T
		lastErr error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		ans, lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				log.Debug().Int("attempt", attempt).Msg("retry succeeded")
			}

			return ans, nil
		}

		if retryable != nil && !retryable(lastErr) {
			log.Debug().Err(lastErr).Msg("error is not retryable")

			return ans, lastErr
		}

		if attempt == attempts {
			break
		}

		log.Debug().
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Err(lastErr).
			Msg("attempt failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ans, ctx.Err()
		}
	}

	log.Debug().Int("attempts", attempts).Err(lastErr).Msg("retry attempts exhausted")

	return ans, lastErr
}

// DoVoid is Do for operations without a return value.
func DoVoid(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return DoVoidWhen(ctx, attempts, delay, fn, nil)
}

// DoVoidWhen is DoWhen for operations without a return value.
func DoVoidWhen(ctx context.Context, attempts int, delay time.Duration, fn func() error, retryable func(error) bool) error {
	_, err := DoWhen(ctx, attempts, delay, func() (struct{}, error) {
		return struct{}{}, fn()
	}, retryable)

	return err
}
