// backend/scraper/retry.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// RetryConfig bounds a retried unit of work.
type RetryConfig struct {
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 1s; delay before attempt n+1 is BaseDelay * 2^(n-1)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry gives up immediately. The auth-wall case uses
// this: burning the whole backoff budget on an unwinnable condition is the
// exact behavior this exists to prevent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ExhaustedError wraps the last underlying failure after the attempt cap.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retry executes fn up to cfg.MaxAttempts times with exponential backoff,
// logging each failed attempt before sleeping. Permanent-wrapped errors and
// context cancellation stop the loop at once. Generic over the result type so
// a whole per-store extraction can be the unit of work.
func Retry[T any](ctx context.Context, cfg RetryConfig, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			log.Printf("ERROR Retry: %s failed permanently on attempt %d: %v", name, attempt, perm.err)
			return zero, perm.err
		}
		lastErr = err
		log.Printf("WARN Retry: %s attempt %d/%d failed: %v", name, attempt, cfg.MaxAttempts, err)

		if attempt == cfg.MaxAttempts {
			break
		}
		delay := cfg.BaseDelay << (attempt - 1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}
