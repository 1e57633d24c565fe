// Package retry wraps avast/retry-go with the backoff policy used when
// publishing payment events. Nothing in the payment flow itself retries:
// a duplicate gateway submission risks a duplicate charge, so retrying is
// reserved for side channels like the outbox publisher.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config bounds a retried operation.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries everything except context cancellation.
	Retryable func(error) bool
}

// DefaultConfig suits the outbox publisher: short initial delay, a few
// attempts, then surrender and let the next poll pick the entry up again.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// Do runs fn with exponential backoff until it succeeds, exhausts
// cfg.MaxAttempts, fails a Retryable check, or ctx is done. The last
// error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			if cfg.Retryable != nil {
				return cfg.Retryable(err)
			}
			return true
		}),
	)
}
