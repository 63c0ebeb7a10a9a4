// Package retry wraps fallible calls in bounded exponential backoff. It is
// used for every outbound AI call and nowhere else; remote document writes
// are deliberately not retried.
package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// DefaultMaxAttempts bounds the total attempts, first try included.
	DefaultMaxAttempts = 3
	// DefaultInitialDelay is the wait after the first failure; each further
	// failure doubles it. No jitter, no cap.
	DefaultInitialDelay = time.Second
)

// Config tunes the backoff schedule.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	return c
}

// Do runs fn with the default schedule: three attempts, delays of 1s then 2s
// between them. After the final attempt fails, the last error is returned.
func Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return DoConfig(ctx, Config{}, fn)
}

// DoConfig runs fn under the provided schedule. Every error from fn is
// treated as transient; fn itself decides nothing about retryability.
func DoConfig(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = cfg.normalized()
	backoff := retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), retry.NewExponential(cfg.InitialDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
