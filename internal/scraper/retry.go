package scraper

import (
	"context"
	"math"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig holds the retry policy for one sub-window request.
type RetryConfig struct {
	MaxAttempts int           // Total attempts, first try included
	BackoffBase float64       // Delay after attempt n is BackoffBase^n units
	BackoffUnit time.Duration // Unit of the backoff delay
}

// DefaultRetryConfig returns 3 attempts with base 1.5 second backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 1.5,
		BackoffUnit: time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 1.5
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = time.Second
	}
	return c
}

// Delay returns the pause after the failed attempt with the given
// zero-based index.
func (c RetryConfig) Delay(attempt int) time.Duration {
	c = c.normalized()
	return time.Duration(math.Pow(c.BackoffBase, float64(attempt)) * float64(c.BackoffUnit))
}

func (c RetryConfig) backoff() retry.Backoff {
	c = c.normalized()
	attempt := 0
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		d := c.Delay(attempt)
		attempt++
		return d, false
	})
	return retry.WithMaxRetries(uint64(c.MaxAttempts-1), next)
}

// Do runs fn until it succeeds or the attempts are used up, and returns the
// last error. fn receives the zero-based attempt index. Nothing is retried
// once ctx is done.
func (c RetryConfig) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := fn(ctx, attempt)
		attempt++
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}
