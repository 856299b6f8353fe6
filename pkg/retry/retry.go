// Package retry runs provider calls with exponential backoff and jitter.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ffneuron/neuron/pkg/errs"
)

// Config controls how many times a failed call is retried.
type Config struct {
	MaxRetries int           // retries after the first attempt (0 = no retry)
	BaseDelay  time.Duration // initial backoff delay
	MaxDelay   time.Duration // maximum backoff delay
}

// Default retries once after roughly 500ms.
func Default() Config {
	return Config{
		MaxRetries: 1,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// Do runs fn, retrying retryable provider errors with backoff.
// Non-retryable errors and context cancellation return immediately.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (result T, attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		if !errs.Retryable(err) || attempt == cfg.MaxRetries {
			return result, attempt + 1, err
		}

		t := time.NewTimer(Backoff(cfg.BaseDelay, cfg.MaxDelay, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return result, attempt + 1, err
		case <-t.C:
		}
	}
	return result, cfg.MaxRetries + 1, err
}

// Backoff computes min(base * 2^attempt, max) with ±25% jitter.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
