package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrRetryAborted       = errors.New("retry aborted")
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool

	// OnRetry is called before each wait with the failed attempt number (from 1)
	OnRetry func(attempt int, err error)
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
}

// Retry executes fn with exponential backoff until it succeeds, returns a
// permanent or context error, or exhausts MaxRetries.
func Retry(ctx context.Context, config RetryConfig, fn RetryFunc) error {
	config.applyDefaults()

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		backoff := ExponentialBackoff(attempt, config.InitialBackoff, config.Multiplier, config.MaxBackoff)
		if config.Jitter {
			backoff = addJitter(backoff)
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrRetryAborted, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// isRetryable reports whether err should trigger a retry
func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// addJitter spreads d by up to 10% either way
func addJitter(d time.Duration) time.Duration {
	jitter := float64(d) * 0.2
	return time.Duration(float64(d) - jitter/2 + rand.Float64()*jitter)
}

// ExponentialBackoff calculates exponential backoff duration
func ExponentialBackoff(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	backoff := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	return backoff
}
