// Package retry provides bounded exponential backoff for outbound calls.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"
)

// Config holds configuration for retry operations with exponential backoff.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt,
	// so MaxRetries=3 allows up to 4 attempts in total
	MaxRetries int

	// BackoffFactor scales the exponential delay: delay = BackoffFactor * 2^attempt
	BackoffFactor time.Duration

	// MaxDelay caps the exponential growth between attempts
	MaxDelay time.Duration

	// JitterFactor adds randomness to delays (0.0-1.0, where 0.1 = 10% jitter)
	JitterFactor float64

	// RetryableErrors determines which errors should trigger a retry.
	// If nil, all errors are considered retryable.
	RetryableErrors func(error) bool
}

// DefaultConfig returns a sensible default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		BackoffFactor: 500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		JitterFactor:  0.1,
	}
}

// Do executes fn with exponential backoff, stopping on the first nil return,
// the first non-retryable error, context cancellation, or retry exhaustion.
//
// The delay before retry n (0-based) is BackoffFactor * 2^n with optional
// jitter, capped at MaxDelay. The last error is returned when all attempts
// fail; non-retryable errors are returned as-is without wrapping.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err

			if config.RetryableErrors != nil && !config.RetryableErrors(err) {
				return err
			}

			if attempt == config.MaxRetries {
				break
			}
		}

		delay := config.delayFor(attempt)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// delayFor computes the backoff delay preceding retry attempt (0-based)
func (c Config) delayFor(attempt int) time.Duration {
	delay := c.BackoffFactor * (1 << uint(attempt))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	if c.JitterFactor > 0 {
		jitter := time.Duration(float64(delay) * c.JitterFactor)
		delay = delay + time.Duration(randomInt64n(int64(jitter)))
	}

	return delay
}

// randomInt64n returns a random int64 in the range [0, n), falling back to
// time-based randomness if crypto/rand fails
func randomInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}

	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().UnixNano() % n
	}

	val := int64(bytes[0])<<56 | int64(bytes[1])<<48 | int64(bytes[2])<<40 | int64(bytes[3])<<32 |
		int64(bytes[4])<<24 | int64(bytes[5])<<16 | int64(bytes[6])<<8 | int64(bytes[7])

	if val < 0 {
		val = -val
	}

	return val % n
}
