package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"apibridge/common/errors"
)

// localLimiter implements keyed rate limiting using golang.org/x/time/rate
type localLimiter struct {
	mu       sync.Mutex
	config   Config
	limiters map[string]*limiterEntry

	lastCleanup time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewLocalLimiter creates a new in-process token bucket limiter
func NewLocalLimiter(config Config) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &localLimiter{
		config:      config,
		limiters:    make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
	}, nil
}

// Acquire blocks until a token is available for the key, honoring the
// configured wait ceiling
func (rl *localLimiter) Acquire(ctx context.Context, key string) error {
	if !rl.config.Enabled {
		return nil
	}

	limiter := rl.getLimiterForKey(key)

	if rl.config.MaxWait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, rl.config.MaxWait)
		defer cancel()

		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.RateLimitError(key)
		}
		return nil
	}

	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.RateLimitError(key)
	}
	return nil
}

// TryAcquire attempts to take a token for the key without blocking
func (rl *localLimiter) TryAcquire(key string) bool {
	if !rl.config.Enabled {
		return true
	}

	return rl.getLimiterForKey(key).Allow()
}

// getLimiterForKey gets or creates a rate limiter for a specific key
func (rl *localLimiter) getLimiterForKey(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) > rl.config.CleanupPeriod {
		rl.cleanup()
	}

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{
			limiter:  rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize),
			lastUsed: time.Now(),
		}
		rl.limiters[key] = entry

		if len(rl.limiters) > rl.config.MaxKeys {
			rl.cleanup()
		}
	} else {
		entry.lastUsed = time.Now()
	}

	return entry.limiter
}

// cleanup removes rate limiters that haven't been used recently
func (rl *localLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.config.CleanupPeriod)

	for key, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}

	rl.lastCleanup = time.Now()
}

// Stats returns rate limiter statistics
func (rl *localLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"type":                "local",
		"enabled":             rl.config.Enabled,
		"requests_per_second": rl.config.RequestsPerSecond,
		"burst_size":          rl.config.BurstSize,
		"active_keys":         len(rl.limiters),
		"max_keys":            rl.config.MaxKeys,
	}
}

// Health checks if the rate limiter is working properly
func (rl *localLimiter) Health() error {
	return nil
}

var _ Limiter = (*localLimiter)(nil)
