package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"apibridge/common/errors"
)

// distributedLimiter implements Redis-backed rate limiting using a sliding
// window counter, so bucket state is shared across replicas
type distributedLimiter struct {
	config Config
	rdb    redis.UniversalClient
}

// NewDistributedLimiter creates a new Redis-backed distributed rate limiter
func NewDistributedLimiter(config Config, rdb redis.UniversalClient) (Limiter, error) {
	config.Type = BackendDistributed
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if rdb == nil {
		return nil, errors.ConfigError("redis client is required for distributed rate limiter")
	}

	return &distributedLimiter{
		config: config,
		rdb:    rdb,
	}, nil
}

// Acquire blocks until a request can be made for the key, honoring the
// configured wait ceiling
func (rl *distributedLimiter) Acquire(ctx context.Context, key string) error {
	if !rl.config.Enabled {
		return nil
	}

	deadline := time.Time{}
	if rl.config.MaxWait > 0 {
		deadline = time.Now().Add(rl.config.MaxWait)
	}

	for {
		if rl.TryAcquire(key) {
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return errors.RateLimitError(key)
		}

		waitTime := time.Second / time.Duration(rl.config.RequestsPerSecond)
		if waitTime < 10*time.Millisecond {
			waitTime = 10 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// TryAcquire attempts to take a token for the key without blocking.
// Uses a one-second sliding window counter in Redis.
func (rl *distributedLimiter) TryAcquire(key string) bool {
	if !rl.config.Enabled {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	allowed, err := rl.checkWindow(ctx, rl.config.KeyPrefix+key, rl.config.RequestsPerSecond, time.Second)
	if err != nil {
		// Redis unavailability should not take down outbound traffic
		return true
	}

	return allowed
}

// checkWindow runs the sliding window check in a single transaction
func (rl *distributedLimiter) checkWindow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := rl.rdb.TxPipeline()

	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now), Member: now})
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return int(countCmd.Val()) < limit, nil
}

// Stats returns rate limiter statistics
func (rl *distributedLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":                "distributed",
		"enabled":             rl.config.Enabled,
		"requests_per_second": rl.config.RequestsPerSecond,
		"key_prefix":          rl.config.KeyPrefix,
	}
}

// Health checks if the Redis backend is reachable
func (rl *distributedLimiter) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rl.rdb.Ping(ctx).Err()
}

var _ Limiter = (*distributedLimiter)(nil)
