// Package ratelimit provides token-bucket rate limiting keyed per provider or
// per endpoint, with a local in-process backend and a Redis-backed distributed
// backend for multi-replica deployments.
package ratelimit

import (
	"context"
)

// Limiter defines the rate limiting contract used by the dispatch engine.
// Keys identify the limited resource, typically "provider" or
// "provider:endpoint".
type Limiter interface {
	// Acquire blocks until a token is available for the key, the configured
	// wait ceiling elapses, or the context is cancelled. A wait ceiling
	// overrun returns a rate_limit error rather than blocking indefinitely.
	Acquire(ctx context.Context, key string) error

	// TryAcquire attempts to take a token for the key without blocking
	TryAcquire(key string) bool

	// Stats returns limiter statistics for monitoring
	Stats() map[string]interface{}

	// Health checks if the limiter backend is reachable
	Health() error
}
