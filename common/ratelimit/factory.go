package ratelimit

import (
	"github.com/go-redis/redis/v8"

	"apibridge/common/errors"
)

// New creates a limiter for the configured backend. The redis client may be
// nil for the local backend.
func New(config Config, rdb redis.UniversalClient) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case BackendLocal, "":
		return NewLocalLimiter(config)
	case BackendDistributed:
		return NewDistributedLimiter(config, rdb)
	default:
		return nil, errors.ConfigError("unknown rate limiter backend: " + string(config.Type))
	}
}
