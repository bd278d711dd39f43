package ratelimit

import (
	"fmt"
	"time"
)

// Config represents rate limiter configuration
type Config struct {
	// Core token bucket settings
	RequestsPerSecond int  `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int  `json:"burst_size" yaml:"burst_size"`
	Enabled           bool `json:"enabled" yaml:"enabled"`

	// Alternative window-based settings, normalized to RequestsPerSecond
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	RequestsPerHour   int `json:"requests_per_hour,omitempty" yaml:"requests_per_hour,omitempty"`

	// MaxWait bounds how long Acquire blocks for a token before failing fast.
	// Zero means block until the token arrives or the context is cancelled.
	MaxWait time.Duration `json:"max_wait,omitempty" yaml:"max_wait,omitempty"`

	// Backend type
	Type BackendType `json:"type" yaml:"type"`

	// Distributed backend settings
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`

	// Cleanup settings for local limiters
	MaxKeys       int           `json:"max_keys,omitempty" yaml:"max_keys,omitempty"`
	CleanupPeriod time.Duration `json:"cleanup_period,omitempty" yaml:"cleanup_period,omitempty"`
}

// BackendType defines the rate limiter backend
type BackendType string

const (
	BackendLocal       BackendType = "local"
	BackendDistributed BackendType = "distributed"
)

// Validate normalizes and validates the rate limiter configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.RequestsPerSecond <= 0 {
		switch {
		case c.RequestsPerMinute > 0:
			c.RequestsPerSecond = c.RequestsPerMinute / 60
		case c.RequestsPerHour > 0:
			c.RequestsPerSecond = c.RequestsPerHour / 3600
		}
		if c.RequestsPerSecond <= 0 {
			c.RequestsPerSecond = 1
		}
	}

	if c.BurstSize <= 0 {
		c.BurstSize = c.RequestsPerSecond
	}

	if c.Type == "" {
		c.Type = BackendLocal
	}

	switch c.Type {
	case BackendLocal:
		if c.MaxKeys <= 0 {
			c.MaxKeys = 10000
		}
		if c.CleanupPeriod <= 0 {
			c.CleanupPeriod = 5 * time.Minute
		}
	case BackendDistributed:
		if c.KeyPrefix == "" {
			c.KeyPrefix = "ratelimit:"
		}
	default:
		return fmt.Errorf("unsupported rate limiter backend type: %s", c.Type)
	}

	return nil
}

// DefaultConfig returns a default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		BurstSize:         10,
		Enabled:           true,
		Type:              BackendLocal,
		MaxKeys:           10000,
		CleanupPeriod:     5 * time.Minute,
	}
}
