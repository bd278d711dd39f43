// Package httpclient builds the shared *http.Client used by the dispatch
// engine and the OAuth2 token cache.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Config holds HTTP client configuration
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	DisableCompression  bool
	InsecureSkipVerify  bool
	Transport           http.RoundTripper
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Option is a function that modifies Config
type Option func(*Config)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxIdleConns sets the maximum number of idle connections
func WithMaxIdleConns(max int) Option {
	return func(c *Config) {
		c.MaxIdleConns = max
	}
}

// WithTransport sets a custom transport. Tests use this to install a mock
// round tripper.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Config) {
		c.Transport = transport
	}
}

// WithoutKeepAlives disables keep-alives
func WithoutKeepAlives() Option {
	return func(c *Config) {
		c.DisableKeepAlives = true
	}
}

// WithInsecureSkipVerify disables TLS certificate verification
func WithInsecureSkipVerify() Option {
	return func(c *Config) {
		c.InsecureSkipVerify = true
	}
}

// New creates a new HTTP client with the given options
func New(opts ...Option) *http.Client {
	cfg := DefaultConfig()

	for _, opt := range opts {
		opt(&cfg)
	}

	var transport http.RoundTripper
	if cfg.Transport != nil {
		transport = cfg.Transport
	} else {
		httpTransport := &http.Transport{
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			DisableKeepAlives:   cfg.DisableKeepAlives,
			DisableCompression:  cfg.DisableCompression,
		}

		if cfg.InsecureSkipVerify {
			httpTransport.TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true,
			}
		}

		transport = httpTransport
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// NewWithTimeout creates a new HTTP client with the specified timeout
func NewWithTimeout(timeout time.Duration) *http.Client {
	return New(WithTimeout(timeout))
}
