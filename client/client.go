// Package client implements the outbound dispatch engine: it turns a flat
// argument bag plus an endpoint definition into an executed HTTP call with
// auth, rate limiting, retries, and a normalized response envelope.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"apibridge/auth"
	"apibridge/circuitbreaker"
	"apibridge/common/errors"
	"apibridge/common/httpclient"
	"apibridge/common/logging"
	"apibridge/common/ratelimit"
	"apibridge/config"
	"apibridge/oauth2"
)

// Client dispatches calls against a single provider. It is safe for
// concurrent use; each call carries its own context and per-attempt timeout.
type Client struct {
	provider   *config.ProviderConfig
	strategy   auth.Strategy
	authConfig config.AuthConfig
	tokens     *oauth2.Manager
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     logging.Logger
	permissive bool

	limiter          ratelimit.Limiter
	endpointLimiters map[string]ratelimit.Limiter
}

// Option customizes client construction
type Option func(*options)

type options struct {
	httpClient    *http.Client
	tokens        *oauth2.Manager
	logger        logging.Logger
	redis         redis.UniversalClient
	authOverrides *config.AuthConfig
	permissive    bool
}

// WithHTTPClient overrides the transport client
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithOAuth2Manager shares a token manager across clients so providers with
// the same credentials reuse one token
func WithOAuth2Manager(m *oauth2.Manager) Option {
	return func(o *options) { o.tokens = m }
}

// WithLogger overrides the client logger
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRedis supplies the redis client backing distributed rate limits
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// WithAuthOverrides replaces configured credentials at construction time
// without mutating the shared provider configuration
func WithAuthOverrides(overrides *config.AuthConfig) Option {
	return func(o *options) { o.authOverrides = overrides }
}

// Permissive switches the builder out of strict argument checking: arguments
// without a parameter spec are routed heuristically instead of rejected
func Permissive() Option {
	return func(o *options) { o.permissive = true }
}

// New creates a client for a validated provider configuration
func New(provider *config.ProviderConfig, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, errors.ConfigError("provider configuration is nil")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.GetGlobalLogger()
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New()
	}

	authConfig := auth.MergeOverrides(provider.Auth, o.authOverrides)
	if authConfig.Type == config.AuthOAuth2 && o.tokens == nil {
		managerOpts := []oauth2.ManagerOption{oauth2.WithLogger(o.logger)}
		if o.redis != nil {
			managerOpts = append(managerOpts, oauth2.WithStore(oauth2.NewRedisStore(o.redis, "")))
		}
		o.tokens = oauth2.NewManager(managerOpts...)
	}

	strategy, err := auth.NewStrategy(authConfig, o.tokens)
	if err != nil {
		return nil, err
	}

	c := &Client{
		provider:         provider,
		strategy:         strategy,
		authConfig:       authConfig,
		tokens:           o.tokens,
		httpClient:       o.httpClient,
		breaker:          circuitbreaker.New(provider.Name, circuitbreaker.HTTPConfig, o.logger),
		logger:           o.logger,
		permissive:       o.permissive,
		endpointLimiters: make(map[string]ratelimit.Limiter),
	}

	if provider.RateLimit != nil {
		limiter, err := ratelimit.New(*provider.RateLimit, o.redis)
		if err != nil {
			return nil, err
		}
		c.limiter = limiter
	}
	for name, endpoint := range provider.Endpoints {
		if endpoint != nil && endpoint.RateLimit != nil {
			limiter, err := ratelimit.New(*endpoint.RateLimit, o.redis)
			if err != nil {
				return nil, err
			}
			c.endpointLimiters[name] = limiter
		}
	}

	return c, nil
}

// CallOption customizes a single call
type CallOption func(*callConfig)

type callConfig struct {
	headers      map[string]string
	query        url.Values
	body         interface{}
	timeout      time.Duration
	authOverride *config.AuthConfig
}

// WithHeader adds a header to this call. Caller headers layer above provider
// defaults and endpoint headers; the auth strategy still wins on conflict.
func WithHeader(name, value string) CallOption {
	return func(c *callConfig) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[name] = value
	}
}

// WithQuery adds a query parameter to this call
func WithQuery(name, value string) CallOption {
	return func(c *callConfig) {
		if c.query == nil {
			c.query = make(url.Values)
		}
		c.query.Add(name, value)
	}
}

// WithBody sets the request body for a raw call
func WithBody(body interface{}) CallOption {
	return func(c *callConfig) { c.body = body }
}

// WithTimeout overrides the per-attempt timeout for this call
func WithTimeout(timeout time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = timeout }
}

// WithAuthOverride replaces credentials for this call only
func WithAuthOverride(overrides *config.AuthConfig) CallOption {
	return func(c *callConfig) { c.authOverride = overrides }
}

// Invoke dispatches a named endpoint with the given arguments and returns
// the normalized response. Parameter and auth failures return an error with
// no network call; HTTP-level failures return a non-success envelope.
func (c *Client) Invoke(ctx context.Context, endpointName string, args map[string]interface{}, opts ...CallOption) (*APIResponse, error) {
	cc := callConfig{}
	for _, opt := range opts {
		opt(&cc)
	}

	endpoint := c.provider.Endpoint(endpointName)
	if endpoint == nil {
		return nil, errors.NotFoundError(fmt.Sprintf("endpoint %s.%s", c.provider.Name, endpointName))
	}

	parts, err := buildRequest(c.provider, endpoint, args, c.permissive)
	if err != nil {
		return nil, err
	}
	for name, value := range cc.headers {
		parts.Header.Set(name, value)
	}
	for name, values := range cc.query {
		for _, value := range values {
			parts.Query.Add(name, value)
		}
	}

	return c.execute(ctx, endpointName, endpoint, parts, cc)
}

// CallRaw dispatches an arbitrary method and path against the provider,
// bypassing endpoint definitions while keeping auth, rate limits, and
// retries. Useful for endpoints the configuration does not describe yet.
func (c *Client) CallRaw(ctx context.Context, method, path string, opts ...CallOption) (*APIResponse, error) {
	cc := callConfig{}
	for _, opt := range opts {
		opt(&cc)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	parts := &RequestParts{
		Method: strings.ToUpper(method),
		Path:   path,
		Header: make(http.Header),
		Query:  make(url.Values),
		Body:   make(map[string]interface{}),
	}
	for name, value := range c.provider.DefaultHeaders {
		parts.Header.Set(name, value)
	}
	for name, value := range cc.headers {
		parts.Header.Set(name, value)
	}
	for name, values := range cc.query {
		for _, value := range values {
			parts.Query.Add(name, value)
		}
	}
	parts.BodyValue = cc.body

	return c.execute(ctx, strings.ToUpper(method)+" "+path, nil, parts, cc)
}

// Provider returns the provider name this client dispatches against
func (c *Client) Provider() string {
	return c.provider.Name
}
