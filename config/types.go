// Package config holds the immutable in-memory description of a provider:
// its endpoints, auth scheme, and webhook surfaces. Configurations are
// produced by an external loader, validated once, and read-only afterwards.
package config

import (
	"time"

	"apibridge/common/ratelimit"
)

// ParamLocation identifies where an argument is placed in the outbound request
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
	InBody   ParamLocation = "body"
)

// ParamType is the declared type of a parameter value
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// ParameterSpec describes a single endpoint parameter
type ParameterSpec struct {
	Name     string        `json:"name" yaml:"name"`
	Type     ParamType     `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool          `json:"required,omitempty" yaml:"required,omitempty"`
	In       ParamLocation `json:"in" yaml:"in"`
	Default  interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Enum     []string      `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// RetryConfig controls the retry-with-backoff policy for an endpoint or provider
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`
	BackoffFactor time.Duration `json:"backoff_factor" yaml:"backoff_factor"`
	MaxDelay      time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	// RetryOnStatus lists additional retryable statuses beyond 5xx
	RetryOnStatus []int `json:"retry_on_status,omitempty" yaml:"retry_on_status,omitempty"`
}

// DefaultRetryConfig returns the retry policy applied when a provider
// specifies none
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BackoffFactor: 500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		RetryOnStatus: []int{408, 429},
	}
}

// IsRetryableStatus reports whether a status code is in the retryable set.
// Server errors are always retryable; 4xx only when explicitly listed.
func (r RetryConfig) IsRetryableStatus(statusCode int) bool {
	if statusCode >= 500 {
		return true
	}
	for _, code := range r.RetryOnStatus {
		if statusCode == code {
			return true
		}
	}
	return false
}

// EndpointDefinition describes one named HTTP operation on a provider
type EndpointDefinition struct {
	Path       string            `json:"path" yaml:"path"`
	Method     string            `json:"method" yaml:"method"`
	Parameters []ParameterSpec   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Per-endpoint overrides; nil means inherit the provider settings
	Timeout   time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry     *RetryConfig      `json:"retry,omitempty" yaml:"retry,omitempty"`
	RateLimit *ratelimit.Config `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// AuthType selects the authentication strategy for a provider
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
	AuthBasic  AuthType = "basic"
	AuthOAuth2 AuthType = "oauth2"
	AuthJWT    AuthType = "jwt"
	AuthCustom AuthType = "custom"
)

// BearerAuth carries the settings for bearer token authentication
type BearerAuth struct {
	Token  string `json:"token" yaml:"token"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// APIKeyAuth carries the settings for API key authentication. In selects
// whether the key travels as a header or a query parameter.
type APIKeyAuth struct {
	Key  string        `json:"key" yaml:"key"`
	Name string        `json:"name" yaml:"name"`
	In   ParamLocation `json:"in,omitempty" yaml:"in,omitempty"`
}

// BasicAuth carries the settings for HTTP Basic authentication
type BasicAuth struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// OAuth2Auth carries the settings for the client-credentials grant
type OAuth2Auth struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	TokenURL     string   `json:"token_url" yaml:"token_url"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// JWTAuth carries a preformed JWT sent as a bearer credential
type JWTAuth struct {
	Token string `json:"token" yaml:"token"`
}

// CustomAuth carries a fixed header set added verbatim to every request
type CustomAuth struct {
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// AuthConfig is a tagged union over the authentication strategies; only the
// variant matching Type is consulted
type AuthConfig struct {
	Type   AuthType    `json:"type" yaml:"type"`
	Bearer *BearerAuth `json:"bearer,omitempty" yaml:"bearer,omitempty"`
	APIKey *APIKeyAuth `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Basic  *BasicAuth  `json:"basic,omitempty" yaml:"basic,omitempty"`
	OAuth2 *OAuth2Auth `json:"oauth2,omitempty" yaml:"oauth2,omitempty"`
	JWT    *JWTAuth    `json:"jwt,omitempty" yaml:"jwt,omitempty"`
	Custom *CustomAuth `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// VerificationType selects the webhook signature scheme
type VerificationType string

const (
	VerifyHMACSHA256 VerificationType = "hmac-sha256"
	VerifyHMACSHA1   VerificationType = "hmac-sha1"
	VerifyCustom     VerificationType = "custom"
)

// WebhookConfig describes one inbound event-receiving surface on a provider
type WebhookConfig struct {
	Path             string           `json:"path" yaml:"path"`
	VerifySignature  bool             `json:"verify_signature" yaml:"verify_signature"`
	VerificationType VerificationType `json:"verification_type,omitempty" yaml:"verification_type,omitempty"`
	Secret           string           `json:"secret,omitempty" yaml:"secret,omitempty"`

	SignatureHeader   string `json:"signature_header,omitempty" yaml:"signature_header,omitempty"`
	SignaturePrefix   string `json:"signature_prefix,omitempty" yaml:"signature_prefix,omitempty"`
	SignatureEncoding string `json:"signature_encoding,omitempty" yaml:"signature_encoding,omitempty"`
	TimestampHeader   string `json:"timestamp_header,omitempty" yaml:"timestamp_header,omitempty"`
	// ReplayTolerance is the maximum allowed clock skew between the signed
	// timestamp and receipt
	ReplayTolerance time.Duration `json:"replay_tolerance,omitempty" yaml:"replay_tolerance,omitempty"`

	// EventTypeHeader names a header carrying the event type (GitHub style).
	// EventTypeField is a dot-separated payload path (Stripe style); the
	// header wins when both are set and the header is present. Defaults to
	// the "type" payload field.
	EventTypeHeader string `json:"event_type_header,omitempty" yaml:"event_type_header,omitempty"`
	EventTypeField  string `json:"event_type_field,omitempty" yaml:"event_type_field,omitempty"`

	// EventTypes restricts routing to the listed types; empty means all
	// types are routed
	EventTypes  []string          `json:"event_types,omitempty" yaml:"event_types,omitempty"`
	RateLimit   *ratelimit.Config `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	IPAllowlist []string          `json:"ip_allowlist,omitempty" yaml:"ip_allowlist,omitempty"`
}

// Recognizes reports whether an event type should be routed. An empty
// EventTypes list recognizes everything.
func (w *WebhookConfig) Recognizes(eventType string) bool {
	if len(w.EventTypes) == 0 {
		return true
	}
	for _, t := range w.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// ProviderConfig is the complete description of one provider. It is immutable
// after Validate; the dispatch and ingestion engines only ever read it.
type ProviderConfig struct {
	Name           string            `json:"name" yaml:"name"`
	BaseURL        string            `json:"base_url" yaml:"base_url"`
	DefaultHeaders map[string]string `json:"default_headers,omitempty" yaml:"default_headers,omitempty"`
	DefaultTimeout time.Duration     `json:"default_timeout,omitempty" yaml:"default_timeout,omitempty"`

	Auth      AuthConfig                     `json:"auth" yaml:"auth"`
	Endpoints map[string]*EndpointDefinition `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Webhooks  map[string]*WebhookConfig      `json:"webhooks,omitempty" yaml:"webhooks,omitempty"`

	Retry     *RetryConfig      `json:"retry,omitempty" yaml:"retry,omitempty"`
	RateLimit *ratelimit.Config `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// Endpoint returns the named endpoint definition, or nil when unknown
func (p *ProviderConfig) Endpoint(name string) *EndpointDefinition {
	return p.Endpoints[name]
}

// Webhook returns the named webhook configuration, or nil when unknown
func (p *ProviderConfig) Webhook(name string) *WebhookConfig {
	return p.Webhooks[name]
}

// RetryFor resolves the retry policy for an endpoint, preferring the
// endpoint override, then the provider policy, then package defaults
func (p *ProviderConfig) RetryFor(endpoint *EndpointDefinition) RetryConfig {
	if endpoint != nil && endpoint.Retry != nil {
		return *endpoint.Retry
	}
	if p.Retry != nil {
		return *p.Retry
	}
	return DefaultRetryConfig()
}

// TimeoutFor resolves the per-attempt timeout for an endpoint
func (p *ProviderConfig) TimeoutFor(endpoint *EndpointDefinition) time.Duration {
	if endpoint != nil && endpoint.Timeout > 0 {
		return endpoint.Timeout
	}
	if p.DefaultTimeout > 0 {
		return p.DefaultTimeout
	}
	return 30 * time.Second
}
