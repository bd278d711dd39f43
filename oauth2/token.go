// Package oauth2 implements client-credentials token acquisition with a
// process-wide cache. Tokens are fetched lazily, shared across every caller
// using the same client id and token endpoint, and refreshed shortly before
// expiry so requests never carry a stale credential.
package oauth2

import (
	"time"
)

// tokenResponse maps the token endpoint response fields from RFC 6749
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
	Error       string `json:"error,omitempty"`
	Description string `json:"error_description,omitempty"`
}

// Token is a cached access token with its computed expiry
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Scope       string    `json:"scope,omitempty"`
}

const (
	// refreshBuffer is how long before expiry a token is refreshed
	refreshBuffer = time.Minute
	// defaultLifetime applies when the token endpoint omits expires_in
	defaultLifetime = time.Hour
)

// Usable reports whether the token can still be attached to a request.
// A token inside the refresh buffer is stale for caching purposes but
// remains usable as a fallback when a refresh attempt fails.
func (t *Token) Usable() bool {
	return t != nil && t.AccessToken != "" && time.Now().Before(t.ExpiresAt)
}

// fresh reports whether the token is valid beyond the refresh buffer
func (t *Token) fresh() bool {
	return t != nil && t.AccessToken != "" && time.Now().Add(refreshBuffer).Before(t.ExpiresAt)
}
