package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"apibridge/circuitbreaker"
	"apibridge/common/errors"
	"apibridge/common/httpclient"
	"apibridge/common/logging"
	"apibridge/config"
)

// Manager caches client-credentials tokens keyed by client id and token
// endpoint. Every provider sharing the same credentials shares one token,
// and concurrent callers hitting a cold cache trigger exactly one request
// to the token endpoint.
type Manager struct {
	httpClient *http.Client
	store      TokenStore
	breaker    *circuitbreaker.Breaker
	logger     logging.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// cacheEntry serializes refresh per cache key. The per-entry mutex is held
// across the token request so concurrent cold callers block until the first
// one has populated the cache.
type cacheEntry struct {
	mu    sync.Mutex
	token *Token
}

// ManagerOption customizes manager construction
type ManagerOption func(*Manager)

// WithHTTPClient overrides the HTTP client used for token requests
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = client }
}

// WithStore attaches a persistent token store consulted before the token
// endpoint
func WithStore(store TokenStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithLogger overrides the manager logger
func WithLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a token manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		httpClient: httpclient.NewWithTimeout(30 * time.Second),
		logger:     logging.GetGlobalLogger(),
		entries:    make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker = circuitbreaker.New("oauth2-token", circuitbreaker.OAuthConfig, m.logger)
	return m
}

// cacheKey identifies a credential. Two providers configured with the same
// client id and token endpoint share a token.
func cacheKey(cfg *config.OAuth2Auth) string {
	return cfg.ClientID + "\x00" + cfg.TokenURL
}

// Token returns a valid access token for the given credentials, fetching or
// refreshing as needed. A refresh failure while a previously issued token is
// still inside its lifetime returns that token rather than an error.
func (m *Manager) Token(ctx context.Context, cfg *config.OAuth2Auth) (*Token, error) {
	if cfg == nil {
		return nil, errors.AuthError("oauth2 credentials are not configured")
	}

	entry := m.entry(cacheKey(cfg))

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.token.fresh() {
		return entry.token, nil
	}

	// A shared store may already hold a token fetched by another process.
	if m.store != nil {
		if stored, err := m.store.Load(ctx, cacheKey(cfg)); err != nil {
			m.logger.Warn("Failed to load token from store",
				logging.Field{Key: "client_id", Value: cfg.ClientID},
				logging.Field{Key: "error", Value: err.Error()},
			)
		} else if stored.fresh() {
			entry.token = stored
			return stored, nil
		}
	}

	token, err := m.requestToken(ctx, cfg)
	if err != nil {
		// Keep serving the old token while it is still valid; the next
		// caller past its expiry will surface the error.
		if entry.token.Usable() {
			m.logger.Warn("Token refresh failed, serving cached token until expiry",
				logging.Field{Key: "client_id", Value: cfg.ClientID},
				logging.Field{Key: "error", Value: err.Error()},
			)
			return entry.token, nil
		}
		return nil, err
	}

	entry.token = token

	if m.store != nil {
		if err := m.store.Save(ctx, cacheKey(cfg), token); err != nil {
			m.logger.Warn("Failed to persist token",
				logging.Field{Key: "client_id", Value: cfg.ClientID},
				logging.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	return token, nil
}

// Invalidate drops the cached token for the given credentials, forcing the
// next call to fetch a fresh one
func (m *Manager) Invalidate(ctx context.Context, cfg *config.OAuth2Auth) {
	entry := m.entry(cacheKey(cfg))

	entry.mu.Lock()
	entry.token = nil
	entry.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, cacheKey(cfg)); err != nil {
			m.logger.Warn("Failed to delete token from store",
				logging.Field{Key: "client_id", Value: cfg.ClientID},
				logging.Field{Key: "error", Value: err.Error()},
			)
		}
	}
}

func (m *Manager) entry(key string) *cacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, exists := m.entries[key]
	if !exists {
		entry = &cacheEntry{}
		m.entries[key] = entry
	}
	return entry
}

func (m *Manager) requestToken(ctx context.Context, cfg *config.OAuth2Auth) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)
	if len(cfg.Scopes) > 0 {
		data.Set("scope", strings.Join(cfg.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.AuthError(fmt.Sprintf("failed to create token request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp *http.Response
	err = m.breaker.Execute(ctx, func() error {
		var httpErr error
		resp, httpErr = m.httpClient.Do(req)
		return httpErr
	})
	if err != nil {
		return nil, errors.AuthError(fmt.Sprintf("token request failed: %v", err))
	}
	defer resp.Body.Close()

	var tokenResp tokenResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return nil, errors.AuthError(fmt.Sprintf("failed to decode token response: %v", decodeErr))
	}

	if resp.StatusCode != http.StatusOK {
		if tokenResp.Error != "" {
			return nil, errors.AuthError(fmt.Sprintf("token endpoint returned %s: %s", tokenResp.Error, tokenResp.Description))
		}
		return nil, errors.AuthError(fmt.Sprintf("token endpoint returned status %d", resp.StatusCode))
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.AuthError("token endpoint returned no access token")
	}

	lifetime := defaultLifetime
	if tokenResp.ExpiresIn > 0 {
		lifetime = time.Duration(tokenResp.ExpiresIn) * time.Second
	}

	tokenType := tokenResp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	m.logger.Debug("Fetched access token",
		logging.Field{Key: "client_id", Value: cfg.ClientID},
		logging.Field{Key: "expires_in", Value: lifetime.String()},
	)

	return &Token{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenType,
		ExpiresAt:   time.Now().Add(lifetime),
		Scope:       tokenResp.Scope,
	}, nil
}
