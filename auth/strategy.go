// Package auth applies provider credentials to outbound requests.
//
// Each authentication scheme is a Strategy selected once from the provider
// configuration. Strategies never mutate shared configuration; per-call
// credential overrides are handled by building a strategy from a merged
// copy of the auth settings.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"apibridge/common/errors"
	"apibridge/config"
	"apibridge/oauth2"
)

var timeNow = time.Now

// Strategy attaches credentials to an outbound request. Apply runs after the
// request is fully built so auth-supplied headers take precedence over
// defaults, endpoint headers, and caller arguments.
type Strategy interface {
	// Apply adds the credentials to the request
	Apply(ctx context.Context, req *http.Request) error
	// Type returns the auth scheme identifier
	Type() config.AuthType
}

// NewStrategy builds the strategy for an auth configuration. The oauth2
// manager is only required for the oauth2 scheme and may be nil otherwise.
func NewStrategy(cfg config.AuthConfig, tokens *oauth2.Manager) (Strategy, error) {
	switch cfg.Type {
	case "", config.AuthNone:
		return noneStrategy{}, nil
	case config.AuthBearer:
		if cfg.Bearer == nil {
			return nil, errors.ConfigError("bearer auth settings are missing")
		}
		return &bearerStrategy{settings: *cfg.Bearer}, nil
	case config.AuthAPIKey:
		if cfg.APIKey == nil {
			return nil, errors.ConfigError("api key auth settings are missing")
		}
		return &apiKeyStrategy{settings: *cfg.APIKey}, nil
	case config.AuthBasic:
		if cfg.Basic == nil {
			return nil, errors.ConfigError("basic auth settings are missing")
		}
		return &basicStrategy{settings: *cfg.Basic}, nil
	case config.AuthOAuth2:
		if cfg.OAuth2 == nil {
			return nil, errors.ConfigError("oauth2 auth settings are missing")
		}
		if tokens == nil {
			return nil, errors.ConfigError("oauth2 auth requires a token manager")
		}
		settings := *cfg.OAuth2
		return &oauth2Strategy{settings: settings, tokens: tokens}, nil
	case config.AuthJWT:
		if cfg.JWT == nil {
			return nil, errors.ConfigError("jwt auth settings are missing")
		}
		return &jwtStrategy{settings: *cfg.JWT}, nil
	case config.AuthCustom:
		if cfg.Custom == nil {
			return nil, errors.ConfigError("custom auth settings are missing")
		}
		headers := make(map[string]string, len(cfg.Custom.Headers))
		for k, v := range cfg.Custom.Headers {
			headers[k] = v
		}
		return &customStrategy{headers: headers}, nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported auth type: %s", cfg.Type))
	}
}

type noneStrategy struct{}

func (noneStrategy) Apply(context.Context, *http.Request) error { return nil }
func (noneStrategy) Type() config.AuthType                      { return config.AuthNone }

type bearerStrategy struct {
	settings config.BearerAuth
}

func (s *bearerStrategy) Type() config.AuthType { return config.AuthBearer }

func (s *bearerStrategy) Apply(_ context.Context, req *http.Request) error {
	if s.settings.Token == "" {
		return errors.AuthError("bearer token is empty")
	}
	prefix := s.settings.Prefix
	if prefix == "" {
		prefix = "Bearer"
	}
	req.Header.Set("Authorization", prefix+" "+s.settings.Token)
	return nil
}

type apiKeyStrategy struct {
	settings config.APIKeyAuth
}

func (s *apiKeyStrategy) Type() config.AuthType { return config.AuthAPIKey }

func (s *apiKeyStrategy) Apply(_ context.Context, req *http.Request) error {
	if s.settings.Key == "" {
		return errors.AuthError("api key is empty")
	}
	name := s.settings.Name
	if name == "" {
		name = "X-API-Key"
	}

	switch s.settings.In {
	case "", config.InHeader:
		req.Header.Set(name, s.settings.Key)
	case config.InQuery:
		query := req.URL.Query()
		query.Set(name, s.settings.Key)
		req.URL.RawQuery = query.Encode()
	default:
		return errors.ConfigError(fmt.Sprintf("invalid api key location: %s", s.settings.In))
	}
	return nil
}

type basicStrategy struct {
	settings config.BasicAuth
}

func (s *basicStrategy) Type() config.AuthType { return config.AuthBasic }

func (s *basicStrategy) Apply(_ context.Context, req *http.Request) error {
	if s.settings.Username == "" || s.settings.Password == "" {
		return errors.AuthError("basic auth credentials are empty")
	}
	req.SetBasicAuth(s.settings.Username, s.settings.Password)
	return nil
}

type oauth2Strategy struct {
	settings config.OAuth2Auth
	tokens   *oauth2.Manager
}

func (s *oauth2Strategy) Type() config.AuthType { return config.AuthOAuth2 }

func (s *oauth2Strategy) Apply(ctx context.Context, req *http.Request) error {
	token, err := s.tokens.Token(ctx, &s.settings)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token.TokenType+" "+token.AccessToken)
	return nil
}

type jwtStrategy struct {
	settings config.JWTAuth
}

func (s *jwtStrategy) Type() config.AuthType { return config.AuthJWT }

func (s *jwtStrategy) Apply(_ context.Context, req *http.Request) error {
	if s.settings.Token == "" {
		return errors.AuthError("jwt token is empty")
	}

	// Reject structurally broken or already-expired tokens before the
	// provider does. The signature is the provider's to verify.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.settings.Token, claims); err != nil {
		return errors.AuthError(fmt.Sprintf("malformed jwt: %v", err))
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Time.Before(timeNow()) {
		return errors.AuthError("jwt token is expired")
	}

	req.Header.Set("Authorization", "Bearer "+s.settings.Token)
	return nil
}

type customStrategy struct {
	headers map[string]string
}

func (s *customStrategy) Type() config.AuthType { return config.AuthCustom }

func (s *customStrategy) Apply(_ context.Context, req *http.Request) error {
	if len(s.headers) == 0 {
		return errors.AuthError("custom auth headers are empty")
	}
	for name, value := range s.headers {
		req.Header.Set(name, value)
	}
	return nil
}

// MergeOverrides returns a copy of the auth configuration with non-empty
// override fields replacing the configured values. The original is never
// touched, so per-call overrides cannot leak between requests.
func MergeOverrides(base config.AuthConfig, overrides *config.AuthConfig) config.AuthConfig {
	if overrides == nil {
		return base
	}

	merged := base
	if overrides.Type != "" {
		merged.Type = overrides.Type
	}
	if overrides.Bearer != nil {
		merged.Bearer = overrides.Bearer
	}
	if overrides.APIKey != nil {
		merged.APIKey = overrides.APIKey
	}
	if overrides.Basic != nil {
		merged.Basic = overrides.Basic
	}
	if overrides.OAuth2 != nil {
		merged.OAuth2 = overrides.OAuth2
	}
	if overrides.JWT != nil {
		merged.JWT = overrides.JWT
	}
	if overrides.Custom != nil {
		merged.Custom = overrides.Custom
	}
	return merged
}
