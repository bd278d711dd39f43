package config

import (
	"fmt"
	"regexp"
	"strings"

	"apibridge/common/errors"
	"apibridge/common/validation"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// pathPlaceholders extracts the ordered placeholder names from a path template
func pathPlaceholders(path string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

var validMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// Validate checks the provider configuration for structural errors. It is
// called once at registration; a provider that fails validation never
// reaches the dispatch or ingestion engines.
func (p *ProviderConfig) Validate() error {
	v := validation.NewValidator()

	v.RequireString(p.Name, "name")
	v.RequireURL(p.BaseURL, "base_url")

	p.Auth.validate(v)

	for name, endpoint := range p.Endpoints {
		if endpoint == nil {
			v.AddError("endpoints.%s: definition is nil", name)
			continue
		}
		endpoint.validate(v, name)
	}

	for name, webhook := range p.Webhooks {
		if webhook == nil {
			v.AddError("webhooks.%s: configuration is nil", name)
			continue
		}
		webhook.validate(v, name)
	}

	if p.RateLimit != nil {
		if err := p.RateLimit.Validate(); err != nil {
			v.AddError("rate_limit: %v", err)
		}
	}
	if p.Retry != nil && p.Retry.MaxRetries < 0 {
		v.AddError("retry.max_retries must not be negative")
	}

	if v.HasErrors() {
		return errors.ConfigError(fmt.Sprintf("provider %q: %v", p.Name, v.Error()))
	}
	return nil
}

func (e *EndpointDefinition) validate(v *validation.Validator, name string) {
	field := func(suffix string) string { return fmt.Sprintf("endpoints.%s.%s", name, suffix) }

	v.RequireString(e.Path, field("path"))
	if e.Path != "" && !strings.HasPrefix(e.Path, "/") {
		v.AddError("%s must start with /", field("path"))
	}

	v.RequireOneOf(strings.ToUpper(e.Method), validMethods, field("method"))

	// Path placeholders and declared path parameters must match exactly
	// in both directions, otherwise dispatch could only fail at call time.
	placeholders := pathPlaceholders(e.Path)
	declared := make(map[string]bool)
	seen := make(map[string]bool)
	for _, param := range e.Parameters {
		if seen[param.Name] {
			v.AddError("%s declared more than once", field("parameters."+param.Name))
		}
		seen[param.Name] = true
		param.validate(v, field("parameters."+param.Name))
		if param.In == InPath {
			declared[param.Name] = true
		}
	}
	for _, ph := range placeholders {
		if !declared[ph] {
			v.AddError("%s: placeholder {%s} has no matching path parameter", field("path"), ph)
		}
	}
	inTemplate := make(map[string]bool)
	for _, ph := range placeholders {
		inTemplate[ph] = true
	}
	for _, param := range e.Parameters {
		if param.In == InPath && !inTemplate[param.Name] {
			v.AddError("%s: no {%s} placeholder in %q", field("parameters."+param.Name), param.Name, e.Path)
		}
	}

	if e.Retry != nil && e.Retry.MaxRetries < 0 {
		v.AddError("%s must not be negative", field("retry.max_retries"))
	}
	if e.RateLimit != nil {
		if err := e.RateLimit.Validate(); err != nil {
			v.AddError("%s: %v", field("rate_limit"), err)
		}
	}
}

func (p ParameterSpec) validate(v *validation.Validator, field string) {
	v.RequireString(p.Name, field+".name")
	switch p.In {
	case InPath, InQuery, InHeader, InBody:
	case "":
		v.AddError("%s.in is required", field)
	default:
		v.AddError("%s.in: unknown location %q", field, p.In)
	}
	switch p.Type {
	case "", TypeString, TypeInteger, TypeBoolean, TypeArray, TypeObject:
	default:
		v.AddError("%s.type: unknown type %q", field, p.Type)
	}
	// Optional path parameters would leave the template unresolved and a
	// default would mask missing arguments.
	if p.In == InPath && !p.Required {
		v.AddError("%s: path parameters must be required", field)
	}
}

func (a *AuthConfig) validate(v *validation.Validator) {
	switch a.Type {
	case "", AuthNone:
	case AuthBearer:
		if a.Bearer == nil {
			v.AddError("auth.bearer settings are required")
		} else {
			v.RequireString(a.Bearer.Token, "auth.bearer.token")
		}
	case AuthAPIKey:
		if a.APIKey == nil {
			v.AddError("auth.api_key settings are required")
		} else {
			v.RequireString(a.APIKey.Key, "auth.api_key.key")
			v.RequireString(a.APIKey.Name, "auth.api_key.name")
			switch a.APIKey.In {
			case "", InHeader, InQuery:
			default:
				v.AddError("auth.api_key.in must be header or query")
			}
		}
	case AuthBasic:
		if a.Basic == nil {
			v.AddError("auth.basic settings are required")
		} else {
			v.RequireString(a.Basic.Username, "auth.basic.username")
			v.RequireString(a.Basic.Password, "auth.basic.password")
		}
	case AuthOAuth2:
		if a.OAuth2 == nil {
			v.AddError("auth.oauth2 settings are required")
		} else {
			v.RequireString(a.OAuth2.ClientID, "auth.oauth2.client_id")
			v.RequireString(a.OAuth2.ClientSecret, "auth.oauth2.client_secret")
			v.RequireURL(a.OAuth2.TokenURL, "auth.oauth2.token_url")
		}
	case AuthJWT:
		if a.JWT == nil {
			v.AddError("auth.jwt settings are required")
		} else {
			v.RequireString(a.JWT.Token, "auth.jwt.token")
		}
	case AuthCustom:
		if a.Custom == nil || len(a.Custom.Headers) == 0 {
			v.AddError("auth.custom.headers requires at least one header")
		}
	default:
		v.AddError("auth.type: unknown auth type %q", a.Type)
	}
}

func (w *WebhookConfig) validate(v *validation.Validator, name string) {
	field := func(suffix string) string { return fmt.Sprintf("webhooks.%s.%s", name, suffix) }

	v.RequireString(w.Path, field("path"))
	if w.Path != "" && !strings.HasPrefix(w.Path, "/") {
		v.AddError("%s must start with /", field("path"))
	}

	if w.VerifySignature {
		switch w.VerificationType {
		case VerifyHMACSHA256, VerifyHMACSHA1:
			v.RequireString(w.Secret, field("secret"))
			v.RequireString(w.SignatureHeader, field("signature_header"))
		case VerifyCustom:
		case "":
			v.AddError("%s is required when verify_signature is set", field("verification_type"))
		default:
			v.AddError("%s: unknown verification type %q", field("verification_type"), w.VerificationType)
		}
		switch w.SignatureEncoding {
		case "", "hex", "base64":
		default:
			v.AddError("%s must be hex or base64", field("signature_encoding"))
		}
		if w.ReplayTolerance < 0 {
			v.AddError("%s must not be negative", field("replay_tolerance"))
		}
		if w.ReplayTolerance > 0 && w.TimestampHeader == "" {
			v.AddError("%s is required when replay_tolerance is set", field("timestamp_header"))
		}
	}

	if w.RateLimit != nil {
		if err := w.RateLimit.Validate(); err != nil {
			v.AddError("%s: %v", field("rate_limit"), err)
		}
	}
}
