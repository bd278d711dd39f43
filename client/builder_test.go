package client

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apibridge/common/errors"
	"apibridge/config"
)

func githubProvider() *config.ProviderConfig {
	return &config.ProviderConfig{
		Name:    "github",
		BaseURL: "https://api.github.com",
		DefaultHeaders: map[string]string{
			"Accept": "application/vnd.github+json",
		},
		Endpoints: map[string]*config.EndpointDefinition{
			"get_user_by_name": {
				Path:   "/user/{username}",
				Method: "GET",
				Parameters: []config.ParameterSpec{
					{Name: "username", Type: config.TypeString, Required: true, In: config.InPath},
				},
			},
			"update_user": {
				Path:   "/users/{user_id}",
				Method: "PATCH",
				Parameters: []config.ParameterSpec{
					{Name: "user_id", Type: config.TypeString, Required: true, In: config.InPath},
					{Name: "name", Type: config.TypeString, In: config.InBody},
					{Name: "notify", Type: config.TypeBoolean, In: config.InQuery},
				},
			},
		},
	}
}

func TestBuildPathSubstitution(t *testing.T) {
	p := githubProvider()
	parts, err := buildRequest(p, p.Endpoints["get_user_by_name"], map[string]interface{}{"username": "octo"}, false)
	require.NoError(t, err)

	assert.Equal(t, "GET", parts.Method)
	assert.Equal(t, "/user/octo", parts.Path)
	assert.Empty(t, parts.Query)
	assert.Empty(t, parts.Body)
}

func TestBuildRoutesAllLocations(t *testing.T) {
	p := githubProvider()
	parts, err := buildRequest(p, p.Endpoints["update_user"], map[string]interface{}{
		"user_id": "123",
		"name":    "John",
		"notify":  true,
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "/users/123", parts.Path)
	assert.Equal(t, "true", parts.Query.Get("notify"))
	assert.Equal(t, map[string]interface{}{"name": "John"}, parts.Body)
}

func TestBuildPathValueEscaped(t *testing.T) {
	p := githubProvider()
	parts, err := buildRequest(p, p.Endpoints["get_user_by_name"], map[string]interface{}{"username": "a b/c"}, false)
	require.NoError(t, err)
	assert.Equal(t, "/user/a%20b%2Fc", parts.Path)
}

func TestBuildMissingRequired(t *testing.T) {
	p := githubProvider()
	_, err := buildRequest(p, p.Endpoints["get_user_by_name"], map[string]interface{}{}, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeParameter))
	assert.Contains(t, err.Error(), "username")
}

func TestBuildUnexpectedArgumentStrict(t *testing.T) {
	p := githubProvider()
	_, err := buildRequest(p, p.Endpoints["get_user_by_name"], map[string]interface{}{
		"username": "octo",
		"verbose":  true,
	}, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeParameter))
	assert.Contains(t, err.Error(), "verbose")
}

func TestBuildUnexpectedArgumentPermissive(t *testing.T) {
	p := githubProvider()
	parts, err := buildRequest(p, p.Endpoints["update_user"], map[string]interface{}{
		"user_id": "123",
		"page":    2,
		"bio":     "hello",
	}, true)
	require.NoError(t, err)

	// Known query conventions go to the query, the rest to the body.
	assert.Equal(t, "2", parts.Query.Get("page"))
	assert.Equal(t, "hello", parts.Body["bio"])
}

func TestBuildDefaultsAndEnum(t *testing.T) {
	p := githubProvider()
	p.Endpoints["list_repos"] = &config.EndpointDefinition{
		Path:   "/repos",
		Method: "GET",
		Parameters: []config.ParameterSpec{
			{Name: "visibility", Type: config.TypeString, In: config.InQuery, Default: "public", Enum: []string{"public", "private", "all"}},
		},
	}

	parts, err := buildRequest(p, p.Endpoints["list_repos"], map[string]interface{}{}, false)
	require.NoError(t, err)
	assert.Equal(t, "public", parts.Query.Get("visibility"))

	_, err = buildRequest(p, p.Endpoints["list_repos"], map[string]interface{}{"visibility": "secret"}, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeParameter))
}

func TestBuildArrayQueryRepetition(t *testing.T) {
	p := githubProvider()
	p.Endpoints["search"] = &config.EndpointDefinition{
		Path:   "/search",
		Method: "GET",
		Parameters: []config.ParameterSpec{
			{Name: "label", Type: config.TypeArray, In: config.InQuery},
		},
	}

	parts, err := buildRequest(p, p.Endpoints["search"], map[string]interface{}{
		"label": []interface{}{"bug", "help wanted"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "help wanted"}, parts.Query["label"])
}

func TestBuildTypeChecks(t *testing.T) {
	p := githubProvider()
	ep := p.Endpoints["update_user"]

	_, err := buildRequest(p, ep, map[string]interface{}{"user_id": "1", "notify": "yes"}, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeParameter))

	// Integral JSON numbers satisfy integer parameters.
	p.Endpoints["get_issue"] = &config.EndpointDefinition{
		Path:   "/issues/{number}",
		Method: "GET",
		Parameters: []config.ParameterSpec{
			{Name: "number", Type: config.TypeInteger, Required: true, In: config.InPath},
		},
	}
	parts, err := buildRequest(p, p.Endpoints["get_issue"], map[string]interface{}{"number": float64(42)}, false)
	require.NoError(t, err)
	assert.Equal(t, "/issues/42", parts.Path)

	_, err = buildRequest(p, p.Endpoints["get_issue"], map[string]interface{}{"number": 4.5}, false)
	require.Error(t, err)
}

func TestBuildHeaderLayering(t *testing.T) {
	p := githubProvider()
	p.Endpoints["get_user_by_name"].Headers = map[string]string{
		"Accept":       "application/json",
		"X-Api-Flavor": "v2",
	}

	parts, err := buildRequest(p, p.Endpoints["get_user_by_name"], map[string]interface{}{"username": "octo"}, false)
	require.NoError(t, err)

	// Endpoint headers override provider defaults.
	assert.Equal(t, "application/json", parts.Header.Get("Accept"))
	assert.Equal(t, "v2", parts.Header.Get("X-Api-Flavor"))
}

func TestHTTPRequestBody(t *testing.T) {
	p := githubProvider()
	parts, err := buildRequest(p, p.Endpoints["update_user"], map[string]interface{}{
		"user_id": "123",
		"name":    "John",
	}, false)
	require.NoError(t, err)

	req, err := parts.HTTPRequest(context.Background(), p.BaseURL)
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/users/123", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "John", body["name"])
}

func TestHTTPRequestNoBody(t *testing.T) {
	p := githubProvider()
	parts, err := buildRequest(p, p.Endpoints["get_user_by_name"], map[string]interface{}{"username": "octo"}, false)
	require.NoError(t, err)

	req, err := parts.HTTPRequest(context.Background(), p.BaseURL)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Content-Type"))
	assert.Equal(t, "https://api.github.com/user/octo", req.URL.String())
}
