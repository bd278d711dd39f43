package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"apibridge/common/errors"
	"apibridge/config"
)

// RequestParts is the classified form of a call before transport: every
// caller argument routed to its declared location
type RequestParts struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
	Body   map[string]interface{}
	// BodyValue, when set, is encoded as the whole request body instead of
	// the accumulated Body map. Raw calls use it to send arbitrary payloads.
	BodyValue interface{}
}

// queryConventions are argument names assumed to be query parameters when an
// endpoint has no spec for them and the builder runs in permissive mode
var queryConventions = map[string]bool{
	"page":     true,
	"per_page": true,
	"limit":    true,
	"offset":   true,
	"sort":     true,
	"order":    true,
	"q":        true,
	"filter":   true,
	"cursor":   true,
}

// buildRequest routes the flat argument bag into path, query, header, and
// body per the endpoint's parameter specs. In strict mode (the default) an
// argument with no spec is a parameter error; in permissive mode it is
// assigned to the query when its name matches a common query convention and
// to the body otherwise.
func buildRequest(provider *config.ProviderConfig, endpoint *config.EndpointDefinition, args map[string]interface{}, permissive bool) (*RequestParts, error) {
	parts := &RequestParts{
		Method: strings.ToUpper(endpoint.Method),
		Path:   endpoint.Path,
		Header: make(http.Header),
		Query:  make(url.Values),
		Body:   make(map[string]interface{}),
	}

	// Defaults merge beneath endpoint headers; caller header arguments and
	// the auth strategy are layered on top later.
	for name, value := range provider.DefaultHeaders {
		parts.Header.Set(name, value)
	}
	for name, value := range endpoint.Headers {
		parts.Header.Set(name, value)
	}

	consumed := make(map[string]bool, len(args))

	for _, spec := range endpoint.Parameters {
		value, supplied := args[spec.Name]
		if !supplied {
			if spec.Default != nil {
				value = spec.Default
			} else if spec.Required {
				return nil, errors.ParameterError(fmt.Sprintf("missing required parameter %q", spec.Name))
			} else {
				continue
			}
		}
		consumed[spec.Name] = true

		if err := checkType(spec, value); err != nil {
			return nil, err
		}
		if err := checkEnum(spec, value); err != nil {
			return nil, err
		}

		switch spec.In {
		case config.InPath:
			s, err := stringify(spec.Name, value)
			if err != nil {
				return nil, err
			}
			parts.Path = strings.ReplaceAll(parts.Path, "{"+spec.Name+"}", url.PathEscape(s))
		case config.InQuery:
			if err := appendQuery(parts.Query, spec.Name, value); err != nil {
				return nil, err
			}
		case config.InHeader:
			s, err := stringify(spec.Name, value)
			if err != nil {
				return nil, err
			}
			parts.Header.Set(spec.Name, s)
		case config.InBody:
			parts.Body[spec.Name] = value
		default:
			return nil, errors.ConfigError(fmt.Sprintf("parameter %q has unknown location %q", spec.Name, spec.In))
		}
	}

	for name, value := range args {
		if consumed[name] {
			continue
		}
		if !permissive {
			return nil, errors.ParameterError(fmt.Sprintf("unexpected argument %q", name))
		}
		if queryConventions[name] {
			if err := appendQuery(parts.Query, name, value); err != nil {
				return nil, err
			}
		} else {
			parts.Body[name] = value
		}
	}

	// Load-time validation guarantees the placeholder/parameter pairing, so
	// an unresolved token here means the endpoint bypassed registration.
	if remaining := placeholderPattern.FindString(parts.Path); remaining != "" {
		return nil, errors.ConfigError(fmt.Sprintf("unresolved path placeholder %s in %q", remaining, endpoint.Path))
	}

	return parts, nil
}

var placeholderPattern = regexp.MustCompile(`\{[a-zA-Z_][a-zA-Z0-9_]*\}`)

// HTTPRequest materializes the parts into an http.Request against the
// provider base URL. A fresh request is built per attempt so the body reader
// is never shared between retries.
func (p *RequestParts) HTTPRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	full := strings.TrimRight(baseURL, "/") + p.Path

	var payload interface{}
	switch {
	case p.BodyValue != nil:
		payload = p.BodyValue
	case len(p.Body) > 0:
		payload = p.Body
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.ParameterError(fmt.Sprintf("failed to encode request body: %v", err))
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, full, body)
	if err != nil {
		return nil, errors.TransportError("failed to create request", err)
	}

	req.URL.RawQuery = p.Query.Encode()
	for name, values := range p.Header {
		req.Header[name] = append([]string(nil), values...)
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// appendQuery adds a value to the query string, repeating the key per item
// for arrays
func appendQuery(query url.Values, name string, value interface{}) error {
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			s, err := stringify(name, item)
			if err != nil {
				return err
			}
			query.Add(name, s)
		}
	case []string:
		for _, item := range v {
			query.Add(name, item)
		}
	default:
		s, err := stringify(name, value)
		if err != nil {
			return err
		}
		query.Add(name, s)
	}
	return nil
}

// stringify converts a scalar argument to its wire form
func stringify(name string, value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", errors.ParameterError(fmt.Sprintf("argument %q cannot be serialized as a scalar", name))
	}
}

// checkType verifies an argument against its declared parameter type
func checkType(spec config.ParameterSpec, value interface{}) error {
	mismatch := func() error {
		return errors.ParameterError(fmt.Sprintf("argument %q must be of type %s", spec.Name, spec.Type))
	}

	switch spec.Type {
	case "", config.TypeString:
		if spec.Type == "" {
			return nil
		}
		if _, ok := value.(string); !ok {
			return mismatch()
		}
	case config.TypeInteger:
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			// JSON numbers decode as float64; accept integral values.
			if v != float64(int64(v)) {
				return mismatch()
			}
		default:
			return mismatch()
		}
	case config.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return mismatch()
		}
	case config.TypeArray:
		switch value.(type) {
		case []interface{}, []string, []int, []float64:
		default:
			return mismatch()
		}
	case config.TypeObject:
		if _, ok := value.(map[string]interface{}); !ok {
			return mismatch()
		}
	}
	return nil
}

// checkEnum verifies an argument against its enum constraint
func checkEnum(spec config.ParameterSpec, value interface{}) error {
	if len(spec.Enum) == 0 {
		return nil
	}
	s, err := stringify(spec.Name, value)
	if err != nil {
		return err
	}
	for _, allowed := range spec.Enum {
		if s == allowed {
			return nil
		}
	}
	return errors.ParameterError(fmt.Sprintf("argument %q must be one of: %s", spec.Name, strings.Join(spec.Enum, ", ")))
}
