// Package errors defines the structured error taxonomy shared by the
// request dispatch and webhook ingestion engines.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConfig represents malformed provider/endpoint configuration,
	// detected at load time and never retried
	ErrTypeConfig ErrorType = "config"
	// ErrTypeParameter represents missing required or unexpected call
	// arguments, returned to the caller and never retried
	ErrTypeParameter ErrorType = "parameter"
	// ErrTypeAuth represents missing credentials or failed token acquisition
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeTransport represents network-level failures, retried per policy
	ErrTypeTransport ErrorType = "transport"
	// ErrTypeHTTPStatus represents a non-2xx response outside the retryable set
	ErrTypeHTTPStatus ErrorType = "http_status"
	// ErrTypeVerification represents a webhook signature, replay or IP check failure
	ErrTypeVerification ErrorType = "verification"
	// ErrTypeHandlerNotFound represents an inbound event with no registered handler
	ErrTypeHandlerNotFound ErrorType = "handler_not_found"
	// ErrTypeHandler represents a registered handler that failed while processing
	ErrTypeHandler ErrorType = "handler"
	// ErrTypeRateLimit represents rate limit errors
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// ParameterError creates a new parameter error
func ParameterError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeParameter,
		Message: msg,
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// TransportError creates a new transport error
func TransportError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTransport,
		Message: msg,
		Cause:   cause,
	}
}

// HTTPStatusError creates a new HTTP status error for a non-2xx response
func HTTPStatusError(statusCode int, body string) *AppError {
	return &AppError{
		Type:    ErrTypeHTTPStatus,
		Message: fmt.Sprintf("HTTP %d: %s", statusCode, body),
		Context: map[string]interface{}{"status_code": statusCode},
	}
}

// VerificationError creates a new webhook verification error
func VerificationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeVerification,
		Message: msg,
	}
}

// HandlerNotFoundError creates an error for an event type with no registered handler
func HandlerNotFoundError(eventType string) *AppError {
	return &AppError{
		Type:    ErrTypeHandlerNotFound,
		Message: fmt.Sprintf("no handler registered for event type %s", eventType),
	}
}

// HandlerError creates an error for a handler that failed while processing an event
func HandlerError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeHandler,
		Message: msg,
		Cause:   cause,
	}
}

// RateLimitError creates a new rate limit error
func RateLimitError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit exceeded for %s", resource),
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}

// StatusCode extracts the HTTP status code recorded on an HTTPStatusError,
// returning 0 when the error carries none
func StatusCode(err error) int {
	appErr, ok := err.(*AppError)
	if !ok || appErr.Context == nil {
		return 0
	}
	if code, ok := appErr.Context["status_code"].(int); ok {
		return code
	}
	return 0
}
