package client

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIResponse is the uniform envelope returned for every outbound call.
// Non-2xx statuses outside the retryable set are not errors; they come back
// as a non-success envelope carrying the provider's message.
type APIResponse struct {
	StatusCode int         `json:"status_code"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	RawBody    []byte      `json:"-"`
	Error      string      `json:"error,omitempty"`
	Header     http.Header `json:"-"`

	// Call metadata for observability
	Provider string        `json:"provider,omitempty"`
	Endpoint string        `json:"endpoint,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// normalizeResponse builds the envelope from a completed transport exchange
func normalizeResponse(statusCode int, header http.Header, body []byte) *APIResponse {
	resp := &APIResponse{
		StatusCode: statusCode,
		Success:    statusCode >= 200 && statusCode < 300,
		RawBody:    body,
		Header:     header,
	}

	if len(body) > 0 {
		var parsed interface{}
		if err := json.Unmarshal(body, &parsed); err == nil {
			resp.Data = parsed
		}
	}

	if !resp.Success {
		resp.Error = errorMessage(statusCode, resp.Data, body)
	}

	return resp
}

// errorMessage extracts a human-readable failure message, preferring the
// provider's own error fields over the generic status text
func errorMessage(statusCode int, data interface{}, body []byte) string {
	if obj, ok := data.(map[string]interface{}); ok {
		for _, key := range []string{"message", "error", "error_description", "detail"} {
			if msg, ok := obj[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	if len(body) > 0 {
		return string(body)
	}
	return "request failed"
}
