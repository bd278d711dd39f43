package webhook

import "net/http"

// Response is the standardized outcome handed back to the framework
// adapter for translation into an HTTP response
type Response struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code"`
	Processed  bool        `json:"processed"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	EventID    string      `json:"event_id,omitempty"`
}

// OKResponse acknowledges a processed event
func OKResponse(eventID string, data interface{}) *Response {
	return &Response{
		Success:    true,
		StatusCode: http.StatusOK,
		Processed:  true,
		Data:       data,
		EventID:    eventID,
	}
}

// IgnoredResponse acknowledges an event nobody handles. It is deliberately
// a 200 so providers that resend on non-2xx do not retry-storm us.
func IgnoredResponse(eventID, message string) *Response {
	return &Response{
		Success:    true,
		StatusCode: http.StatusOK,
		Processed:  false,
		Message:    message,
		EventID:    eventID,
	}
}

// RejectedResponse refuses an unverified request. IP rejections are 403,
// signature and replay rejections 401.
func RejectedResponse(statusCode int, message string) *Response {
	return &Response{
		Success:    false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// FailedResponse reports a handler failure
func FailedResponse(eventID, message string) *Response {
	return &Response{
		Success:    false,
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		EventID:    eventID,
	}
}

// NotFoundResponse reports an unknown provider or webhook name
func NotFoundResponse(message string) *Response {
	return &Response{
		Success:    false,
		StatusCode: http.StatusNotFound,
		Message:    message,
	}
}

// BadRequestResponse reports an unparseable payload
func BadRequestResponse(message string) *Response {
	return &Response{
		Success:    false,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}
