// Package webhook implements the inbound ingestion engine: signature and
// replay verification, payload parsing, and routing of typed events to
// registered handlers. Framework adapters hand it raw bytes and headers and
// translate its responses back; no HTTP routing lives here.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"apibridge/common/errors"
	"apibridge/config"
)

// Event is one verified, parsed inbound webhook occurrence. It is created
// once per request and never mutated afterwards.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Provider   string                 `json:"provider"`
	Webhook    string                 `json:"webhook"`
	Payload    map[string]interface{} `json:"payload"`
	RawBody    []byte                 `json:"-"`
	Headers    map[string]string      `json:"-"`
	ReceivedAt time.Time              `json:"received_at"`
	Verified   bool                   `json:"verified"`
}

// parseEvent decodes the payload and extracts the event type per the
// webhook configuration
func parseEvent(provider, webhookName string, cfg *config.WebhookConfig, body []byte, headers map[string]string, verified bool) (*Event, error) {
	var payload map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("invalid webhook payload: %v", err))
		}
	}

	return &Event{
		ID:         uuid.NewString(),
		Type:       extractEventType(cfg, payload, headers),
		Provider:   provider,
		Webhook:    webhookName,
		Payload:    payload,
		RawBody:    body,
		Headers:    headers,
		ReceivedAt: time.Now(),
		Verified:   verified,
	}, nil
}

// extractEventType resolves the event type from the configured header or
// payload field. The header wins when both are configured and present.
func extractEventType(cfg *config.WebhookConfig, payload map[string]interface{}, headers map[string]string) string {
	if cfg.EventTypeHeader != "" {
		if value := headerValue(headers, cfg.EventTypeHeader); value != "" {
			return value
		}
	}

	field := cfg.EventTypeField
	if field == "" {
		field = "type"
	}
	return payloadString(payload, field)
}

// headerValue performs a case-insensitive header lookup, since adapters
// differ in how they canonicalize header names
func headerValue(headers map[string]string, name string) string {
	if value, ok := headers[name]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// payloadString walks a dot-separated path through the payload and returns
// the string value at its end, or empty when absent
func payloadString(payload map[string]interface{}, path string) string {
	current := interface{}(payload)
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = obj[segment]
	}
	if s, ok := current.(string); ok {
		return s
	}
	return ""
}
