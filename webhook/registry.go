package webhook

import (
	"context"
	"sync"
)

// Handler processes one event and returns data for the webhook response.
// Returning an error marks the event as failed and short-circuits any
// handlers registered after this one.
type Handler func(ctx context.Context, event *Event) (interface{}, error)

type registrationKey struct {
	provider  string
	webhook   string
	eventType string
}

// Registry maps (provider, webhook, event type) to handlers. Build it once
// at startup with explicit Register calls; routing reads it on every event.
type Registry struct {
	mu       sync.RWMutex
	handlers map[registrationKey][]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[registrationKey][]Handler),
	}
}

// Register adds a handler for an event type. Multiple handlers for the same
// key run in registration order.
func (r *Registry) Register(provider, webhookName, eventType string, handler Handler) {
	key := registrationKey{provider: provider, webhook: webhookName, eventType: eventType}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = append(r.handlers[key], handler)
}

// Lookup returns the handlers for an exact event type match, in
// registration order. The returned slice is a copy.
func (r *Registry) Lookup(provider, webhookName, eventType string) []Handler {
	key := registrationKey{provider: provider, webhook: webhookName, eventType: eventType}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler(nil), r.handlers[key]...)
}

// EventTypes returns the event types with at least one handler for a
// provider and webhook
func (r *Registry) EventTypes(provider, webhookName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0)
	for key := range r.handlers {
		if key.provider == provider && key.webhook == webhookName {
			types = append(types, key.eventType)
		}
	}
	return types
}

// Count returns the number of registered handler lists
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
