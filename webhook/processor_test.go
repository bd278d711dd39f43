package webhook

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apibridge/common/ratelimit"
	"apibridge/config"
)

func webhookProvider(t *testing.T) *config.Registry {
	t.Helper()
	registry := config.NewRegistry()
	require.NoError(t, registry.Register(&config.ProviderConfig{
		Name:    "stripe",
		BaseURL: "https://api.stripe.com",
		Webhooks: map[string]*config.WebhookConfig{
			"default": {
				Path:             "/webhooks/stripe",
				VerifySignature:  true,
				VerificationType: config.VerifyHMACSHA256,
				Secret:           "whsec_test",
				SignatureHeader:  "Stripe-Signature",
				SignaturePrefix:  "v1=",
			},
			"open": {
				Path: "/webhooks/stripe-open",
			},
		},
	}))
	return registry
}

func signedHeaders(t *testing.T, providers *config.Registry, body []byte) map[string]string {
	t.Helper()
	p, err := providers.Get("stripe")
	require.NoError(t, err)
	v := NewVerifier(p.Webhook("default"), nil)
	return map[string]string{"Stripe-Signature": v.Sign(body)}
}

func TestProcessVerifiedEvent(t *testing.T) {
	providers := webhookProvider(t)
	handlers := NewRegistry()

	var got *Event
	handlers.Register("stripe", "default", "payment_intent.succeeded", func(_ context.Context, e *Event) (interface{}, error) {
		got = e
		return map[string]interface{}{"handled": true}, nil
	})

	p := NewProcessor(providers, handlers)
	body := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	resp := p.Process(context.Background(), "stripe", "default", body, signedHeaders(t, providers, body), "")

	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.Processed)
	assert.NotEmpty(t, resp.EventID)

	require.NotNil(t, got)
	assert.Equal(t, "payment_intent.succeeded", got.Type)
	assert.Equal(t, "stripe", got.Provider)
	assert.True(t, got.Verified)
	assert.WithinDuration(t, time.Now(), got.ReceivedAt, 5*time.Second)
}

func TestProcessRejectsBadSignature(t *testing.T) {
	providers := webhookProvider(t)
	handlers := NewRegistry()

	invoked := false
	handlers.Register("stripe", "default", "payment_intent.succeeded", func(_ context.Context, _ *Event) (interface{}, error) {
		invoked = true
		return nil, nil
	})

	p := NewProcessor(providers, handlers)
	body := []byte(`{"type":"payment_intent.succeeded"}`)

	resp := p.Process(context.Background(), "stripe", "default", body,
		map[string]string{"Stripe-Signature": "v1=deadbeef"}, "")

	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	// Unverified events never reach a handler.
	assert.False(t, invoked)
}

func TestProcessIPRejectionIsForbidden(t *testing.T) {
	providers := webhookProvider(t)
	p, err := providers.Get("stripe")
	require.NoError(t, err)
	p.Webhook("default").IPAllowlist = []string{"192.0.2.0/24"}

	processor := NewProcessor(providers, NewRegistry())
	body := []byte(`{"type":"x"}`)

	resp := processor.Process(context.Background(), "stripe", "default", body,
		signedHeaders(t, providers, body), "203.0.113.9")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProcessUnknownProviderAndWebhook(t *testing.T) {
	p := NewProcessor(webhookProvider(t), NewRegistry())

	resp := p.Process(context.Background(), "nope", "default", nil, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = p.Process(context.Background(), "stripe", "nope", nil, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProcessMalformedPayload(t *testing.T) {
	providers := webhookProvider(t)
	p := NewProcessor(providers, NewRegistry())
	body := []byte(`{not json`)

	resp := p.Process(context.Background(), "stripe", "default", body, signedHeaders(t, providers, body), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouteHandlerNotFound(t *testing.T) {
	p := NewProcessor(webhookProvider(t), NewRegistry())

	event := &Event{ID: "evt-1", Type: "customer.created", Provider: "stripe", Webhook: "default"}
	resp := p.Route(context.Background(), event)

	// Unhandled events are acknowledged with a 2xx so providers do not
	// retry-storm, but marked unprocessed.
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.Processed)
	assert.Equal(t, "evt-1", resp.EventID)
}

func TestRouteHandlersRunInOrder(t *testing.T) {
	handlers := NewRegistry()
	var order []string
	handlers.Register("stripe", "default", "charge.refunded", func(_ context.Context, _ *Event) (interface{}, error) {
		order = append(order, "h1")
		return "r1", nil
	})
	handlers.Register("stripe", "default", "charge.refunded", func(_ context.Context, _ *Event) (interface{}, error) {
		order = append(order, "h2")
		return "r2", nil
	})

	p := NewProcessor(webhookProvider(t), handlers)
	resp := p.Route(context.Background(), &Event{ID: "evt-2", Type: "charge.refunded", Provider: "stripe", Webhook: "default"})

	assert.Equal(t, []string{"h1", "h2"}, order)
	assert.True(t, resp.Processed)
	assert.Equal(t, []interface{}{"r1", "r2"}, resp.Data)
}

func TestRouteFirstFailureShortCircuits(t *testing.T) {
	handlers := NewRegistry()
	var order []string
	handlers.Register("stripe", "default", "charge.failed", func(_ context.Context, _ *Event) (interface{}, error) {
		order = append(order, "h1")
		return nil, fmt.Errorf("db unavailable")
	})
	handlers.Register("stripe", "default", "charge.failed", func(_ context.Context, _ *Event) (interface{}, error) {
		order = append(order, "h2")
		return nil, nil
	})

	p := NewProcessor(webhookProvider(t), handlers)
	resp := p.Route(context.Background(), &Event{ID: "evt-3", Type: "charge.failed", Provider: "stripe", Webhook: "default"})

	assert.Equal(t, []string{"h1"}, order)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Message, "db unavailable")
}

func TestRouteHandlerPanicBecomesFailure(t *testing.T) {
	handlers := NewRegistry()
	handlers.Register("stripe", "default", "boom", func(_ context.Context, _ *Event) (interface{}, error) {
		panic("unexpected state")
	})

	p := NewProcessor(webhookProvider(t), handlers)
	resp := p.Route(context.Background(), &Event{ID: "evt-4", Type: "boom", Provider: "stripe", Webhook: "default"})

	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Message, "panicked")
}

func TestProcessEventTypeFromHeader(t *testing.T) {
	providers := config.NewRegistry()
	require.NoError(t, providers.Register(&config.ProviderConfig{
		Name:    "github",
		BaseURL: "https://api.github.com",
		Webhooks: map[string]*config.WebhookConfig{
			"default": {
				Path:            "/webhooks/github",
				EventTypeHeader: "X-GitHub-Event",
			},
		},
	}))

	handlers := NewRegistry()
	var gotType string
	handlers.Register("github", "default", "push", func(_ context.Context, e *Event) (interface{}, error) {
		gotType = e.Type
		return nil, nil
	})

	p := NewProcessor(providers, handlers)
	resp := p.Process(context.Background(), "github", "default",
		[]byte(`{"ref":"refs/heads/main"}`),
		map[string]string{"X-GitHub-Event": "push"}, "")

	assert.True(t, resp.Processed)
	assert.Equal(t, "push", gotType)
}

func TestProcessCustomVerifier(t *testing.T) {
	providers := config.NewRegistry()
	require.NoError(t, providers.Register(&config.ProviderConfig{
		Name:    "acme",
		BaseURL: "https://api.acme.test",
		Webhooks: map[string]*config.WebhookConfig{
			"default": {
				Path:             "/webhooks/acme",
				VerifySignature:  true,
				VerificationType: config.VerifyCustom,
			},
		},
	}))

	p := NewProcessor(providers, NewRegistry())
	p.RegisterCustomVerifier("acme", "default", func(_ []byte, headers map[string]string) bool {
		return headers["X-Acme-Token"] == "sesame"
	})

	resp := p.Process(context.Background(), "acme", "default", []byte(`{"type":"ping"}`),
		map[string]string{"X-Acme-Token": "sesame"}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = p.Process(context.Background(), "acme", "default", []byte(`{"type":"ping"}`),
		map[string]string{}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProcessUnrecognizedEventType(t *testing.T) {
	providers := webhookProvider(t)
	p, err := providers.Get("stripe")
	require.NoError(t, err)
	p.Webhook("default").EventTypes = []string{"payment_intent.succeeded"}

	handlers := NewRegistry()
	invoked := false
	handlers.Register("stripe", "default", "charge.refunded", func(_ context.Context, _ *Event) (interface{}, error) {
		invoked = true
		return nil, nil
	})

	processor := NewProcessor(providers, handlers)
	body := []byte(`{"type":"charge.refunded"}`)

	resp := processor.Process(context.Background(), "stripe", "default", body, signedHeaders(t, providers, body), "")

	// Types outside the configured set are acknowledged without routing.
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.Processed)
	assert.False(t, invoked)

	listed := []byte(`{"type":"payment_intent.succeeded"}`)
	resp = processor.Process(context.Background(), "stripe", "default", listed, signedHeaders(t, providers, listed), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.Processed)
}

func TestProcessWebhookRateLimitDistributed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	providers := webhookProvider(t)
	p, err := providers.Get("stripe")
	require.NoError(t, err)
	p.Webhook("open").RateLimit = &ratelimit.Config{
		Enabled:           true,
		Type:              ratelimit.BackendDistributed,
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	processor := NewProcessor(providers, NewRegistry(), WithProcessorRedis(rdb))
	body := []byte(`{"type":"ping"}`)

	resp := processor.Process(context.Background(), "stripe", "open", body, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = processor.Process(context.Background(), "stripe", "open", body, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestProcessWebhookRateLimit(t *testing.T) {
	providers := webhookProvider(t)
	p, err := providers.Get("stripe")
	require.NoError(t, err)
	p.Webhook("open").RateLimit = &ratelimit.Config{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	processor := NewProcessor(providers, NewRegistry())
	body := []byte(`{"type":"ping"}`)

	resp := processor.Process(context.Background(), "stripe", "open", body, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = processor.Process(context.Background(), "stripe", "open", body, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
