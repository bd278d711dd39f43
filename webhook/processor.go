package webhook

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-redis/redis/v8"

	"apibridge/common/errors"
	"apibridge/common/logging"
	"apibridge/common/ratelimit"
	"apibridge/config"
)

// Processor ties verification, parsing, and routing together. A framework
// adapter calls Process with the raw request parts and translates the
// returned Response into its own HTTP reply.
type Processor struct {
	providers *config.Registry
	handlers  *Registry
	logger    logging.Logger
	redis     redis.UniversalClient

	mu        sync.RWMutex
	verifiers map[string]*Verifier
	custom    map[string]VerifierFunc
	limiters  map[string]ratelimit.Limiter
}

// ProcessorOption customizes processor construction
type ProcessorOption func(*Processor)

// WithProcessorLogger overrides the processor logger
func WithProcessorLogger(logger logging.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithProcessorRedis supplies the redis client backing distributed webhook
// rate limits
func WithProcessorRedis(client redis.UniversalClient) ProcessorOption {
	return func(p *Processor) { p.redis = client }
}

// NewProcessor creates a processor over a provider registry and handler
// registry
func NewProcessor(providers *config.Registry, handlers *Registry, opts ...ProcessorOption) *Processor {
	p := &Processor{
		providers: providers,
		handlers:  handlers,
		logger:    logging.GetGlobalLogger(),
		verifiers: make(map[string]*Verifier),
		custom:    make(map[string]VerifierFunc),
		limiters:  make(map[string]ratelimit.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterCustomVerifier attaches a provider-supplied verification function
// for a webhook configured with the custom verification type. Call before
// traffic starts.
func (p *Processor) RegisterCustomVerifier(provider, webhookName string, fn VerifierFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.custom[provider+"/"+webhookName] = fn
	// Invalidate any verifier built before the function arrived.
	delete(p.verifiers, provider+"/"+webhookName)
}

// Process verifies, parses, and routes one inbound webhook request.
// It always returns a response, never panics or propagates handler faults.
func (p *Processor) Process(ctx context.Context, provider, webhookName string, body []byte, headers map[string]string, remoteIP string) *Response {
	providerCfg, err := p.providers.Get(provider)
	if err != nil {
		return NotFoundResponse(fmt.Sprintf("unknown provider %q", provider))
	}
	cfg := providerCfg.Webhook(webhookName)
	if cfg == nil {
		return NotFoundResponse(fmt.Sprintf("unknown webhook %q for provider %q", webhookName, provider))
	}

	if limiter := p.limiterFor(provider, webhookName, cfg); limiter != nil {
		if !limiter.TryAcquire(provider + "/" + webhookName) {
			return RejectedResponse(http.StatusTooManyRequests, "rate limit exceeded")
		}
	}

	if err := p.verifierFor(provider, webhookName, cfg).Verify(body, headers, remoteIP); err != nil {
		status := http.StatusUnauthorized
		if RejectionCode(err) == CodeIPRejected {
			status = http.StatusForbidden
		}
		p.logger.Warn("Webhook rejected",
			logging.Field{Key: "provider", Value: provider},
			logging.Field{Key: "webhook", Value: webhookName},
			logging.Field{Key: "reason", Value: err.Error()},
		)
		return RejectedResponse(status, err.Error())
	}

	event, err := parseEvent(provider, webhookName, cfg, body, headers, cfg.VerifySignature)
	if err != nil {
		return BadRequestResponse(err.Error())
	}

	// Event types outside the configured set are acknowledged, not routed,
	// so senders do not retry deliveries nobody asked for.
	if !cfg.Recognizes(event.Type) {
		p.logger.Debug("Unrecognized event type",
			logging.Field{Key: "provider", Value: provider},
			logging.Field{Key: "webhook", Value: webhookName},
			logging.Field{Key: "event_type", Value: event.Type},
		)
		return IgnoredResponse(event.ID, fmt.Sprintf("event type %q is not recognized", event.Type))
	}

	return p.Route(ctx, event)
}

// Route dispatches a parsed event to its registered handlers. Handlers run
// in registration order; the first failure short-circuits the rest. No
// handler for the exact event type is an acknowledged non-outcome, not an
// error.
func (p *Processor) Route(ctx context.Context, event *Event) *Response {
	handlers := p.handlers.Lookup(event.Provider, event.Webhook, event.Type)
	if len(handlers) == 0 {
		p.logger.Debug("No handler for event",
			logging.Field{Key: "provider", Value: event.Provider},
			logging.Field{Key: "webhook", Value: event.Webhook},
			logging.Field{Key: "event_type", Value: event.Type},
			logging.Field{Key: "event_id", Value: event.ID},
		)
		notFound := errors.HandlerNotFoundError(event.Type)
		return IgnoredResponse(event.ID, notFound.Message)
	}

	results := make([]interface{}, 0, len(handlers))
	for i, handler := range handlers {
		result, err := p.invoke(ctx, handler, event)
		if err != nil {
			p.logger.Error("Webhook handler failed", err,
				logging.Field{Key: "provider", Value: event.Provider},
				logging.Field{Key: "webhook", Value: event.Webhook},
				logging.Field{Key: "event_type", Value: event.Type},
				logging.Field{Key: "event_id", Value: event.ID},
				logging.Field{Key: "handler_index", Value: i},
			)
			return FailedResponse(event.ID, err.Error())
		}
		results = append(results, result)
	}

	if len(results) == 1 {
		return OKResponse(event.ID, results[0])
	}
	return OKResponse(event.ID, results)
}

// invoke runs a handler, converting panics into handler errors so one
// misbehaving handler cannot take the process down
func (p *Processor) invoke(ctx context.Context, handler Handler, event *Event) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.HandlerError(fmt.Sprintf("handler panicked: %v", r), nil)
		}
	}()

	result, err = handler(ctx, event)
	if err != nil && !errors.IsType(err, errors.ErrTypeHandler) {
		err = errors.HandlerError(err.Error(), err)
	}
	return result, err
}

// verifierFor returns the cached verifier for a webhook, building it on
// first use
func (p *Processor) verifierFor(provider, webhookName string, cfg *config.WebhookConfig) *Verifier {
	key := provider + "/" + webhookName

	p.mu.RLock()
	verifier, ok := p.verifiers[key]
	p.mu.RUnlock()
	if ok {
		return verifier
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if verifier, ok = p.verifiers[key]; ok {
		return verifier
	}
	verifier = NewVerifier(cfg, p.custom[key])
	p.verifiers[key] = verifier
	return verifier
}

// limiterFor returns the webhook's rate limiter, building it on first use.
// Webhook limits fail fast rather than queueing inbound requests.
func (p *Processor) limiterFor(provider, webhookName string, cfg *config.WebhookConfig) ratelimit.Limiter {
	if cfg.RateLimit == nil || !cfg.RateLimit.Enabled {
		return nil
	}
	key := provider + "/" + webhookName

	p.mu.RLock()
	limiter, ok := p.limiters[key]
	p.mu.RUnlock()
	if ok {
		return limiter
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if limiter, ok = p.limiters[key]; ok {
		return limiter
	}
	limiter, err := ratelimit.New(*cfg.RateLimit, p.redis)
	if err != nil {
		p.logger.Warn("Invalid webhook rate limit, disabling",
			logging.Field{Key: "provider", Value: provider},
			logging.Field{Key: "webhook", Value: webhookName},
			logging.Field{Key: "error", Value: err.Error()},
		)
		return nil
	}
	p.limiters[key] = limiter
	return limiter
}
