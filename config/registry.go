package config

import (
	"fmt"
	"sync"

	"apibridge/common/errors"
)

// Registry holds validated provider configurations keyed by provider name.
// Providers are registered during startup; lookups afterwards are read-only
// and safe for concurrent use. Construct one explicitly and pass it to the
// components that need it rather than relying on package state.
type Registry struct {
	providers map[string]*ProviderConfig
	mu        sync.RWMutex
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*ProviderConfig),
	}
}

// Register validates and adds a provider configuration. Registering a
// provider under an already-used name returns a configuration error so
// that two config sources cannot silently shadow each other.
func (r *Registry) Register(provider *ProviderConfig) error {
	if provider == nil {
		return errors.ConfigError("provider configuration is nil")
	}
	if err := provider.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[provider.Name]; exists {
		return errors.ConfigError(fmt.Sprintf("provider %q is already registered", provider.Name))
	}
	r.providers[provider.Name] = provider
	return nil
}

// Get retrieves a provider configuration by name
func (r *Registry) Get(name string) (*ProviderConfig, error) {
	r.mu.RLock()
	provider, exists := r.providers[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.NotFoundError(fmt.Sprintf("provider %s", name))
	}
	return provider, nil
}

// Providers returns the names of all registered providers.
// The returned slice is a copy and safe to modify.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks whether a provider name is known
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.providers[name]
	return exists
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
