package providers

import (
	"errors"
	"sync"

	"github.com/spectreweave/orchestrator/models"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps provider identities to their adapters. It is populated once
// at startup and read by the orchestrator on every request.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Provider]Adapter
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.Provider]Adapter),
	}
}

// Register adds an adapter under its own name.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}
	if _, exists := r.adapters[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.adapters[name] = adapter
	return nil
}

// Get retrieves an adapter by provider identity.
func (r *Registry) Get(provider models.Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[provider]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return adapter, nil
}

// Has reports whether a provider is registered.
func (r *Registry) Has(provider models.Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.adapters[provider]
	return exists
}

// List returns all registered provider identities.
func (r *Registry) List() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]models.Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.adapters)
}
