package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coachpo/bookwire/config"
)

// Factory constructs a provider instance from the gateway configuration.
type Factory func(ctx context.Context, cfg config.Config) (Instance, error)

// Registry maintains provider factories keyed by adapter identifier.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	metadata  map[string]AdapterMetadata
}

// NewRegistry creates an empty provider factory registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		metadata:  make(map[string]AdapterMetadata),
	}
}

// Register registers a provider factory for the identifier.
func (r *Registry) Register(identifier string, factory Factory) {
	r.RegisterWithMetadata(identifier, factory, AdapterMetadata{Identifier: identifier})
}

// RegisterWithMetadata registers a factory together with its adapter metadata.
func (r *Registry) RegisterWithMetadata(identifier string, factory Factory, meta AdapterMetadata) {
	if factory == nil {
		panic("provider factory required")
	}
	r.mu.Lock()
	r.factories[identifier] = factory
	r.metadata[identifier] = meta.Clone()
	r.mu.Unlock()
}

// Create instantiates the named adapter.
func (r *Registry) Create(ctx context.Context, identifier string, cfg config.Config) (Instance, error) {
	r.mu.RLock()
	factory, ok := r.factories[identifier]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider adapter %q not registered", identifier)
	}
	instance, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate provider %s: %w", identifier, err)
	}
	return instance, nil
}

// Metadata returns a copy of the adapter metadata for the identifier.
func (r *Registry) Metadata(identifier string) (AdapterMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.metadata[identifier]
	if !ok {
		return AdapterMetadata{}, false
	}
	return meta.Clone(), true
}

// Identifiers lists the registered adapter identifiers in sorted order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
