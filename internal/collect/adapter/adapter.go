// Package adapter defines the provider adapter contract. Adapters are the
// only provider-specific component; the orchestrator is wholly adapter-
// agnostic and sees a uniform cursor-based batch fetch.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// Batch is one bounded chunk of raw records. Cursor semantics are opaque to
// the caller: pass NextCursor to the following FetchBatch call until Done.
type Batch struct {
	Records    []domain.RawRecord
	NextCursor string
	Done       bool
}

// Adapter produces raw records for one provider. Failures must be returned
// as *domain.Failure carrying structured metadata; the classifier never
// inspects message text.
type Adapter interface {
	Provider() string
	FetchBatch(ctx context.Context, cursor string) (Batch, error)
}

// Registry holds the configured adapters by provider name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Add registers an adapter under its provider name.
func (r *Registry) Add(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
}

// Get returns the adapter for a provider.
func (r *Registry) Get(provider string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	if !ok {
		return nil, domain.NewFailure(domain.FailureProviderUnknown,
			fmt.Sprintf("no adapter for provider %q", provider), nil)
	}
	return a, nil
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
