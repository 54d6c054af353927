// internal/feed/registry.go
package feed

import (
	"sort"
	"sync"
)

// Registry manages feed plugins
type Registry struct {
	mu     sync.RWMutex
	prices map[string]PriceFeed
	rates  map[string]FxFeed
}

// NewRegistry creates a new feed registry
func NewRegistry() *Registry {
	return &Registry{
		prices: make(map[string]PriceFeed),
		rates:  make(map[string]FxFeed),
	}
}

// Register adds a price feed to the registry. Feeds that also serve
// exchange rates are registered for both.
func (r *Registry) Register(f PriceFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[f.Name()] = f
	if fx, ok := f.(FxFeed); ok {
		r.rates[fx.Name()] = fx
	}
}

// RegisterFx adds a rates-only feed.
func (r *Registry) RegisterFx(f FxFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[f.Name()] = f
}

// Price retrieves a price feed by name
func (r *Registry) Price(name string) (PriceFeed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.prices[name]
	return f, ok
}

// Fx retrieves a rate feed by name
func (r *Registry) Fx(name string) (FxFeed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.rates[name]
	return f, ok
}

// Names returns the registered price feed names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.prices))
	for name := range r.prices {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
