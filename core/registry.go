package core

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderRegistry maps a provider kind to its adapter.
type ProviderRegistry struct {
	mu       sync.RWMutex
	adapters map[ProviderKind]ProviderAdapter
}

func NewProviderRegistry(adapters ...ProviderAdapter) *ProviderRegistry {
	registry := &ProviderRegistry{adapters: make(map[ProviderKind]ProviderAdapter)}
	for _, adapter := range adapters {
		_ = registry.Register(adapter)
	}
	return registry
}

func (r *ProviderRegistry) Register(adapter ProviderAdapter) error {
	if adapter == nil {
		return fmt.Errorf("core: provider adapter is nil")
	}
	kind, err := ParseProviderKind(string(adapter.Provider()))
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("core: provider already registered: %s", kind)
	}
	r.adapters[kind] = adapter
	return nil
}

func (r *ProviderRegistry) Get(provider ProviderKind) (ProviderAdapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	adapter, ok := r.adapters[provider]
	r.mu.RUnlock()
	return adapter, ok
}

func (r *ProviderRegistry) List() []ProviderAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		keys = append(keys, string(kind))
	}
	sort.Strings(keys)
	out := make([]ProviderAdapter, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.adapters[ProviderKind(key)])
	}
	return out
}

var _ Registry = (*ProviderRegistry)(nil)
