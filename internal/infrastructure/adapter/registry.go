package adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/winemarket/backend/internal/domain"
)

// Registry keeps a mapping from adapter type tags to their implementations
type Registry struct {
	adapters map[string]domain.SourceAdapter
}

// NewRegistry builds an empty registry
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]domain.SourceAdapter{}}
}

// Register adds or replaces an adapter for a type tag
func (r *Registry) Register(adapterType string, a domain.SourceAdapter) {
	if r.adapters == nil {
		r.adapters = map[string]domain.SourceAdapter{}
	}
	r.adapters[strings.ToLower(adapterType)] = a
}

// Resolve returns the adapter for a type tag or ErrUnknownAdapter
func (r *Registry) Resolve(adapterType string) (domain.SourceAdapter, error) {
	if a, ok := r.adapters[strings.ToLower(strings.TrimSpace(adapterType))]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAdapter, adapterType)
}

// Types lists registered type tags in sorted order
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewDefaultRegistry registers the storefront and CMS strategies on one fetcher
func NewDefaultRegistry(fetcher Fetcher, cfg Config) *Registry {
	reg := NewRegistry()
	reg.Register(domain.AdapterShopify, NewShopifyAdapter(fetcher, cfg))
	reg.Register(domain.AdapterWooCommerce, NewWooCommerceAdapter(fetcher, cfg))
	return reg
}

// Close releases adapter resources such as cache sweepers
func (r *Registry) Close() error {
	for _, a := range r.adapters {
		if c, ok := a.(interface{ Close() }); ok {
			c.Close()
		}
	}
	return nil
}

// ClearCache resets adapter-level caches, e.g. primed sitemap offers
func (r *Registry) ClearCache() {
	for _, a := range r.adapters {
		if c, ok := a.(interface{ ClearCache() }); ok {
			c.ClearCache()
		}
	}
}
