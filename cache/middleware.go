package cache

import (
	"context"
	"errors"
	"strings"
)

// ProviderFunc is the signature of a model-provider call keyed by prompt.
type ProviderFunc[V any] func(ctx context.Context, query string) (V, error)

// SkipRule determines whether to skip caching for a request.
// Returns true if caching should be skipped.
type SkipRule func(query string, tags []string) bool

// UnsafeTags mark requests whose responses must not be reused: side
// effects, streaming, or intentionally random sampling.
var UnsafeTags = []string{"write", "danger", "unsafe", "mutation", "delete", "stream", "nocache"}

// DefaultSkipRule skips caching for requests with unsafe tags.
// Tag matching is case-insensitive.
func DefaultSkipRule(_ string, tags []string) bool {
	for _, tag := range tags {
		for _, unsafe := range UnsafeTags {
			if strings.EqualFold(tag, unsafe) {
				return true
			}
		}
	}
	return false
}

// Middleware serves provider calls from a SimilarityCache.
//
// Contract:
// - Provider errors are returned unchanged and never cached.
// - Embedding failures bypass the cache and call the provider directly.
type Middleware[V any] struct {
	cache    *SimilarityCache[V]
	policy   Policy
	skipRule SkipRule
}

// NewMiddleware creates a new cache middleware.
// If skipRule is nil, DefaultSkipRule is used.
func NewMiddleware[V any](cache *SimilarityCache[V], policy Policy, skipRule SkipRule) (*Middleware[V], error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	if skipRule == nil {
		skipRule = DefaultSkipRule
	}
	return &Middleware[V]{
		cache:    cache,
		policy:   policy,
		skipRule: skipRule,
	}, nil
}

// Execute returns a cached response for query when one is close enough,
// otherwise calls provider and caches its successful result.
func (m *Middleware[V]) Execute(ctx context.Context, query string, tags []string, provider ProviderFunc[V]) (V, error) {
	if !m.policy.ShouldCache(query) {
		return provider(ctx, query)
	}
	if !m.policy.AllowUnsafe && m.skipRule(query, tags) {
		return provider(ctx, query)
	}

	v, err := m.cache.GetOrLoad(ctx, query, func(ctx context.Context) (V, error) {
		return provider(ctx, query)
	})
	if errors.Is(err, ErrEmbedding) {
		return provider(ctx, query)
	}
	return v, err
}

// Wrap returns provider with caching applied to untagged requests.
func (m *Middleware[V]) Wrap(provider ProviderFunc[V]) ProviderFunc[V] {
	return func(ctx context.Context, query string) (V, error) {
		return m.Execute(ctx, query, nil, provider)
	}
}
