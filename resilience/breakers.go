package resilience

import (
	"sort"
	"sync"
)

// Breakers holds one CircuitBreaker per operation class.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Get never returns nil; breakers are created lazily from the template.
type Breakers struct {
	template CircuitBreakerConfig
	onCreate func(*CircuitBreaker)

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates a registry whose breakers share template's settings.
// onCreate, when non-nil, is called once for every newly created breaker.
func NewBreakers(template CircuitBreakerConfig, onCreate func(*CircuitBreaker)) *Breakers {
	return &Breakers{
		template: template,
		onCreate: onCreate,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (b *Breakers) Get(name string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[name]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	if cb, ok = b.breakers[name]; ok {
		b.mu.Unlock()
		return cb
	}
	cfg := b.template
	cfg.Name = name
	cfg.Listeners = append([]StateListener(nil), b.template.Listeners...)
	cb = NewCircuitBreaker(cfg)
	b.breakers[name] = cb
	b.mu.Unlock()

	if b.onCreate != nil {
		b.onCreate(cb)
	}
	return cb
}

// Lookup returns the breaker for name without creating it.
func (b *Breakers) Lookup(name string) (*CircuitBreaker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cb, ok := b.breakers[name]
	return cb, ok
}

// Names returns the registered breaker names in sorted order.
func (b *Breakers) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.breakers))
	for name := range b.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Range calls fn for every breaker in name order.
func (b *Breakers) Range(fn func(*CircuitBreaker)) {
	for _, name := range b.Names() {
		if cb, ok := b.Lookup(name); ok {
			fn(cb)
		}
	}
}

// Reset returns every breaker to closed with zero failures.
func (b *Breakers) Reset() {
	b.Range(func(cb *CircuitBreaker) { cb.Reset() })
}

// Open returns the names of breakers currently open or half-open.
func (b *Breakers) Open() []string {
	var open []string
	b.Range(func(cb *CircuitBreaker) {
		if cb.State() != StateClosed {
			open = append(open, cb.Name())
		}
	})
	return open
}

// Len returns the number of breakers.
func (b *Breakers) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.breakers)
}
