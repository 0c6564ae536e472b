package cache

// Policy decides which requests the Middleware may serve from cache.
type Policy struct {
	// Disabled bypasses the cache entirely.
	Disabled bool

	// MaxQueryLength bounds cacheable queries in bytes. Zero means no bound.
	MaxQueryLength int

	// AllowUnsafe permits caching requests tagged with UnsafeTags.
	AllowUnsafe bool
}

// DefaultPolicy returns the default caching policy.
// MaxQueryLength: 16 KiB, AllowUnsafe: false
func DefaultPolicy() Policy {
	return Policy{
		MaxQueryLength: 16 << 10,
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{Disabled: true}
}

// ShouldCache reports whether query is eligible for caching.
func (p Policy) ShouldCache(query string) bool {
	if p.Disabled || ValidateQuery(query) != nil {
		return false
	}
	return p.MaxQueryLength <= 0 || len(query) <= p.MaxQueryLength
}
