package cache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/app-appplayer/flutter-mcp-sub003/observe"
)

// SimilarityConfig configures a SimilarityCache.
type SimilarityConfig struct {
	// Name labels the cache in metrics and fingerprints.
	Name string

	// MaxSize is the maximum number of entries. Default: 1000
	MaxSize int

	// TTL is the maximum entry age. Default: 1 hour
	TTL time.Duration

	// SimilarityThreshold is the minimum cosine similarity for a hit.
	// Must be in [0, 1]; nil selects the default of 0.85. Use Threshold to
	// set a literal value, including 0.
	SimilarityThreshold *float64

	// Keyer derives exact-match fingerprints. Default: DefaultKeyer
	Keyer Keyer

	// Metrics records hits and misses. Default: no-op
	Metrics observe.Metrics

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

// Threshold returns a SimilarityThreshold value for t.
func Threshold(t float64) *float64 { return &t }

const (
	defaultMaxSize   = 1000
	defaultTTL       = time.Hour
	defaultThreshold = 0.85
)

type entry[V any] struct {
	key            string
	embedding      []float32
	value          V
	createdAt      time.Time
	lastAccessedAt time.Time
	hitCount       int64
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	HitRate   float64
}

// SimilarityCache serves values for queries whose embedding is close to a
// stored query's embedding.
//
// Contract:
// - Concurrency: safe for concurrent use; the Embedder runs outside the lock.
// - Expired entries are never returned.
// - Errors from loaders are never cached.
type SimilarityCache[V any] struct {
	cfg      SimilarityConfig
	embedder Embedder
	group    singleflight.Group

	// entries is recency ordered; every access goes through mu.
	mu        sync.Mutex
	entries   *simplelru.LRU[string, *entry[V]]
	threshold float64
	hits      int64
	misses    int64
	evictions int64
	expired   int64
}

// NewSimilarityCache creates a cache that embeds queries with embedder.
func NewSimilarityCache[V any](embedder Embedder, cfg SimilarityConfig) (*SimilarityCache[V], error) {
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	threshold := defaultThreshold
	if cfg.SimilarityThreshold != nil {
		threshold = *cfg.SimilarityThreshold
	}
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w, got: %f", ErrInvalidThreshold, threshold)
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("%w, got: %d", ErrInvalidSize, cfg.MaxSize)
	}

	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Keyer == nil {
		cfg.Keyer = NewDefaultKeyer()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Metrics = observe.MetricsOrNoop(cfg.Metrics)

	entries, err := simplelru.NewLRU[string, *entry[V]](cfg.MaxSize, nil)
	if err != nil {
		return nil, fmt.Errorf("%w, got: %d", ErrInvalidSize, cfg.MaxSize)
	}
	return &SimilarityCache[V]{
		cfg:       cfg,
		embedder:  embedder,
		entries:   entries,
		threshold: threshold,
	}, nil
}

// Name returns the cache name.
func (c *SimilarityCache[V]) Name() string { return c.cfg.Name }

// Threshold returns the effective similarity threshold.
func (c *SimilarityCache[V]) Threshold() float64 { return c.threshold }

// Get returns the value stored for the closest query to query, provided
// the similarity reaches the threshold.
func (c *SimilarityCache[V]) Get(ctx context.Context, query string) (V, bool, error) {
	v, ok, _, err := c.lookup(ctx, query)
	return v, ok, err
}

// lookup returns the cached value, or the query embedding on a miss so a
// following store does not embed twice.
func (c *SimilarityCache[V]) lookup(ctx context.Context, query string) (V, bool, []float32, error) {
	var zero V
	key, err := c.fingerprint(query)
	if err != nil {
		return zero, false, nil, err
	}

	if v, ok := c.exact(key); ok {
		c.cfg.Metrics.RecordCacheLookup(ctx, c.cfg.Name, true)
		return v, true, nil, nil
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.recordMiss(ctx)
		return zero, false, nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	c.mu.Lock()
	now := c.cfg.Now()
	var best *entry[V]
	bestScore := -1.0
	for _, e := range c.entries.Values() {
		if c.expiredLocked(e, now) {
			continue
		}
		if score := Cosine(embedding, e.embedding); score > bestScore {
			best, bestScore = e, score
		}
	}
	if best != nil && bestScore >= c.threshold {
		c.hitLocked(best, now)
		v := best.value
		c.mu.Unlock()
		c.cfg.Metrics.RecordCacheLookup(ctx, c.cfg.Name, true)
		return v, true, nil, nil
	}
	c.misses++
	c.mu.Unlock()

	c.cfg.Metrics.RecordCacheLookup(ctx, c.cfg.Name, false)
	return zero, false, embedding, nil
}

func (c *SimilarityCache[V]) exact(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	now := c.cfg.Now()
	if c.expiredLocked(e, now) {
		c.entries.Remove(key)
		c.expired++
		var zero V
		return zero, false
	}
	c.hitLocked(e, now)
	return e.value, true
}

func (c *SimilarityCache[V]) recordMiss(ctx context.Context) {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	c.cfg.Metrics.RecordCacheLookup(ctx, c.cfg.Name, false)
}

// Put stores value under query, evicting the least recently used entry
// when the cache is full.
func (c *SimilarityCache[V]) Put(ctx context.Context, query string, value V) error {
	key, err := c.fingerprint(query)
	if err != nil {
		return err
	}
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	c.store(key, embedding, value)
	return nil
}

func (c *SimilarityCache[V]) store(key string, embedding []float32, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	if e, ok := c.entries.Get(key); ok {
		e.embedding = embedding
		e.value = value
		e.createdAt = now
		e.lastAccessedAt = now
		return
	}

	if c.entries.Len() >= c.cfg.MaxSize {
		c.removeExpiredLocked(now)
	}
	e := &entry[V]{
		key:            key,
		embedding:      embedding,
		value:          value,
		createdAt:      now,
		lastAccessedAt: now,
	}
	if evicted := c.entries.Add(key, e); evicted {
		c.evictions++
	}
}

// GetOrLoad returns the cached value for query or calls load and caches
// its result. Concurrent loads of the same fingerprint share one call,
// which runs with the context of the first caller.
func (c *SimilarityCache[V]) GetOrLoad(ctx context.Context, query string, load func(context.Context) (V, error)) (V, error) {
	key, err := c.fingerprint(query)
	if err != nil {
		var zero V
		return zero, err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		cached, ok, embedding, err := c.lookup(ctx, query)
		if err != nil {
			return cached, err
		}
		if ok {
			return cached, nil
		}

		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		c.store(key, embedding, loaded)
		return loaded, nil
	})
	value, _ := v.(V)
	return value, err
}

// RemoveExpiredEntries evicts entries older than the TTL and returns how
// many were removed.
func (c *SimilarityCache[V]) RemoveExpiredEntries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked(c.cfg.Now())
}

// Shrink keeps the most recently used ceil(size × fraction) entries and
// returns how many were evicted. fraction is clamped to [0, 1].
func (c *SimilarityCache[V]) Shrink(fraction float64) int {
	switch {
	case math.IsNaN(fraction) || fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keep := int(math.Ceil(float64(c.entries.Len()) * fraction))
	removed := 0
	for c.entries.Len() > keep {
		c.entries.RemoveOldest()
		removed++
	}
	c.evictions += int64(removed)
	return removed
}

// Clear removes every entry. Hit and miss counters are kept.
func (c *SimilarityCache[V]) Clear() {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
}

// Size returns the number of stored entries, including expired ones not
// yet removed.
func (c *SimilarityCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *SimilarityCache[V]) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hitRateLocked()
}

// Stats returns a snapshot of cache counters.
func (c *SimilarityCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.entries.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		HitRate:   c.hitRateLocked(),
	}
}

func (c *SimilarityCache[V]) hitRateLocked() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *SimilarityCache[V]) fingerprint(query string) (string, error) {
	if err := ValidateQuery(query); err != nil {
		return "", err
	}
	return c.cfg.Keyer.Key(c.cfg.Name, query)
}

func (c *SimilarityCache[V]) expiredLocked(e *entry[V], now time.Time) bool {
	return now.Sub(e.createdAt) > c.cfg.TTL
}

// hitLocked marks e most recently used.
func (c *SimilarityCache[V]) hitLocked(e *entry[V], now time.Time) {
	c.entries.Get(e.key)
	e.lastAccessedAt = now
	e.hitCount++
	c.hits++
}

func (c *SimilarityCache[V]) removeExpiredLocked(now time.Time) int {
	removed := 0
	for _, e := range c.entries.Values() {
		if c.expiredLocked(e, now) {
			c.entries.Remove(e.key)
			removed++
		}
	}
	c.expired += int64(removed)
	return removed
}
