package core

import (
	"io"

	"github.com/app-appplayer/flutter-mcp-sub003/cache"
	"github.com/app-appplayer/flutter-mcp-sub003/observe"
	"github.com/app-appplayer/flutter-mcp-sub003/pressure"
)

type options struct {
	logWriter io.Writer
	logger    observe.Logger
	sampler   pressure.Sampler
	retryIf   func(error) bool
}

// Option customizes New.
type Option func(*options)

// WithLogWriter sends JSON logs to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) { o.logWriter = w }
}

// WithLogger replaces the configured logger entirely.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSampler overrides the memory sampler chosen by memory.sampler.
func WithSampler(s pressure.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithRetryIf overrides which errors Invoke retries.
// Default: resilience.IsTransient
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) { o.retryIf = fn }
}

// CacheOption adjusts one cache built by NewSimilarityCache.
type CacheOption func(*cache.SimilarityConfig)

// WithCacheSize overrides cache.max_size.
func WithCacheSize(n int) CacheOption {
	return func(c *cache.SimilarityConfig) { c.MaxSize = n }
}

// WithCacheThreshold overrides cache.similarity_threshold.
func WithCacheThreshold(t float64) CacheOption {
	return func(c *cache.SimilarityConfig) { c.SimilarityThreshold = cache.Threshold(t) }
}

// WithCacheKeyer sets the fingerprint keyer.
func WithCacheKeyer(k cache.Keyer) CacheOption {
	return func(c *cache.SimilarityConfig) { c.Keyer = k }
}
