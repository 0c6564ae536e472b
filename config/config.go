package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/app-appplayer/flutter-mcp-sub003/observe"
)

// Config is the full configuration of the resilience core. All durations
// are Go duration strings ("30s", "1m").
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retry     RetryConfig     `yaml:"retry"`
	Bulkhead  BulkheadConfig  `yaml:"bulkhead"`
	Memory    MemoryConfig    `yaml:"memory"`
	Cache     CacheConfig     `yaml:"cache"`
	Pool      PoolConfig      `yaml:"pool"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Health    HealthConfig    `yaml:"health"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

type TracingConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Exporter  string  `yaml:"exporter"`
	SamplePct float64 `yaml:"sample_pct"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// BreakerConfig is the template for every per-category circuit breaker.
type BreakerConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	ResetTimeout        time.Duration `yaml:"reset_timeout"`
	HalfOpenMaxRequests int           `yaml:"half_open_max_requests"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Timeout       time.Duration `yaml:"timeout"`
	Jitter        bool          `yaml:"jitter"`

	// AttemptTimeout bounds each attempt. Zero disables it.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// BulkheadConfig is the template for every per-category concurrency limit.
// MaxConcurrent 0 disables bulkheads. MaxWait 0 rejects at once when full.
type BulkheadConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

type MemoryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ThresholdMB    float64       `yaml:"threshold_mb"`
	Interval       time.Duration `yaml:"interval"`
	ShrinkFraction float64       `yaml:"shrink_fraction"`
	HistorySize    int           `yaml:"history_size"`

	// Sampler is "runtime" or "procfs".
	Sampler string `yaml:"sampler"`
}

type CacheConfig struct {
	MaxSize             int           `yaml:"max_size"`
	TTL                 time.Duration `yaml:"ttl"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	MaxQueryLength      int           `yaml:"max_query_length"`
}

// PoolConfig sizes the shared backoff timer pool.
type PoolConfig struct {
	InitialSize int `yaml:"initial_size"`
	MaxSize     int `yaml:"max_size"`
}

type LifecycleConfig struct {
	DisposeTimeout time.Duration `yaml:"dispose_timeout"`
	LeakAge        time.Duration `yaml:"leak_age"`
}

type HealthConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// ValidSamplers lists accepted memory.sampler values.
var ValidSamplers = []string{"runtime", "procfs", ""}

// Default returns a configuration that passes Validate.
func Default() Config {
	return Config{
		Service: ServiceConfig{Name: "mcp-core", Version: "dev"},
		Logging: LoggingConfig{Enabled: true, Level: "info"},
		Tracing: TracingConfig{Exporter: "none", SamplePct: 1.0},
		Metrics: MetricsConfig{Exporter: "none"},
		Breaker: BreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
			Timeout:       30 * time.Second,
			Jitter:        true,
		},
		Bulkhead: BulkheadConfig{MaxConcurrent: 64},
		Memory: MemoryConfig{
			Enabled:        true,
			ThresholdMB:    500,
			Interval:       30 * time.Second,
			ShrinkFraction: 0.5,
			HistorySize:    60,
			Sampler:        "runtime",
		},
		Cache: CacheConfig{
			MaxSize:             1000,
			TTL:                 time.Hour,
			SimilarityThreshold: 0.85,
			MaxQueryLength:      16 << 10,
		},
		Pool: PoolConfig{InitialSize: 4, MaxSize: 32},
		Lifecycle: LifecycleConfig{
			DisposeTimeout: 10 * time.Second,
		},
		Health: HealthConfig{Timeout: 10 * time.Second},
	}
}

// Load reads the YAML file at path. See Parse.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands ${VAR} references, decodes YAML over Default() and
// validates the result. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting, joined into one error.
func (c Config) Validate() error {
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Service.Name == "" {
		fail("service.name is required")
	}
	if !slices.Contains(observe.ValidLogLevels, c.Logging.Level) {
		fail("logging.level %q", c.Logging.Level)
	}
	if !slices.Contains(observe.ValidTracingExporters, c.Tracing.Exporter) {
		fail("tracing.exporter %q", c.Tracing.Exporter)
	}
	if !inUnit(c.Tracing.SamplePct) {
		fail("tracing.sample_pct %v not in [0,1]", c.Tracing.SamplePct)
	}
	if !slices.Contains(observe.ValidMetricsExporters, c.Metrics.Exporter) {
		fail("metrics.exporter %q", c.Metrics.Exporter)
	}

	if c.Breaker.FailureThreshold <= 0 {
		fail("breaker.failure_threshold must be positive")
	}
	if c.Breaker.ResetTimeout <= 0 {
		fail("breaker.reset_timeout must be positive")
	}
	if c.Breaker.HalfOpenMaxRequests < 0 {
		fail("breaker.half_open_max_requests must not be negative")
	}

	if c.Retry.MaxRetries < 0 {
		fail("retry.max_retries must not be negative")
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 || c.Retry.Timeout < 0 || c.Retry.AttemptTimeout < 0 {
		fail("retry durations must not be negative")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.InitialDelay {
		fail("retry.max_delay %s below initial_delay %s", c.Retry.MaxDelay, c.Retry.InitialDelay)
	}
	if c.Retry.BackoffFactor < 1 && c.Retry.BackoffFactor != 0 {
		fail("retry.backoff_factor %v below 1", c.Retry.BackoffFactor)
	}

	if c.Bulkhead.MaxConcurrent < 0 {
		fail("bulkhead.max_concurrent must not be negative")
	}
	if c.Bulkhead.MaxWait < 0 {
		fail("bulkhead.max_wait must not be negative")
	}

	if c.Memory.ThresholdMB <= 0 || math.IsNaN(c.Memory.ThresholdMB) {
		fail("memory.threshold_mb must be positive")
	}
	if !inUnit(c.Memory.ShrinkFraction) {
		fail("memory.shrink_fraction %v not in [0,1]", c.Memory.ShrinkFraction)
	}
	if c.Memory.Interval < 0 {
		fail("memory.interval must not be negative")
	}
	if !slices.Contains(ValidSamplers, c.Memory.Sampler) {
		fail("memory.sampler %q", c.Memory.Sampler)
	}

	if c.Cache.MaxSize < 0 {
		fail("cache.max_size must not be negative")
	}
	if c.Cache.TTL < 0 {
		fail("cache.ttl must not be negative")
	}
	if !inUnit(c.Cache.SimilarityThreshold) {
		fail("cache.similarity_threshold %v not in [0,1]", c.Cache.SimilarityThreshold)
	}

	if c.Pool.InitialSize < 0 || c.Pool.MaxSize < c.Pool.InitialSize {
		fail("pool sizes need 0 <= initial_size (%d) <= max_size (%d)", c.Pool.InitialSize, c.Pool.MaxSize)
	}

	if c.Lifecycle.DisposeTimeout < 0 || c.Lifecycle.LeakAge < 0 {
		fail("lifecycle durations must not be negative")
	}
	if c.Health.Timeout < 0 {
		fail("health.timeout must not be negative")
	}

	return errors.Join(problems...)
}

func inUnit(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= 1
}

// Observe converts the telemetry sections to an observe.Config.
func (c Config) Observe() observe.Config {
	return observe.Config{
		ServiceName: c.Service.Name,
		Version:     c.Service.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Tracing.Enabled,
			Exporter:  c.Tracing.Exporter,
			SamplePct: c.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Metrics.Enabled,
			Exporter: c.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: c.Logging.Enabled,
			Level:   c.Logging.Level,
		},
	}
}
