package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/app-appplayer/flutter-mcp-sub003/cache"
	"github.com/app-appplayer/flutter-mcp-sub003/config"
	"github.com/app-appplayer/flutter-mcp-sub003/health"
	"github.com/app-appplayer/flutter-mcp-sub003/lifecycle"
	"github.com/app-appplayer/flutter-mcp-sub003/observe"
	"github.com/app-appplayer/flutter-mcp-sub003/pool"
	"github.com/app-appplayer/flutter-mcp-sub003/pressure"
	"github.com/app-appplayer/flutter-mcp-sub003/resilience"
)

// Registry keys for the resources Core owns.
const (
	KeyBreakers = "core.breakers"
	KeyTimers   = "core.timers"
	KeyMemory   = "core.memory"
	KeyEvents   = "core.events"
)

// Core is the process context: one per process, passed to every component
// that needs breakers, caches or teardown.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Close is idempotent; later calls return the first Report.
type Core struct {
	cfg        config.Config
	observer   observe.Observer
	logger     observe.Logger
	metrics    observe.Metrics
	middleware *observe.Middleware
	events     *observe.EventBus
	resources  *lifecycle.Manager
	breakers   *resilience.Breakers
	bulkheads  *resilience.Bulkheads
	timers     *pool.TimerPool
	memory     *pressure.Controller
	health     *health.Aggregator
	retryIf    func(error) bool

	closed    atomic.Bool
	closeOnce sync.Once
	report    lifecycle.Report
}

// New validates cfg and builds every component. Nothing runs in the
// background until Start.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	oc := cfg.Observe()
	oc.Logging.Writer = o.logWriter
	obs, err := observe.NewObserver(ctx, oc)
	if err != nil {
		return nil, fmt.Errorf("core: observer: %w", err)
	}
	metrics, err := observe.NewMetrics(obs.Meter())
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("core: metrics: %w", err)
	}

	logger := obs.Logger()
	if o.logger != nil {
		logger = o.logger
	}
	logger = logger.With(observe.F("service", cfg.Service.Name))

	c := &Core{
		cfg:      cfg,
		observer: obs,
		logger:   logger,
		metrics:  metrics,
		retryIf:  o.retryIf,
	}
	if c.retryIf == nil {
		c.retryIf = resilience.IsTransient
	}

	c.middleware = observe.NewMiddleware(observe.NewTracer(obs.Tracer()), metrics, logger).
		WithClassifier(classify)
	c.events = observe.NewEventBus(observe.WithEventLogger(logger))
	c.resources = lifecycle.New(lifecycle.Config{
		DisposeTimeout: cfg.Lifecycle.DisposeTimeout,
		LeakAge:        cfg.Lifecycle.LeakAge,
		Logger:         logger,
		Metrics:        metrics,
		Events:         c.events,
	})
	c.breakers = resilience.NewBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold:    cfg.Breaker.FailureThreshold,
		ResetTimeout:        cfg.Breaker.ResetTimeout,
		HalfOpenMaxRequests: cfg.Breaker.HalfOpenMaxRequests,
	}, c.watchBreaker)
	if cfg.Bulkhead.MaxConcurrent > 0 {
		c.bulkheads = resilience.NewBulkheads(resilience.BulkheadConfig{
			MaxConcurrent: cfg.Bulkhead.MaxConcurrent,
			MaxWait:       cfg.Bulkhead.MaxWait,
		})
	}
	c.timers = pool.NewTimerPool(cfg.Pool.InitialSize, cfg.Pool.MaxSize)

	sampler := o.sampler
	if sampler == nil {
		sampler = newSampler(cfg.Memory.Sampler)
	}
	c.memory, err = pressure.New(pressure.Config{
		ThresholdMB:    cfg.Memory.ThresholdMB,
		Interval:       cfg.Memory.Interval,
		ShrinkFraction: cfg.Memory.ShrinkFraction,
		HistorySize:    cfg.Memory.HistorySize,
		Sampler:        sampler,
		Index:          c.resources,
		Logger:         logger,
		Metrics:        metrics,
		Events:         c.events,
	})
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("core: memory controller: %w", err)
	}

	if err := c.registerOwned(ctx); err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	c.health = health.NewAggregator(health.AggregatorConfig{
		Timeout:        cfg.Health.Timeout,
		MaxConcurrency: cfg.Health.MaxConcurrency,
	})
	c.health.Register("breakers", health.NewBreakerChecker(c.breakers))
	c.health.Register("memory", health.NewPressureChecker(c.memory))
	c.health.Register("resources", health.NewLifecycleChecker(c.resources))

	return c, nil
}

func newSampler(name string) pressure.Sampler {
	if name == "procfs" {
		return pressure.NewProcSampler()
	}
	return pressure.RuntimeSampler{}
}

// registerOwned hands Core's own components to the lifecycle manager so that
// memory cleanup can reach them and Close tears them down.
func (c *Core) registerOwned(ctx context.Context) error {
	regs := []struct {
		key      string
		value    any
		dispose  lifecycle.DisposeFunc
		priority lifecycle.Priority
		typ      string
		desc     string
	}{
		{KeyMemory, c.memory, func(context.Context) error {
			c.memory.Stop()
			return nil
		}, lifecycle.PriorityHigh, "memory", "memory-pressure sampler"},
		{KeyBreakers, c.breakers, func(context.Context) error {
			c.breakers.Reset()
			return nil
		}, lifecycle.PriorityMedium, "breakers", "circuit breaker registry"},
		{KeyTimers, c.timers, func(context.Context) error {
			c.timers.Clear()
			return nil
		}, lifecycle.PriorityLow, "pool", "backoff timer pool"},
		{KeyEvents, c.events, func(context.Context) error {
			c.events.ClearHistory()
			return nil
		}, lifecycle.PriorityLow, "events", "event history"},
	}
	for _, r := range regs {
		err := c.resources.Register(ctx, r.key, r.value, r.dispose, r.priority,
			lifecycle.WithType(r.typ), lifecycle.WithDescription(r.desc))
		if err != nil {
			return fmt.Errorf("core: register %s: %w", r.key, err)
		}
	}
	return nil
}

// watchBreaker attaches logging, metrics and events to a new breaker.
func (c *Core) watchBreaker(cb *resilience.CircuitBreaker) {
	cb.AddListener(resilience.StateListenerFunc(func(name string, from, to resilience.State) {
		ctx := context.Background()
		c.logger.Info(ctx, "circuit breaker transition",
			observe.F("breaker", name),
			observe.F("from", from.String()),
			observe.F("to", to.String()))
		c.metrics.RecordBreakerTransition(ctx, name, from.String(), to.String())

		var topic string
		switch to {
		case resilience.StateOpen:
			topic = observe.TopicBreakerOpened
		case resilience.StateClosed:
			topic = observe.TopicBreakerClosed
		case resilience.StateHalfOpen:
			topic = observe.TopicBreakerHalfOpen
		default:
			return
		}
		_ = c.events.Publish(ctx, topic, map[string]any{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
	}))
}

func classify(err error) string {
	switch {
	case err == nil:
		return observe.OutcomeSuccess
	case resilience.IsDegraded(err):
		return observe.OutcomeDegraded
	default:
		return observe.OutcomeFailure
	}
}

// Start begins periodic memory sampling when memory.enabled is set.
func (c *Core) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.cfg.Memory.Enabled {
		return nil
	}
	return c.memory.Start(ctx)
}

// Close stops sampling, disposes every registered resource in priority order
// and shuts telemetry down.
func (c *Core) Close(ctx context.Context) lifecycle.Report {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.memory.Stop()
		c.report = c.resources.DisposeAll(ctx)
		if err := c.observer.Shutdown(ctx); err != nil {
			c.logger.Error(ctx, "telemetry shutdown failed", observe.Err(err))
		}
	})
	return c.report
}

// Breaker returns the circuit breaker for an operation category.
func (c *Core) Breaker(category string) *resilience.CircuitBreaker {
	return c.breakers.Get(category)
}

// Bulkhead returns the concurrency limit for category, or nil when
// bulkhead.max_concurrent is 0.
func (c *Core) Bulkhead(category string) *resilience.Bulkhead {
	if c.bulkheads == nil {
		return nil
	}
	return c.bulkheads.Get(category)
}

// RetryPolicy returns the configured retry policy for category. Retries are
// logged and counted.
func (c *Core) RetryPolicy(category string) resilience.RetryPolicy {
	r := c.cfg.Retry
	return resilience.RetryPolicy{
		MaxRetries:    r.MaxRetries,
		InitialDelay:  r.InitialDelay,
		MaxDelay:      r.MaxDelay,
		BackoffFactor: r.BackoffFactor,
		Timeout:       r.Timeout,
		Jitter:        r.Jitter,
		RetryIf:       c.retryIf,
		Timers:        c.timers,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			ctx := context.Background()
			c.metrics.RecordRetry(ctx, category)
			c.logger.Debug(ctx, "retrying operation",
				observe.F("category", category),
				observe.F("attempt", attempt),
				observe.F("delay_ms", delay.Milliseconds()),
				observe.Err(err))
		},
	}
}

// Executor builds the breaker/bulkhead/retry/timeout chain for category.
func (c *Core) Executor(category string) *resilience.Executor {
	opts := []resilience.ExecutorOption{
		resilience.WithCircuitBreaker(c.Breaker(category)),
		resilience.WithRetryPolicy(c.RetryPolicy(category)),
	}
	if b := c.Bulkhead(category); b != nil {
		opts = append(opts, resilience.WithBulkhead(b))
	}
	if c.cfg.Retry.AttemptTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(c.cfg.Retry.AttemptTimeout))
	}
	return resilience.NewExecutor(opts...)
}

// Invoke runs op for category through the breaker, retries and a span.
// Breaker-open, bulkhead-full, timeout and exhausted transient failures come
// back degraded.
func Invoke[T any](ctx context.Context, c *Core, category string, op func(context.Context) (T, error)) resilience.Result[T] {
	if category == "" {
		return resilience.Failed[T](ErrInvalidCategory)
	}
	if c.closed.Load() {
		return resilience.Failed[T](ErrClosed)
	}

	exec := c.Executor(category)
	var out T
	err := c.middleware.Run(ctx, operationMeta(category), func(ctx context.Context) error {
		v, err := resilience.Do(ctx, exec, op)
		out = v
		return err
	})
	return resilience.ResultOf(out, err)
}

// operationMeta splits "llm.chat" into category "llm" and name "chat".
func operationMeta(category string) observe.OperationMeta {
	if group, name, ok := strings.Cut(category, "."); ok && group != "" && name != "" {
		return observe.OperationMeta{Category: group, Name: name}
	}
	return observe.OperationMeta{Name: category}
}

// NewSimilarityCache builds a cache from the cache section and registers it
// at medium priority under "cache.<name>".
func NewSimilarityCache[V any](ctx context.Context, c *Core, name string, embedder cache.Embedder, opts ...CacheOption) (*cache.SimilarityCache[V], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	cfg := cache.SimilarityConfig{
		Name:                name,
		MaxSize:             c.cfg.Cache.MaxSize,
		TTL:                 c.cfg.Cache.TTL,
		SimilarityThreshold: cache.Threshold(c.cfg.Cache.SimilarityThreshold),
		Metrics:             c.metrics,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sc, err := cache.NewSimilarityCache[V](embedder, cfg)
	if err != nil {
		return nil, err
	}
	err = c.resources.Register(ctx, "cache."+name, sc, func(context.Context) error {
		sc.Clear()
		return nil
	}, lifecycle.PriorityMedium, lifecycle.WithType("cache"), lifecycle.WithDescription("similarity cache "+name))
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// CachePolicy returns the caching policy implied by the cache section.
func (c *Core) CachePolicy() cache.Policy {
	p := cache.DefaultPolicy()
	if c.cfg.Cache.MaxQueryLength > 0 {
		p.MaxQueryLength = c.cfg.Cache.MaxQueryLength
	}
	return p
}

// RegisterResource tracks an external collaborator, such as a protocol
// connection or provider client, for teardown and memory cleanup.
func (c *Core) RegisterResource(ctx context.Context, key string, value any, dispose lifecycle.DisposeFunc, priority lifecycle.Priority, opts ...lifecycle.Option) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.resources.Register(ctx, key, value, dispose, priority, opts...)
}

// Config returns the configuration Core was built with.
func (c *Core) Config() config.Config { return c.cfg }

// Logger returns the shared logger.
func (c *Core) Logger() observe.Logger { return c.logger }

// Metrics returns the shared metrics recorder.
func (c *Core) Metrics() observe.Metrics { return c.metrics }

// Events returns the event bus.
func (c *Core) Events() *observe.EventBus { return c.events }

// Resources returns the lifecycle manager.
func (c *Core) Resources() *lifecycle.Manager { return c.resources }

// Breakers returns the breaker registry.
func (c *Core) Breakers() *resilience.Breakers { return c.breakers }

// Memory returns the memory-pressure controller.
func (c *Core) Memory() *pressure.Controller { return c.memory }

// Timers returns the shared backoff timer pool.
func (c *Core) Timers() *pool.TimerPool { return c.timers }

// Health returns the aggregator with the breaker, memory and resource
// checkers registered.
func (c *Core) Health() *health.Aggregator { return c.health }
