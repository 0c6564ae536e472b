package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records resilience and resource-management metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records one guarded operation with duration and outcome.
	RecordOperation(ctx context.Context, meta OperationMeta, duration time.Duration, outcome string)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, breaker, from, to string)

	// RecordRetry records one retry of an operation class.
	RecordRetry(ctx context.Context, category string)

	// RecordCacheLookup records a cache hit or miss.
	RecordCacheLookup(ctx context.Context, cache string, hit bool)

	// RecordDisposal records one resource disposal attempt.
	RecordDisposal(ctx context.Context, resourceType string, err error)

	// RecordMemory records a memory sample and the cleanup tier it triggered.
	RecordMemory(ctx context.Context, usageMB float64, severity int)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	operations   metric.Int64Counter
	durationHist metric.Float64Histogram
	transitions  metric.Int64Counter
	retries      metric.Int64Counter
	lookups      metric.Int64Counter
	disposals    metric.Int64Counter
	cleanups     metric.Int64Counter
	usage        metric.Float64Gauge
}

// NewMetrics creates a Metrics instance whose instruments come from meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.operations, err = meter.Int64Counter(
		"operation.total",
		metric.WithDescription("Total number of guarded operations"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.durationHist, err = meter.Float64Histogram(
		"operation.duration_ms",
		metric.WithDescription("Guarded operation duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.transitions, err = meter.Int64Counter(
		"breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}

	if m.retries, err = meter.Int64Counter(
		"retry.attempts",
		metric.WithDescription("Retries after a transient failure"),
		metric.WithUnit("{retry}"),
	); err != nil {
		return nil, err
	}

	if m.lookups, err = meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Similarity cache lookups"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}

	if m.disposals, err = meter.Int64Counter(
		"lifecycle.disposals",
		metric.WithDescription("Resource disposal attempts"),
		metric.WithUnit("{disposal}"),
	); err != nil {
		return nil, err
	}

	if m.cleanups, err = meter.Int64Counter(
		"memory.cleanups",
		metric.WithDescription("Memory-pressure cleanup passes"),
		metric.WithUnit("{cleanup}"),
	); err != nil {
		return nil, err
	}

	if m.usage, err = meter.Float64Gauge(
		"memory.usage_mb",
		metric.WithDescription("Last sampled memory usage in megabytes"),
		metric.WithUnit("MBy"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta OperationMeta, duration time.Duration, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("operation.id", meta.ID()),
		attribute.String("operation.category", meta.Category),
		attribute.String("outcome", outcome),
	}
	if meta.Provider != "" {
		attrs = append(attrs, attribute.String("operation.provider", meta.Provider))
	}
	opt := metric.WithAttributes(attrs...)

	m.operations.Add(ctx, 1, opt)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, category string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation.category", category)))
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("result", result),
	))
}

func (m *metricsImpl) RecordDisposal(ctx context.Context, resourceType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.disposals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource.type", resourceType),
		attribute.String("outcome", outcome),
	))
}

func (m *metricsImpl) RecordMemory(ctx context.Context, usageMB float64, severity int) {
	m.usage.Record(ctx, usageMB)
	if severity > 0 {
		m.cleanups.Add(ctx, 1, metric.WithAttributes(attribute.Int("severity", severity)))
	}
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordOperation(context.Context, OperationMeta, time.Duration, string) {}
func (noopMetrics) RecordBreakerTransition(context.Context, string, string, string)       {}
func (noopMetrics) RecordRetry(context.Context, string)                                   {}
func (noopMetrics) RecordCacheLookup(context.Context, string, bool)                       {}
func (noopMetrics) RecordDisposal(context.Context, string, error)                         {}
func (noopMetrics) RecordMemory(context.Context, float64, int)                            {}

// MetricsOrNoop returns m, or a no-op Metrics if m is nil.
func MetricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return NoopMetrics()
	}
	return m
}
