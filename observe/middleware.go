package observe

import (
	"context"
	"time"
)

// Outcome labels recorded on spans, metrics and log entries.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailure  = "failure"
)

// ClassifyFunc maps an operation error to an outcome label.
type ClassifyFunc func(err error) string

func defaultClassify(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Middleware wraps guarded operations with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span context is passed to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	classify ClassifyFunc
}

// NewMiddleware creates a new Middleware with the given observability components.
// Nil components are replaced with no-op implementations.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	return &Middleware{
		tracer:   tracer,
		metrics:  MetricsOrNoop(metrics),
		logger:   OrNop(logger),
		classify: defaultClassify,
	}
}

// WithClassifier returns a copy of m that labels outcomes with fn.
func (m *Middleware) WithClassifier(fn ClassifyFunc) *Middleware {
	c := *m
	if fn != nil {
		c.classify = fn
	}
	return &c
}

// Metrics returns the metrics recorder used by m.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the logger used by m.
func (m *Middleware) Logger() Logger { return m.logger }

// Run executes fn inside a span and records its duration and outcome.
func (m *Middleware) Run(ctx context.Context, meta OperationMeta, fn func(context.Context) error) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	outcome := m.classify(err)
	m.tracer.EndSpan(span, outcome, err)
	m.metrics.RecordOperation(ctx, meta, duration, outcome)

	fields := []Field{
		F("operation.id", meta.ID()),
		F("outcome", outcome),
		F("duration_ms", float64(duration.Milliseconds())),
	}
	if meta.Provider != "" {
		fields = append(fields, F("operation.provider", meta.Provider))
	}

	switch outcome {
	case OutcomeSuccess:
		m.logger.Debug(ctx, "operation completed", fields...)
	case OutcomeDegraded:
		m.logger.Warn(ctx, "operation degraded", append(fields, Err(err))...)
	default:
		m.logger.Error(ctx, "operation failed", append(fields, Err(err))...)
	}

	return err
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
