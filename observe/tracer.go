package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OperationMeta describes a guarded operation for telemetry purposes.
type OperationMeta struct {
	Category string // Operation class, e.g. "llm" or "mcp" (required)
	Name     string // Operation name within the class (required)
	Provider string // Remote collaborator identifier (optional)
}

// SpanName returns the deterministic span name for this operation.
// Format: operation.<category>.<name> or operation.<name>
func (m OperationMeta) SpanName() string {
	return "operation." + m.ID()
}

// ID returns the fully qualified operation identifier.
func (m OperationMeta) ID() string {
	if m.Category != "" {
		return m.Category + "." + m.Name
	}
	return m.Name
}

// Tracer wraps OpenTelemetry tracing with operation span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a guarded operation.
	StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error and the outcome.
	EndSpan(span trace.Span, outcome string, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation.id", meta.ID()),
		attribute.String("operation.name", meta.Name),
	}
	if meta.Category != "" {
		attrs = append(attrs, attribute.String("operation.category", meta.Category))
	}
	if meta.Provider != "" {
		attrs = append(attrs, attribute.String("operation.provider", meta.Provider))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String("outcome", outcome))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NewNoopTracer creates a tracer whose spans are never recorded.
func NewNoopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
