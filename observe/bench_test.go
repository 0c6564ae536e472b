package observe

import (
	"context"
	"io"
	"testing"
)

func BenchmarkLogger_Info(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard).With(F("component", "bench"))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "message", F("n", i))
	}
}

func BenchmarkEventBus_Publish(b *testing.B) {
	bus := NewEventBus()
	_, _ = bus.Subscribe(TopicAll, func(context.Context, Event) {})
	ctx := context.Background()
	payload := map[string]any{"breaker": "llm"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bus.Publish(ctx, TopicBreakerOpened, payload)
	}
}

func BenchmarkMiddleware_Run(b *testing.B) {
	mw := NewMiddleware(NewNoopTracer(), NoopMetrics(), NopLogger())
	ctx := context.Background()
	meta := OperationMeta{Category: "llm", Name: "chat"}
	fn := func(context.Context) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mw.Run(ctx, meta, fn)
	}
}
