// Package core wires the resilience, caching and resource-management
// packages into one process context.
//
// A Core owns:
//
//   - telemetry (logger, metrics, tracer) built from the config sections
//   - an event bus carrying breaker, memory and lifecycle events
//   - one circuit breaker and one bulkhead per operation category
//   - a pool of backoff timers shared by every retry
//   - a lifecycle manager holding every owned resource
//   - a memory-pressure controller that cleans those resources
//   - a health aggregator over breakers, memory and resources
//
// # Usage
//
//	cfg, err := config.Load("core.yaml")
//	if err != nil {
//	    return err
//	}
//	c, err := core.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close(context.Background())
//	_ = c.Start(ctx)
//
//	res := core.Invoke(ctx, c, "llm.chat", func(ctx context.Context) (string, error) {
//	    return provider.Chat(ctx, prompt)
//	})
//	if res.Outcome == resilience.OutcomeDegraded {
//	    // show "service degraded"
//	}
//
// Caches built with NewSimilarityCache and resources added with
// RegisterResource join the memory cleanup tiers and are disposed by Close
// in priority order.
package core
