// Package lifecycle tracks owned resources and tears them down in a fixed
// order.
//
// Every cache, pool, breaker registry and external connection registers with
// a Manager when it is created. DisposeAll then releases them high priority
// first, medium next and low last, in registration order inside each bucket.
// A failing or panicking dispose callback is logged and recorded in the
// Report; it never stops the rest of the teardown.
//
//	m := lifecycle.New(lifecycle.Config{DisposeTimeout: 5 * time.Second})
//	_ = m.RegisterCloser(ctx, "conn.primary", conn, lifecycle.PriorityHigh,
//	    lifecycle.WithType("connection"))
//	_ = m.RegisterCallback(ctx, "flush.metrics", flush, lifecycle.PriorityLow)
//
//	report := m.DisposeAll(ctx)
//	if err := report.Err(); err != nil {
//	    log.Printf("teardown: %v", err)
//	}
//
// Entries also serve as the index the memory-pressure controller walks when
// it looks for caches and pools to shrink.
package lifecycle
