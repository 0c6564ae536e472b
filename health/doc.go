// Package health reports whether the resilience core is serving normally.
//
// An Aggregator runs named Checkers concurrently and combines their results;
// the overall status is the worst individual one. Ready-made checkers cover
// the core's own components:
//
//   - BreakerChecker: degraded while any circuit breaker is open.
//   - PressureChecker: degraded at memory severity low or medium, unhealthy
//     at critical.
//   - LifecycleChecker: resource counts, degraded when entries look leaked.
//
// Usage:
//
//	agg := health.NewAggregator()
//	agg.Register("breakers", health.NewBreakerChecker(breakers))
//	agg.Register("memory", health.NewPressureChecker(controller))
//	agg.Register("resources", health.NewLifecycleChecker(manager))
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// Degraded answers 200 on /readyz: both breakers and memory cleanup recover
// without intervention. Only unhealthy answers 503.
package health
