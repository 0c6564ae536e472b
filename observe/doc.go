// Package observe provides observability primitives for the resilience core.
//
// It bundles a JSON structured Logger, OpenTelemetry metrics and tracing
// behind an Observer built from Config, and an in-process EventBus that
// carries breaker transitions, memory-pressure cleanups and disposal
// notices to subscribers as named topics with a payload map.
//
// It performs no I/O beyond exporter setup and the logger's writer.
package observe
