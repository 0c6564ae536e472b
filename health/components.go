package health

import (
	"context"
	"fmt"
	"sort"

	"github.com/app-appplayer/flutter-mcp-sub003/lifecycle"
	"github.com/app-appplayer/flutter-mcp-sub003/pressure"
)

// BreakerSource lists circuit breakers. *resilience.Breakers satisfies it.
type BreakerSource interface {
	Names() []string
	Open() []string
}

// BreakerChecker reports degraded while any breaker is open.
type BreakerChecker struct {
	source BreakerSource
}

// NewBreakerChecker creates a checker over source.
func NewBreakerChecker(source BreakerSource) *BreakerChecker {
	return &BreakerChecker{source: source}
}

func (c *BreakerChecker) Name() string { return "breakers" }

func (c *BreakerChecker) Check(ctx context.Context) Result {
	open := c.source.Open()
	sort.Strings(open)
	details := map[string]any{
		"total": len(c.source.Names()),
		"open":  open,
	}
	if len(open) > 0 {
		return Degraded(fmt.Sprintf("%d circuit breaker(s) open", len(open))).WithDetails(details)
	}
	return Healthy("all circuit breakers closed").WithDetails(details)
}

// PressureSource reports memory pressure. *pressure.Controller satisfies it.
type PressureSource interface {
	Severity() pressure.Severity
	CurrentMB() float64
	PeakMB() float64
	ThresholdMB() float64
}

// PressureChecker maps the last sampled severity to a status: low and medium
// are degraded, critical is unhealthy.
type PressureChecker struct {
	source PressureSource
}

// NewPressureChecker creates a checker over source.
func NewPressureChecker(source PressureSource) *PressureChecker {
	return &PressureChecker{source: source}
}

func (c *PressureChecker) Name() string { return "memory" }

func (c *PressureChecker) Check(ctx context.Context) Result {
	sev := c.source.Severity()
	details := map[string]any{
		"current_mb":   c.source.CurrentMB(),
		"peak_mb":      c.source.PeakMB(),
		"threshold_mb": c.source.ThresholdMB(),
		"severity":     int(sev),
	}
	msg := fmt.Sprintf("memory %.1fMB of %.1fMB threshold", c.source.CurrentMB(), c.source.ThresholdMB())

	switch {
	case sev >= pressure.SeverityCritical:
		return Unhealthy(msg, ErrCheckFailed).WithDetails(details)
	case sev > pressure.SeverityNone:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}

// LifecycleSource reports registry statistics. *lifecycle.Manager
// satisfies it.
type LifecycleSource interface {
	Stats() lifecycle.Stats
}

// LifecycleChecker reports resource counts and degrades when entries have
// outlived the manager's leak age.
type LifecycleChecker struct {
	source LifecycleSource
}

// NewLifecycleChecker creates a checker over source.
func NewLifecycleChecker(source LifecycleSource) *LifecycleChecker {
	return &LifecycleChecker{source: source}
}

func (c *LifecycleChecker) Name() string { return "resources" }

func (c *LifecycleChecker) Check(ctx context.Context) Result {
	s := c.source.Stats()

	byPriority := make(map[string]int, len(s.ByPriority))
	for p, n := range s.ByPriority {
		byPriority[p.String()] = n
	}
	suspected := make([]string, len(s.Suspected))
	for i, e := range s.Suspected {
		suspected[i] = e.Key
	}
	details := map[string]any{
		"live":        s.Live,
		"by_type":     s.ByType,
		"by_priority": byPriority,
		"disposed":    s.Disposed,
		"failed":      s.Failed,
		"suspected":   suspected,
	}

	if len(suspected) > 0 {
		return Degraded(fmt.Sprintf("%d resource(s) suspected leaked", len(suspected))).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d resource(s) live", s.Live)).WithDetails(details)
}
