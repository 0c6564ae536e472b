package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Timeout bounds a CheckAll pass.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxConcurrency limits checks running at once. Zero or negative runs
	// every check concurrently; 1 runs them one after another.
	MaxConcurrency int
}

// NamedResult pairs a result with the name it was registered under.
type NamedResult struct {
	Name string
	Result
}

// Report is the outcome of one CheckAll pass.
type Report struct {
	Status    Status
	Checks    []NamedResult // registration order
	Timestamp time.Time
}

// Lookup returns the result for name.
func (r Report) Lookup(name string) (Result, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c.Result, true
		}
	}
	return Result{}, false
}

// Aggregator runs a set of named checkers and combines their results.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Results are reported in registration order.
// - A checker that overruns its deadline or panics is reported unhealthy.
type Aggregator struct {
	config AggregatorConfig

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Aggregator{
		config:   cfg,
		checkers: make(map[string]Checker),
	}
}

// Register adds or replaces a checker. Replacing keeps the original position.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = checker
}

// Unregister removes a checker.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.checkers[name]; !ok {
		return
	}
	delete(a.checkers, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// CheckerNames returns registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Check runs one named checker.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrCheckerNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return runCheck(ctx, checker), nil
}

// CheckAll runs every checker and returns their results with the worst
// status as the overall status.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	a.mu.RLock()
	names := append([]string(nil), a.order...)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = a.checkers[name]
	}
	a.mu.RUnlock()

	report := Report{
		Checks:    make([]NamedResult, len(names)),
		Timestamp: time.Now(),
	}
	if len(names) == 0 {
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var g errgroup.Group
	if a.config.MaxConcurrency > 0 {
		g.SetLimit(a.config.MaxConcurrency)
	}
	for i := range checkers {
		g.Go(func() error {
			// Each goroutine writes only its own slot.
			report.Checks[i] = NamedResult{Name: names[i], Result: runCheck(ctx, checkers[i])}
			return nil
		})
	}
	_ = g.Wait()

	statuses := make([]Status, len(report.Checks))
	for i, c := range report.Checks {
		statuses[i] = c.Status
	}
	report.Status = Worst(statuses...)
	return report
}

func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Unhealthy(fmt.Sprintf("check panicked: %v", r), ErrCheckPanic)
			}
		}()
		resultCh <- checker.Check(ctx)
	}()

	var result Result
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		result = Result{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   ErrCheckTimeout,
		}
	}
	result.Duration = time.Since(start)
	if result.Timestamp.IsZero() {
		result.Timestamp = start
	}
	return result
}

// Checker exposes the aggregator as a single Checker so it can be nested.
func (a *Aggregator) Checker(name string) Checker {
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		report := a.CheckAll(ctx)

		details := make(map[string]any, len(report.Checks))
		for _, c := range report.Checks {
			details[c.Name] = c.Status.String()
		}

		var message string
		switch report.Status {
		case StatusHealthy:
			message = "all checks passed"
		case StatusDegraded:
			message = "some checks degraded"
		default:
			message = "some checks failed"
		}
		return Result{
			Status:    report.Status,
			Message:   message,
			Details:   details,
			Timestamp: report.Timestamp,
		}
	})
}
