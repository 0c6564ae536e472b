package pressure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/app-appplayer/flutter-mcp-sub003/observe"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultThresholdMB    = 500
	DefaultInterval       = 30 * time.Second
	DefaultShrinkFraction = 0.5
	DefaultHistorySize    = 60
)

// Config configures a Controller.
type Config struct {
	// ThresholdMB is the usage above which cleanup starts.
	ThresholdMB float64

	// Interval is the sampling period used by Start.
	Interval time.Duration

	// ShrinkFraction is the share of entries kept by tier 2 shrinking.
	// Zero selects DefaultShrinkFraction.
	ShrinkFraction float64

	// HistorySize bounds the number of retained readings.
	HistorySize int

	// Sampler defaults to RuntimeSampler.
	Sampler Sampler

	// Index lists cleanup candidates. Without one, only listeners run.
	Index Index

	Logger  observe.Logger
	Metrics observe.Metrics
	Events  observe.Publisher
	Now     func() time.Time
}

// Reading is one timestamped memory sample.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	UsageMB   float64   `json:"usage_mb"`
}

// Event describes one sample and the cleanup it triggered.
type Event struct {
	ID          string
	Timestamp   time.Time
	CurrentMB   float64
	PeakMB      float64
	ThresholdMB float64
	Severity    Severity
	Actions     []Action
	Errors      []error
}

// Reclaimed sums the items removed by all actions.
func (e Event) Reclaimed() int {
	n := 0
	for _, a := range e.Actions {
		n += a.Removed
	}
	return n
}

// Listener is notified after cleanup for every sample above the threshold.
type Listener interface {
	OnHighMemory(ctx context.Context, e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e Event)

func (f ListenerFunc) OnHighMemory(ctx context.Context, e Event) { f(ctx, e) }

// Controller samples memory and runs tiered cleanup over an Index.
//
// Contract:
// - Concurrency: safe for concurrent use. Check calls are serialized.
// - Cleanup steps and listeners run without the state lock held.
// - A failing step is logged and recorded on the Event; later steps run.
type Controller struct {
	cfg     Config
	logger  observe.Logger
	metrics observe.Metrics

	checkMu sync.Mutex

	mu        sync.RWMutex
	current   float64
	peak      float64
	severity  Severity
	history   []Reading
	listeners []Listener

	runMu   sync.Mutex
	stop    chan struct{}
	running sync.WaitGroup
	started bool

	// ticking is set while the sampling loop runs a Check.
	ticking atomic.Bool
}

// New validates cfg and returns a stopped Controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case math.IsNaN(cfg.ThresholdMB) || cfg.ThresholdMB < 0:
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, cfg.ThresholdMB)
	case cfg.ThresholdMB == 0:
		cfg.ThresholdMB = DefaultThresholdMB
	}
	switch {
	case math.IsNaN(cfg.ShrinkFraction) || cfg.ShrinkFraction < 0 || cfg.ShrinkFraction > 1:
		return nil, fmt.Errorf("%w: %v", ErrInvalidFraction, cfg.ShrinkFraction)
	case cfg.ShrinkFraction == 0:
		cfg.ShrinkFraction = DefaultShrinkFraction
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Sampler == nil {
		cfg.Sampler = RuntimeSampler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Controller{
		cfg:     cfg,
		logger:  observe.OrNop(cfg.Logger).With(observe.F("component", "pressure")),
		metrics: observe.MetricsOrNoop(cfg.Metrics),
	}, nil
}

// AddListener registers l for high-memory events.
func (c *Controller) AddListener(l Listener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// AddHighMemoryCallback registers fn for high-memory events.
func (c *Controller) AddHighMemoryCallback(fn func(ctx context.Context, e Event)) {
	if fn == nil {
		return
	}
	c.AddListener(ListenerFunc(fn))
}

// Check takes one sample and, above the threshold, runs cleanup for the
// resulting tier, publishes a memory.high event and notifies listeners.
func (c *Controller) Check(ctx context.Context) (Event, error) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()
	return c.check(ctx)
}

func (c *Controller) check(ctx context.Context) (Event, error) {
	usage, err := c.cfg.Sampler.SampleMB(ctx)
	if err != nil {
		if !errors.Is(err, ErrSampleFailed) {
			err = fmt.Errorf("%w: %w", ErrSampleFailed, err)
		}
		c.logger.Warn(ctx, "memory sample failed", observe.Err(err))
		return Event{}, err
	}

	now := c.cfg.Now()
	sev := SeverityFor(usage, c.cfg.ThresholdMB)

	c.mu.Lock()
	previous := c.severity
	c.current = usage
	c.severity = sev
	if usage > c.peak {
		c.peak = usage
	}
	c.history = append(c.history, Reading{Timestamp: now, UsageMB: usage})
	if over := len(c.history) - c.cfg.HistorySize; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
	peak := c.peak
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	c.metrics.RecordMemory(ctx, usage, int(sev))

	ev := Event{
		ID:          uuid.NewString(),
		Timestamp:   now,
		CurrentMB:   usage,
		PeakMB:      peak,
		ThresholdMB: c.cfg.ThresholdMB,
		Severity:    sev,
	}
	if sev == SeverityNone {
		if previous != SeverityNone {
			c.logger.Info(ctx, "memory pressure cleared", observe.F("current_mb", usage))
		}
		return ev, nil
	}

	if sev > previous {
		c.logger.Warn(ctx, "memory pressure escalated",
			observe.F("current_mb", usage),
			observe.F("threshold_mb", c.cfg.ThresholdMB),
			observe.F("severity", int(sev)),
			observe.F("previous", int(previous)))
	}

	if c.cfg.Index != nil {
		ev.Actions, ev.Errors = c.cleanup(ctx, sev, c.cfg.Index.Entries())
	}

	c.logger.Info(ctx, "memory cleanup finished",
		observe.F("severity", int(sev)),
		observe.F("actions", len(ev.Actions)),
		observe.F("reclaimed", ev.Reclaimed()),
		observe.F("errors", len(ev.Errors)))

	c.publish(ctx, ev)
	for _, l := range listeners {
		c.notify(ctx, l, ev)
	}
	return ev, nil
}

func (c *Controller) publish(ctx context.Context, ev Event) {
	if c.cfg.Events == nil {
		return
	}
	errs := make([]string, len(ev.Errors))
	for i, err := range ev.Errors {
		errs[i] = err.Error()
	}
	payload := map[string]any{
		"event_id":     ev.ID,
		"timestamp":    ev.Timestamp,
		"current_mb":   ev.CurrentMB,
		"peak_mb":      ev.PeakMB,
		"threshold_mb": ev.ThresholdMB,
		"severity":     int(ev.Severity),
		"reclaimed":    ev.Reclaimed(),
		"errors":       errs,
	}
	if err := c.cfg.Events.Publish(ctx, observe.TopicMemoryHigh, payload); err != nil {
		c.logger.Warn(ctx, "publish memory event failed", observe.Err(err))
	}
}

func (c *Controller) notify(ctx context.Context, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "high memory listener panicked", observe.F("panic", fmt.Sprint(r)))
		}
	}()
	l.OnHighMemory(ctx, ev)
}

// Start samples every Interval until ctx is cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.started {
		return ErrAlreadyRunning
	}
	c.started = true
	c.stop = make(chan struct{})
	stop := c.stop

	c.running.Add(1)
	go func() {
		defer c.running.Done()
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				// Skip the tick while a caller-driven Check runs; its
				// listeners may be waiting in Stop for this loop to exit.
				if !c.checkMu.TryLock() {
					continue
				}
				c.ticking.Store(true)
				// Errors are logged by check.
				_, _ = c.check(ctx)
				c.ticking.Store(false)
				c.checkMu.Unlock()
			}
		}
	}()

	c.logger.Info(ctx, "memory sampling started",
		observe.F("interval", c.cfg.Interval.String()),
		observe.F("threshold_mb", c.cfg.ThresholdMB))
	return nil
}

// Stop halts sampling and waits for an in-flight Check. It is a no-op when
// the controller is not running.
//
// Called while the sampling loop is inside a Check, for example from a
// listener reacting to critical pressure, Stop signals the loop and returns
// without waiting; the loop exits once that Check returns.
func (c *Controller) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.started {
		return
	}
	close(c.stop)
	c.started = false
	if c.ticking.Load() {
		return
	}
	c.running.Wait()
}

// Running reports whether Start is active.
func (c *Controller) Running() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.started
}

// ThresholdMB returns the configured threshold.
func (c *Controller) ThresholdMB() float64 { return c.cfg.ThresholdMB }

// CurrentMB returns the most recent sample.
func (c *Controller) CurrentMB() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// PeakMB returns the highest sample seen.
func (c *Controller) PeakMB() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peak
}

// Severity returns the tier of the most recent sample.
func (c *Controller) Severity() Severity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.severity
}

// History returns retained readings, oldest first.
func (c *Controller) History() []Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Reading(nil), c.history...)
}

// ClearHistory drops retained readings. Peak usage is kept.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}
