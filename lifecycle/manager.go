package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/app-appplayer/flutter-mcp-sub003/observe"
)

// DisposeFunc releases one owned resource.
type DisposeFunc func(ctx context.Context) error

// Entry is a registered resource as seen by callers.
//
// Value is the owned handle, or nil for callback-only registrations. The
// memory-pressure controller inspects Value for cleanup capabilities.
type Entry struct {
	Key          string
	Type         string
	Description  string
	Priority     Priority
	Value        any
	RegisteredAt time.Time

	seq     uint64
	dispose DisposeFunc
}

// Option customizes a registration.
type Option func(*Entry)

// WithType sets the type tag used in logs, stats and metrics.
func WithType(t string) Option {
	return func(e *Entry) { e.Type = t }
}

// WithDescription sets a human-readable description.
func WithDescription(d string) Option {
	return func(e *Entry) { e.Description = d }
}

// Config configures a Manager.
type Config struct {
	// DisposeTimeout bounds each dispose callback. Zero means unbounded.
	DisposeTimeout time.Duration

	// LeakAge marks entries older than this as suspected leaks in Stats.
	// Zero disables leak suspicion.
	LeakAge time.Duration

	Logger  observe.Logger
	Metrics observe.Metrics
	Events  observe.Publisher

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager is a registry of owned resources with ordered teardown.
//
// Contract:
// - Concurrency: safe for concurrent use. Dispose callbacks never run while
//   the registry lock is held, so a callback may register or dispose keys.
// - Ordering: DisposeAll visits high, medium then low priority; inside a
//   bucket entries are disposed in registration order.
// - Idempotency: a key disposes at most once. Disposing an absent key is a
//   no-op.
type Manager struct {
	cfg     Config
	logger  observe.Logger
	metrics observe.Metrics

	mu       sync.Mutex
	entries  map[string]*Entry
	nextSeq  uint64
	disposed uint64
	failed   uint64
}

// New creates an empty Manager.
func New(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:     cfg,
		logger:  observe.OrNop(cfg.Logger).With(observe.F("component", "lifecycle")),
		metrics: observe.MetricsOrNoop(cfg.Metrics),
		entries: make(map[string]*Entry),
	}
}

// Register stores value under key with the given dispose callback.
//
// If key is already live, the previous entry is removed and disposed first;
// key is absent while its dispose callback runs. A failure disposing the
// previous value is logged and counted, but does not fail the registration.
// The replacement is ordered after every entry already in its priority
// bucket.
func (m *Manager) Register(ctx context.Context, key string, value any, dispose DisposeFunc, priority Priority, opts ...Option) error {
	if key == "" {
		return ErrInvalidKey
	}
	if dispose == nil {
		return ErrNilDispose
	}
	if !priority.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, int(priority))
	}

	e := &Entry{
		Key:      key,
		Priority: priority,
		Value:    value,
		dispose:  dispose,
	}
	if value != nil {
		e.Type = fmt.Sprintf("%T", value)
	} else {
		e.Type = "callback"
	}
	for _, opt := range opts {
		opt(e)
	}

	for {
		m.mu.Lock()
		previous, ok := m.entries[key]
		if !ok {
			e.RegisteredAt = m.cfg.Now()
			m.nextSeq++
			e.seq = m.nextSeq
			m.entries[key] = e
			m.mu.Unlock()
			return nil
		}
		delete(m.entries, key)
		m.mu.Unlock()

		// A concurrent Register may claim key while previous is disposed;
		// the loop disposes that one too before storing e.
		m.logger.Info(ctx, "replacing registered resource",
			observe.F("key", key),
			observe.F("type", previous.Type))
		m.disposeEntry(ctx, previous)
	}
}

// RegisterCallback registers side-effect-only teardown with no tracked value.
func (m *Manager) RegisterCallback(ctx context.Context, key string, fn DisposeFunc, priority Priority, opts ...Option) error {
	return m.Register(ctx, key, nil, fn, priority, opts...)
}

// RegisterCloser registers an io.Closer, disposed by calling Close.
func (m *Manager) RegisterCloser(ctx context.Context, key string, c io.Closer, priority Priority, opts ...Option) error {
	if c == nil {
		return ErrNilDispose
	}
	return m.Register(ctx, key, c, func(context.Context) error { return c.Close() }, priority, opts...)
}

// RegisterValue registers a typed value whose dispose callback receives it.
func RegisterValue[T any](ctx context.Context, m *Manager, key string, value T, dispose func(context.Context, T) error, priority Priority, opts ...Option) error {
	if dispose == nil {
		return ErrNilDispose
	}
	return m.Register(ctx, key, value, func(ctx context.Context) error {
		return dispose(ctx, value)
	}, priority, opts...)
}

// Dispose disposes and removes one entry. It returns nil when key is absent.
func (m *Manager) Dispose(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if f := m.disposeEntry(ctx, e); f != nil {
		return *f
	}
	return nil
}

// DisposeAll disposes every live entry in priority order and reports the
// outcome. It never fails as a whole: individual failures are logged and
// collected in the Report.
//
// The registry is emptied before the first callback runs. Entries registered
// by a callback during DisposeAll stay live.
func (m *Manager) DisposeAll(ctx context.Context) Report {
	start := m.cfg.Now()

	m.mu.Lock()
	batch := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		batch = append(batch, e)
	}
	m.entries = make(map[string]*Entry)
	m.mu.Unlock()

	sortForDisposal(batch)

	report := newReport()
	for _, e := range batch {
		if f := m.disposeEntry(ctx, e); f != nil {
			report.Failures = append(report.Failures, *f)
			continue
		}
		report.Disposed++
	}
	report.Duration = m.cfg.Now().Sub(start)

	if len(batch) > 0 {
		m.logger.Info(ctx, "disposed all resources",
			observe.F("report_id", report.ID),
			observe.F("disposed", report.Disposed),
			observe.F("failed", len(report.Failures)),
			observe.F("duration_ms", report.Duration.Milliseconds()))
	}
	return report
}

// disposeEntry runs the entry's callback and records the outcome.
func (m *Manager) disposeEntry(ctx context.Context, e *Entry) *Failure {
	err := m.run(ctx, e.dispose)

	m.mu.Lock()
	if err != nil {
		m.failed++
	} else {
		m.disposed++
	}
	m.mu.Unlock()

	m.metrics.RecordDisposal(ctx, e.Type, err)

	payload := map[string]any{
		"key":      e.Key,
		"type":     e.Type,
		"priority": e.Priority.String(),
	}
	if err != nil {
		payload["error"] = err.Error()
		m.logger.Error(ctx, "resource disposal failed",
			observe.F("key", e.Key),
			observe.F("type", e.Type),
			observe.F("description", e.Description),
			observe.F("priority", e.Priority.String()),
			observe.Err(err))
	} else {
		m.logger.Debug(ctx, "resource disposed",
			observe.F("key", e.Key),
			observe.F("type", e.Type))
	}
	if m.cfg.Events != nil {
		_ = m.cfg.Events.Publish(ctx, observe.TopicLifecycleDisposed, payload)
	}

	if err != nil {
		return &Failure{
			Key:         e.Key,
			Type:        e.Type,
			Description: e.Description,
			Priority:    e.Priority,
			Err:         err,
		}
	}
	return nil
}

func (m *Manager) run(ctx context.Context, fn DisposeFunc) error {
	if m.cfg.DisposeTimeout <= 0 {
		return safeCall(ctx, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.DisposeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- safeCall(ctx, fn) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w after %s", ErrDisposeTimeout, m.cfg.DisposeTimeout)
		}
		return ctx.Err()
	}
}

func safeCall(ctx context.Context, fn DisposeFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDisposePanic, r)
		}
	}()
	return fn(ctx)
}

// Count returns the number of live entries.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Has reports whether key is live.
func (m *Manager) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Entries returns a snapshot of live entries in disposal order.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	batch := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		batch = append(batch, e)
	}
	m.mu.Unlock()

	sortForDisposal(batch)

	out := make([]Entry, len(batch))
	for i, e := range batch {
		out[i] = *e
	}
	return out
}

// Stats summarizes the registry for diagnostics and leak detection.
type Stats struct {
	Live       int
	ByType     map[string]int
	ByPriority map[Priority]int

	// Suspected lists live entries older than Config.LeakAge.
	Suspected []Entry

	// Disposed and Failed count disposals since the Manager was created.
	Disposed uint64
	Failed   uint64
}

// Stats returns registry statistics.
func (m *Manager) Stats() Stats {
	entries := m.Entries()
	now := m.cfg.Now()

	s := Stats{
		Live:       len(entries),
		ByType:     make(map[string]int),
		ByPriority: make(map[Priority]int),
	}
	for _, e := range entries {
		s.ByType[e.Type]++
		s.ByPriority[e.Priority]++
		if m.cfg.LeakAge > 0 && now.Sub(e.RegisteredAt) > m.cfg.LeakAge {
			s.Suspected = append(s.Suspected, e)
		}
	}

	m.mu.Lock()
	s.Disposed = m.disposed
	s.Failed = m.failed
	m.mu.Unlock()
	return s
}

func sortForDisposal(batch []*Entry) {
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].Priority != batch[j].Priority {
			return batch[i].Priority > batch[j].Priority
		}
		return batch[i].seq < batch[j].seq
	})
}
