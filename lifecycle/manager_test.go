package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/app-appplayer/flutter-mcp-sub003/observe"
)

// recorder collects the order in which dispose callbacks run.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) dispose(key string, err error) DisposeFunc {
	return func(context.Context) error {
		r.mu.Lock()
		r.order = append(r.order, key)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func mustRegister(t *testing.T, m *Manager, key string, fn DisposeFunc, p Priority) {
	t.Helper()
	if err := m.RegisterCallback(context.Background(), key, fn, p); err != nil {
		t.Fatalf("RegisterCallback(%q) error = %v", key, err)
	}
}

func TestManager_DisposeAllOrder(t *testing.T) {
	tests := []struct {
		name     string
		register []struct {
			key string
			p   Priority
		}
		want []string
	}{
		{
			name: "high before low, fifo within bucket",
			register: []struct {
				key string
				p   Priority
			}{{"A", PriorityHigh}, {"B", PriorityLow}, {"C", PriorityHigh}},
			want: []string{"A", "C", "B"},
		},
		{
			name: "all buckets",
			register: []struct {
				key string
				p   Priority
			}{{"l1", PriorityLow}, {"m1", PriorityMedium}, {"h1", PriorityHigh}, {"m2", PriorityMedium}, {"l2", PriorityLow}},
			want: []string{"h1", "m1", "m2", "l1", "l2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{})
			rec := &recorder{}
			for _, r := range tt.register {
				mustRegister(t, m, r.key, rec.dispose(r.key, nil), r.p)
			}

			report := m.DisposeAll(context.Background())

			if got := rec.got(); strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("dispose order = %v, want %v", got, tt.want)
			}
			if report.Disposed != len(tt.want) || !report.OK() {
				t.Errorf("report = %+v", report)
			}
			if m.Count() != 0 {
				t.Errorf("Count() = %d after DisposeAll", m.Count())
			}
		})
	}
}

func TestManager_DisposeAllContinuesPastFailures(t *testing.T) {
	m := New(Config{})
	rec := &recorder{}
	boom := errors.New("close failed")

	mustRegister(t, m, "ok-1", rec.dispose("ok-1", nil), PriorityHigh)
	mustRegister(t, m, "fails", rec.dispose("fails", boom), PriorityHigh)
	mustRegister(t, m, "panics", func(context.Context) error {
		rec.dispose("panics", nil)(context.Background())
		panic("socket already closed")
	}, PriorityMedium)
	mustRegister(t, m, "ok-2", rec.dispose("ok-2", nil), PriorityLow)

	report := m.DisposeAll(context.Background())

	want := []string{"ok-1", "fails", "panics", "ok-2"}
	if got := rec.got(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("dispose order = %v, want %v", got, want)
	}
	if report.Disposed != 2 || len(report.Failures) != 2 {
		t.Fatalf("report disposed=%d failures=%d, want 2/2", report.Disposed, len(report.Failures))
	}
	if report.Total() != 4 {
		t.Errorf("Total() = %d, want 4", report.Total())
	}

	err := report.Err()
	if !errors.Is(err, boom) {
		t.Errorf("Err() = %v, want to wrap %v", err, boom)
	}
	if !errors.Is(err, ErrDisposePanic) {
		t.Errorf("Err() = %v, want to wrap ErrDisposePanic", err)
	}
	if report.Failures[0].Key != "fails" || report.Failures[1].Key != "panics" {
		t.Errorf("failure keys = %q, %q", report.Failures[0].Key, report.Failures[1].Key)
	}
	if report.ID == "" {
		t.Error("report ID is empty")
	}

	stats := m.Stats()
	if stats.Disposed != 2 || stats.Failed != 2 {
		t.Errorf("Stats() disposed=%d failed=%d, want 2/2", stats.Disposed, stats.Failed)
	}
}

func TestManager_DisposeIsIdempotent(t *testing.T) {
	m := New(Config{})
	calls := 0
	mustRegister(t, m, "conn", func(context.Context) error {
		calls++
		return nil
	}, PriorityMedium)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := m.Dispose(ctx, "conn"); err != nil {
			t.Fatalf("Dispose() #%d error = %v", i, err)
		}
	}
	_ = m.DisposeAll(ctx)

	if calls != 1 {
		t.Errorf("dispose calls = %d, want 1", calls)
	}
	if m.Has("conn") {
		t.Error("Has(conn) = true after Dispose")
	}
}

func TestManager_DisposeReturnsFailure(t *testing.T) {
	m := New(Config{})
	boom := errors.New("flush failed")
	_ = m.RegisterCallback(context.Background(), "buf", func(context.Context) error { return boom },
		PriorityLow, WithType("buffer"), WithDescription("write buffer"))

	err := m.Dispose(context.Background(), "buf")
	if !errors.Is(err, boom) {
		t.Fatalf("Dispose() error = %v, want %v", err, boom)
	}
	var f Failure
	if !errors.As(err, &f) {
		t.Fatalf("Dispose() error %T is not a Failure", err)
	}
	if f.Type != "buffer" || f.Description != "write buffer" || f.Priority != PriorityLow {
		t.Errorf("Failure = %+v", f)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, failed entry should still be removed", m.Count())
	}
}

func TestManager_ReRegisterDisposesPrevious(t *testing.T) {
	m := New(Config{})
	rec := &recorder{}
	ctx := context.Background()

	mustRegister(t, m, "first", rec.dispose("first", nil), PriorityHigh)
	mustRegister(t, m, "cache", rec.dispose("cache-v1", nil), PriorityHigh)
	mustRegister(t, m, "last", rec.dispose("last", nil), PriorityHigh)

	if err := m.RegisterCallback(ctx, "cache", rec.dispose("cache-v2", nil), PriorityHigh); err != nil {
		t.Fatalf("re-register error = %v", err)
	}
	if got := rec.got(); len(got) != 1 || got[0] != "cache-v1" {
		t.Fatalf("after re-register disposed = %v, want [cache-v1]", got)
	}
	if m.Count() != 3 {
		t.Errorf("Count() = %d, want 3", m.Count())
	}

	_ = m.DisposeAll(ctx)
	want := []string{"cache-v1", "first", "last", "cache-v2"}
	if got := rec.got(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("dispose order = %v, want %v", got, want)
	}
}

func TestManager_ReRegisterDisposesBeforeStoring(t *testing.T) {
	m := New(Config{})
	ctx := context.Background()

	var sawKey, ran bool
	_ = m.Register(ctx, "session", "v1", func(context.Context) error {
		ran = true
		sawKey = m.Has("session")
		return nil
	}, PriorityMedium)

	if err := m.Register(ctx, "session", "v2", func(context.Context) error { return nil }, PriorityMedium); err != nil {
		t.Fatalf("re-register error = %v", err)
	}
	if !ran {
		t.Fatal("previous value was not disposed")
	}
	if sawKey {
		t.Error("key was live with the replacement while the previous value was disposed")
	}
	entries := m.Entries()
	if len(entries) != 1 || entries[0].Value != "v2" {
		t.Errorf("Entries() = %+v, want only v2", entries)
	}
}

func TestManager_ReRegisterToleratesDisposeError(t *testing.T) {
	m := New(Config{})
	ctx := context.Background()
	_ = m.RegisterCallback(ctx, "k", func(context.Context) error { return errors.New("stale") }, PriorityLow)

	if err := m.RegisterCallback(ctx, "k", func(context.Context) error { return nil }, PriorityLow); err != nil {
		t.Fatalf("re-register error = %v", err)
	}
	if !m.Has("k") {
		t.Error("replacement entry missing")
	}
	if s := m.Stats(); s.Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", s.Failed)
	}
}

func TestManager_CallbackMayRegisterDuringDisposeAll(t *testing.T) {
	m := New(Config{})
	ctx := context.Background()
	relaunched := false

	mustRegister(t, m, "worker", func(ctx context.Context) error {
		return m.RegisterCallback(ctx, "worker", func(context.Context) error {
			relaunched = true
			return nil
		}, PriorityLow)
	}, PriorityHigh)

	report := m.DisposeAll(ctx)
	if report.Disposed != 1 {
		t.Fatalf("Disposed = %d, want 1", report.Disposed)
	}
	if !m.Has("worker") {
		t.Fatal("entry registered during DisposeAll should stay live")
	}

	_ = m.DisposeAll(ctx)
	if !relaunched {
		t.Error("second DisposeAll did not dispose the re-registered entry")
	}
}

func TestManager_DisposeTimeout(t *testing.T) {
	m := New(Config{DisposeTimeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)

	mustRegister(t, m, "stuck", func(ctx context.Context) error {
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		return nil
	}, PriorityHigh)
	mustRegister(t, m, "fast", func(context.Context) error { return nil }, PriorityLow)

	start := time.Now()
	report := m.DisposeAll(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("DisposeAll took %v, timeout not applied", elapsed)
	}
	if len(report.Failures) != 1 || !errors.Is(report.Failures[0].Err, ErrDisposeTimeout) {
		t.Fatalf("failures = %+v, want one ErrDisposeTimeout", report.Failures)
	}
	if report.Disposed != 1 {
		t.Errorf("Disposed = %d, want 1", report.Disposed)
	}
}

func TestManager_RegisterValidation(t *testing.T) {
	m := New(Config{})
	ctx := context.Background()
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		key     string
		fn      DisposeFunc
		p       Priority
		wantErr error
	}{
		{"empty key", "", noop, PriorityLow, ErrInvalidKey},
		{"nil dispose", "k", nil, PriorityLow, ErrNilDispose},
		{"bad priority", "k", noop, Priority(7), ErrInvalidPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Register(ctx, tt.key, nil, tt.fn, tt.p)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
	if err := m.RegisterCloser(ctx, "c", nil, PriorityLow); !errors.Is(err, ErrNilDispose) {
		t.Errorf("RegisterCloser(nil) error = %v", err)
	}
}

type fakeConn struct {
	closed int
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

func TestManager_RegisterCloserAndValue(t *testing.T) {
	m := New(Config{})
	ctx := context.Background()
	conn := &fakeConn{}

	if err := m.RegisterCloser(ctx, "conn", conn, PriorityHigh); err != nil {
		t.Fatal(err)
	}

	var disposedWith []int
	err := RegisterValue(ctx, m, "buf", []int{1, 2, 3}, func(_ context.Context, v []int) error {
		disposedWith = v
		return nil
	}, PriorityLow, WithType("buffer"))
	if err != nil {
		t.Fatal(err)
	}

	entries := m.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	if entries[0].Key != "conn" || entries[0].Type != "*lifecycle.fakeConn" || entries[0].Value != conn {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Type != "buffer" {
		t.Errorf("entries[1].Type = %q, want buffer", entries[1].Type)
	}

	_ = m.DisposeAll(ctx)
	if conn.closed != 1 {
		t.Errorf("Close() calls = %d, want 1", conn.closed)
	}
	if len(disposedWith) != 3 {
		t.Errorf("dispose received %v", disposedWith)
	}
}

func TestManager_Stats(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New(Config{
		LeakAge: time.Hour,
		Now:     func() time.Time { return now },
	})
	ctx := context.Background()
	noop := func(context.Context) error { return nil }

	_ = m.RegisterCallback(ctx, "old", noop, PriorityHigh, WithType("connection"))
	now = now.Add(90 * time.Minute)
	_ = m.RegisterCallback(ctx, "young", noop, PriorityLow, WithType("connection"))
	_ = m.RegisterCallback(ctx, "cb", noop, PriorityLow)

	s := m.Stats()
	if s.Live != 3 {
		t.Errorf("Live = %d, want 3", s.Live)
	}
	if s.ByType["connection"] != 2 || s.ByType["callback"] != 1 {
		t.Errorf("ByType = %v", s.ByType)
	}
	if s.ByPriority[PriorityLow] != 2 || s.ByPriority[PriorityHigh] != 1 {
		t.Errorf("ByPriority = %v", s.ByPriority)
	}
	if len(s.Suspected) != 1 || s.Suspected[0].Key != "old" {
		t.Errorf("Suspected = %+v, want [old]", s.Suspected)
	}
}

func TestManager_ObservesDisposals(t *testing.T) {
	var buf bytes.Buffer
	bus := observe.NewEventBus()
	m := New(Config{
		Logger: observe.NewLoggerWithWriter("info", &buf),
		Events: bus,
	})
	ctx := context.Background()

	_ = m.RegisterCallback(ctx, "conn.primary", func(context.Context) error {
		return errors.New("reset by peer")
	}, PriorityHigh, WithType("connection"), WithDescription("primary protocol connection"))
	_ = m.RegisterCallback(ctx, "pool", func(context.Context) error { return nil }, PriorityLow)

	_ = m.DisposeAll(ctx)

	events := bus.Recent(0)
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	if events[0].Topic != observe.TopicLifecycleDisposed || events[0].Payload["key"] != "conn.primary" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if _, ok := events[0].Payload["error"]; !ok {
		t.Error("failed disposal event has no error")
	}
	if _, ok := events[1].Payload["error"]; ok {
		t.Error("successful disposal event carries an error")
	}

	out := buf.String()
	for _, want := range []string{"resource disposal failed", "conn.primary", "primary protocol connection", "reset by peer"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestManager_ConcurrentRegister(t *testing.T) {
	m := New(Config{})
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("res-%d", i%10)
			_ = m.RegisterCallback(ctx, key, func(context.Context) error { return nil }, Priority(i%3))
			_ = m.Count()
			_ = m.Entries()
		}(i)
	}
	wg.Wait()

	if m.Count() != 10 {
		t.Errorf("Count() = %d, want 10", m.Count())
	}
	s := m.Stats()
	if s.Disposed != 40 {
		t.Errorf("Disposed = %d, want 40 replaced entries", s.Disposed)
	}
}
