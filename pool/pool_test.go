package pool

import (
	"sync"
	"testing"
	"time"
)

type scratch struct {
	buf   []byte
	dirty bool
}

func scratchConfig(initial, max int, resets *int) Config[*scratch] {
	return Config[*scratch]{
		New: func() *scratch { return &scratch{buf: make([]byte, 0, 64)} },
		Reset: func(s *scratch) {
			if resets != nil {
				*resets++
			}
			s.buf = s.buf[:0]
			s.dirty = false
		},
		InitialSize: initial,
		MaxSize:     max,
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config[int]
		wantErr error
	}{
		{"nil constructor", Config[int]{MaxSize: 1}, ErrNilConstructor},
		{"negative initial", Config[int]{New: func() int { return 0 }, InitialSize: -1, MaxSize: 1}, ErrInvalidSize},
		{"initial above max", Config[int]{New: func() int { return 0 }, InitialSize: 5, MaxSize: 2}, ErrInvalidSize},
		{"negative max", Config[int]{New: func() int { return 0 }, MaxSize: -3}, ErrInvalidSize},
		{"defaults", Config[int]{New: func() int { return 0 }}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if err != tt.wantErr {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Prefills(t *testing.T) {
	p, err := New(scratchConfig(3, 8, nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Idle() != 3 {
		t.Errorf("Idle = %d, want 3", p.Idle())
	}
	if p.Stats().Created != 3 {
		t.Errorf("Created = %d, want 3", p.Stats().Created)
	}
	if p.InitialSize() != 3 || p.MaxSize() != 8 {
		t.Errorf("sizes = %d/%d", p.InitialSize(), p.MaxSize())
	}
}

func TestAcquire_ReturnsResetInstance(t *testing.T) {
	resets := 0
	p, _ := New(scratchConfig(0, 4, &resets))

	s := p.Acquire()
	s.buf = append(s.buf, "hello"...)
	s.dirty = true
	p.Release(s)

	again := p.Acquire()
	if again != s {
		t.Fatal("Acquire did not reuse the released instance")
	}
	if again.dirty || len(again.buf) != 0 {
		t.Errorf("Acquire returned un-reset instance: %+v", again)
	}
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestAcquire_ConstructsWhenEmpty(t *testing.T) {
	p, _ := New(scratchConfig(0, 2, nil))
	a, b, c := p.Acquire(), p.Acquire(), p.Acquire()
	if a == b || b == c {
		t.Error("expected distinct instances")
	}
	if got := p.Stats().Created; got != 3 {
		t.Errorf("Created = %d, want 3", got)
	}
}

func TestRelease_BoundedByMaxSize(t *testing.T) {
	p, _ := New(scratchConfig(0, 2, nil))
	items := []*scratch{p.Acquire(), p.Acquire(), p.Acquire(), p.Acquire()}

	kept := 0
	for _, it := range items {
		if p.Release(it) {
			kept++
		}
		if p.Idle() > p.MaxSize() {
			t.Fatalf("Idle = %d exceeds MaxSize %d", p.Idle(), p.MaxSize())
		}
	}
	if kept != 2 {
		t.Errorf("kept = %d, want 2", kept)
	}
	if got := p.Stats().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestTrimAndClear(t *testing.T) {
	p, _ := New(scratchConfig(2, 10, nil))
	var out []*scratch
	for i := 0; i < 8; i++ {
		out = append(out, p.Acquire())
	}
	for _, s := range out {
		p.Release(s)
	}
	if p.Idle() != 8 {
		t.Fatalf("Idle = %d, want 8", p.Idle())
	}

	if removed := p.Trim(); removed != 6 {
		t.Errorf("Trim() = %d, want 6", removed)
	}
	if p.Idle() != 2 {
		t.Errorf("Idle after Trim = %d, want 2", p.Idle())
	}
	if removed := p.Trim(); removed != 0 {
		t.Errorf("second Trim() = %d, want 0", removed)
	}

	p.Clear()
	if p.Idle() != 0 {
		t.Errorf("Idle after Clear = %d, want 0", p.Idle())
	}

	// Still usable after clear.
	if s := p.Acquire(); s == nil {
		t.Error("Acquire after Clear returned nil")
	}
}

func TestPool_Concurrent(t *testing.T) {
	p, _ := New(scratchConfig(4, 8, nil))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := p.Acquire()
				if s.dirty {
					t.Error("acquired dirty instance")
				}
				s.dirty = true
				p.Release(s)
			}
		}()
	}
	wg.Wait()
	if p.Idle() > 8 {
		t.Errorf("Idle = %d exceeds max", p.Idle())
	}
}

func TestTimerPool(t *testing.T) {
	tp := NewTimerPool(1, 2)

	timer := tp.Acquire()
	timer.Reset(time.Millisecond)
	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("pooled timer never fired")
	}
	tp.Release(timer)

	if tp.Idle() != 1 {
		t.Errorf("Idle = %d, want 1", tp.Idle())
	}

	// Invalid sizes fall back to defaults.
	if NewTimerPool(5, 1).MaxSize() != 16 {
		t.Error("invalid sizes should fall back to max 16")
	}
}
