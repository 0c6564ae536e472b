package pool

import (
	"sync"
	"time"
)

// Config configures a Pool.
type Config[T any] struct {
	// New constructs a fresh instance. Required.
	New func() T

	// Reset returns a used instance to its initial state. Optional.
	Reset func(T)

	// InitialSize is the number of instances created up front and the
	// idle count Trim shrinks back to.
	InitialSize int

	// MaxSize bounds the idle list.
	// Default: max(InitialSize, 16)
	MaxSize int
}

// Stats reports pool activity.
type Stats struct {
	Idle    int
	Created int64
	Reused  int64
	Dropped int64
}

// Pool is a bounded pool of reusable instances.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Acquire never returns an instance that has not been reset.
// - The idle list never exceeds MaxSize.
type Pool[T any] struct {
	newFn   func() T
	resetFn func(T)
	initial int
	max     int

	mu      sync.Mutex
	idle    []T
	created int64
	reused  int64
	dropped int64
}

// New creates a pool and prefills InitialSize idle instances.
func New[T any](cfg Config[T]) (*Pool[T], error) {
	if cfg.New == nil {
		return nil, ErrNilConstructor
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = max(cfg.InitialSize, 16)
	}
	if cfg.InitialSize < 0 || cfg.MaxSize <= 0 || cfg.InitialSize > cfg.MaxSize {
		return nil, ErrInvalidSize
	}

	p := &Pool[T]{
		newFn:   cfg.New,
		resetFn: cfg.Reset,
		initial: cfg.InitialSize,
		max:     cfg.MaxSize,
		idle:    make([]T, 0, cfg.MaxSize),
	}
	for i := 0; i < cfg.InitialSize; i++ {
		p.idle = append(p.idle, p.newFn())
		p.created++
	}
	return p, nil
}

// Acquire returns an idle instance after resetting it, or a new one.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		x := p.idle[n-1]
		var zero T
		p.idle[n-1] = zero
		p.idle = p.idle[:n-1]
		p.reused++
		p.mu.Unlock()

		if p.resetFn != nil {
			p.resetFn(x)
		}
		return x
	}
	p.created++
	p.mu.Unlock()

	return p.newFn()
}

// Release returns x to the idle list, dropping it if the list is full.
// It reports whether x was kept.
func (p *Pool[T]) Release(x T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) >= p.max {
		p.dropped++
		return false
	}
	p.idle = append(p.idle, x)
	return true
}

// Trim shrinks the idle list down to InitialSize and returns how many
// instances were dropped.
func (p *Pool[T]) Trim() int {
	return p.shrinkTo(p.initial)
}

// Clear empties the idle list.
func (p *Pool[T]) Clear() {
	p.shrinkTo(0)
}

func (p *Pool[T]) shrinkTo(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) <= n {
		return 0
	}
	removed := len(p.idle) - n
	var zero T
	for i := n; i < len(p.idle); i++ {
		p.idle[i] = zero
	}
	p.idle = p.idle[:n]
	p.dropped += int64(removed)
	return removed
}

// Idle returns the number of idle instances.
func (p *Pool[T]) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// MaxSize returns the idle bound.
func (p *Pool[T]) MaxSize() int {
	return p.max
}

// InitialSize returns the trim target.
func (p *Pool[T]) InitialSize() int {
	return p.initial
}

// Stats returns a snapshot of pool activity.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:    len(p.idle),
		Created: p.created,
		Reused:  p.reused,
		Dropped: p.dropped,
	}
}

// TimerPool pools stopped timers. It satisfies resilience.TimerPool.
type TimerPool struct {
	*Pool[*time.Timer]
}

// NewTimerPool creates a timer pool. Invalid sizes fall back to 0 and 16.
func NewTimerPool(initialSize, maxSize int) *TimerPool {
	cfg := Config[*time.Timer]{
		New: func() *time.Timer {
			t := time.NewTimer(time.Hour)
			t.Stop()
			return t
		},
		Reset: func(t *time.Timer) {
			t.Stop()
		},
		InitialSize: initialSize,
		MaxSize:     maxSize,
	}
	p, err := New(cfg)
	if err != nil {
		cfg.InitialSize, cfg.MaxSize = 0, 16
		p, _ = New(cfg)
	}
	return &TimerPool{Pool: p}
}

// Release stops t and returns it to the pool.
func (tp *TimerPool) Release(t *time.Timer) {
	t.Stop()
	tp.Pool.Release(t)
}
