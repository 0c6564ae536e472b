package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateListener observes circuit breaker transitions.
//
// Contract:
// - Called exactly once per transition, after the breaker lock is released.
// - Implementations must not block for long; they run on the caller's goroutine.
type StateListener interface {
	OnStateChange(name string, from, to State)
}

// StateListenerFunc adapts a function to a StateListener.
type StateListenerFunc func(name string, from, to State)

// OnStateChange calls f(name, from, to).
func (f StateListenerFunc) OnStateChange(name string, from, to State) {
	f(name, from, to)
}

// OnOpen returns a listener that fires whenever the breaker trips open.
func OnOpen(fn func(name string)) StateListener {
	return StateListenerFunc(func(name string, _, to State) {
		if to == StateOpen {
			fn(name)
		}
	})
}

// OnClose returns a listener that fires whenever the breaker closes again.
func OnClose(fn func(name string)) StateListener {
	return StateListenerFunc(func(name string, from, to State) {
		if to == StateClosed && from != StateClosed {
			fn(name)
		}
	})
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the operation class guarded by the breaker.
	Name string

	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is how long to wait after the last failure before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max concurrent trial calls allowed in half-open state.
	// Default: 1
	HalfOpenMaxRequests int

	// Listeners are notified of every state transition.
	Listeners []StateListener

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors except context cancellation are failures.
	IsFailure func(err error) bool

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCount int

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

type transition struct {
	from, to State
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrBulkheadFull)
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs the operation through the circuit breaker.
// While open it returns ErrCircuitOpen without invoking op.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// Call runs op through cb and returns its value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		out = v
		return err
	})
	return out, err
}

// AddListener registers an additional transition listener.
func (cb *CircuitBreaker) AddListener(l StateListener) {
	if l == nil {
		return
	}
	cb.mu.Lock()
	cb.config.Listeners = append(cb.config.Listeners, l)
	cb.mu.Unlock()
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	state, ts := cb.currentStateLocked()
	listeners := cb.config.Listeners
	cb.mu.Unlock()

	cb.notify(listeners, ts)
	return state
}

// Reset resets the circuit breaker to closed state with zero failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var ts []transition
	if cb.state != StateClosed {
		ts = append(ts, transition{cb.state, StateClosed})
	}
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCount = 0
	listeners := cb.config.Listeners
	cb.mu.Unlock()

	cb.notify(listeners, ts)
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	state, ts := cb.currentStateLocked()

	var err error
	switch state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			err = ErrCircuitOpen
		} else {
			cb.halfOpenCount++
		}
	}
	if err != nil {
		cb.totalRejections++
	} else {
		cb.totalCalls++
	}
	listeners := cb.config.Listeners
	cb.mu.Unlock()

	cb.notify(listeners, ts)
	return err
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()

	isFailure := cb.config.IsFailure(err)
	oldState := cb.state
	if isFailure {
		cb.totalFailures++
	}

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failures++
			cb.lastFailure = cb.config.Now()
			if cb.failures >= cb.config.FailureThreshold {
				cb.state = StateOpen
			}
		} else if err == nil {
			cb.failures = 0
		}

	case StateHalfOpen:
		if isFailure {
			// Trial call failed; the reset timeout restarts from now.
			cb.failures++
			cb.lastFailure = cb.config.Now()
			cb.state = StateOpen
		} else if err == nil {
			cb.state = StateClosed
			cb.failures = 0
		}
		cb.halfOpenCount = 0
	}

	var ts []transition
	if oldState != cb.state {
		ts = append(ts, transition{oldState, cb.state})
	}
	listeners := cb.config.Listeners
	cb.mu.Unlock()

	cb.notify(listeners, ts)
}

func (cb *CircuitBreaker) currentStateLocked() (State, []transition) {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenCount = 0
		return cb.state, []transition{{StateOpen, StateHalfOpen}}
	}
	return cb.state, nil
}

func (cb *CircuitBreaker) notify(listeners []StateListener, ts []transition) {
	for _, t := range ts {
		for _, l := range listeners {
			l.OnStateChange(cb.config.Name, t.from, t.to)
		}
	}
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	state, ts := cb.currentStateLocked()
	m := CircuitBreakerMetrics{
		Name:            cb.config.Name,
		State:           state,
		Failures:        cb.failures,
		LastFailure:     cb.lastFailure,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
	}
	listeners := cb.config.Listeners
	cb.mu.Unlock()

	cb.notify(listeners, ts)
	return m
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	Name            string
	State           State
	Failures        int
	LastFailure     time.Time
	TotalCalls      int64
	TotalFailures   int64
	TotalRejections int64
}
