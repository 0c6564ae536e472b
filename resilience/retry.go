package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// TimerPool supplies reusable timers for backoff waits.
// Acquire must return a stopped timer; Release takes ownership back.
type TimerPool interface {
	Acquire() *time.Timer
	Release(*time.Timer)
}

// RetryPolicy configures a retried call. Policies are values; one per call site.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero disables retrying.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after every retry.
	// Default: 2.0
	BackoffFactor float64

	// Timeout bounds the whole sequence of attempts and delays.
	// Zero means no overall bound beyond the caller's context.
	Timeout time.Duration

	// Jitter adds up to 25% random delay to each wait.
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: IsTransient
	RetryIf func(err error) bool

	// OnRetry is called before each retry wait. attempt starts at 1.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Timers, when set, provides the backoff timers.
	Timers TimerPool
}

// DefaultRetryPolicy returns 3 jittered exponential retries of transient errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetryIf:       IsTransient,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2.0
	}
	if p.RetryIf == nil {
		p.RetryIf = IsTransient
	}
	return p
}

// Delay returns the wait before retry number retry (0-based), without jitter.
func (p RetryPolicy) Delay(retry int) time.Duration {
	p = p.withDefaults()
	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(retry))
	if d > float64(p.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if !p.Jitter || d < 4 {
		return d
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return d + time.Duration(rand.Int64N(int64(d/4)))
}

// Run calls op until it succeeds, the policy gives up, or the overall timeout
// expires. An expired timeout yields ErrTimeout even if an attempt is still
// in flight. Exhausted retries return the last error wrapped with
// ErrMaxRetriesExceeded; errors.Is still matches the original.
func Run[T any](ctx context.Context, op func(context.Context) (T, error), policy RetryPolicy) (T, error) {
	p := policy.withDefaults()
	var zero T

	parent := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	for retry := 0; ; retry++ {
		v, err := attempt(ctx, op, p.Timeout > 0)
		if err == nil {
			return v, nil
		}
		if isOverallTimeout(parent, ctx, err) {
			return zero, ErrTimeout
		}
		if parent.Err() != nil {
			return zero, parent.Err()
		}

		if !p.RetryIf(err) {
			return zero, err
		}
		if retry >= p.MaxRetries {
			if p.MaxRetries == 0 {
				return zero, err
			}
			return zero, fmt.Errorf("%w after %d retries: %w", ErrMaxRetriesExceeded, retry, err)
		}

		delay := p.jittered(p.Delay(retry))
		if p.OnRetry != nil {
			p.OnRetry(retry+1, err, delay)
		}

		if werr := p.wait(ctx, delay); werr != nil {
			if parent.Err() != nil {
				return zero, parent.Err()
			}
			return zero, ErrTimeout
		}
	}
}

// attempt runs op. When preempt is set the call races the context so a
// stuck attempt cannot outlive the overall timeout.
func attempt[T any](ctx context.Context, op func(context.Context) (T, error), preempt bool) (T, error) {
	if !preempt {
		return op(ctx)
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func isOverallTimeout(parent, ctx context.Context, err error) bool {
	if parent == ctx || parent.Err() != nil {
		return false
	}
	return ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded)
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	var t *time.Timer
	if p.Timers != nil {
		t = p.Timers.Acquire()
		t.Reset(d)
		defer p.Timers.Release(t)
	} else {
		t = time.NewTimer(d)
		defer t.Stop()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunSimple retries op immediately, without backoff, up to maxRetries times
// inside a single timeout. A non-positive timeout means no bound. op always
// runs at least once; a negative maxRetries counts as zero.
func RunSimple[T any](ctx context.Context, op func(context.Context) (T, error), maxRetries int, timeout time.Duration) (T, error) {
	var zero T
	if maxRetries < 0 {
		maxRetries = 0
	}
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		v, err := attempt(ctx, op, timeout > 0)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if isOverallTimeout(parent, ctx, err) {
			return zero, ErrTimeout
		}
		if parent.Err() != nil {
			return zero, parent.Err()
		}
	}
	return zero, lastErr
}

// Retry adapts a RetryPolicy to the error-only operation shape used by Executor.
type Retry struct {
	policy RetryPolicy
}

// NewRetry creates a retry handler for policy.
func NewRetry(policy RetryPolicy) *Retry {
	return &Retry{policy: policy}
}

// Execute runs the operation with retry logic.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Run(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, r.policy)
	return err
}

// Policy returns the retry policy with defaults applied.
func (r *Retry) Policy() RetryPolicy {
	return r.policy.withDefaults()
}
