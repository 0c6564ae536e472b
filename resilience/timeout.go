package resilience

import (
	"context"
	"errors"
	"time"
)

// Timeout bounds a single call. Unlike RetryPolicy.Timeout it applies per
// attempt when composed inside an Executor.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a timeout wrapper. Non-positive durations default to 30s.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = 30 * time.Second
	}
	return &Timeout{d: d}
}

// Execute runs op and returns ErrTimeout if it does not finish within the bound.
// A stuck op is abandoned; it keeps its own goroutine until it returns.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	_, err := attempt(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, true)

	if err != nil && parent.Err() == nil && ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return Transient(ErrTimeout)
	}
	return err
}

// Duration returns the configured bound.
func (t *Timeout) Duration() time.Duration {
	return t.d
}

// ExecuteWithTimeout is a convenience function to run an operation with timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	return NewTimeout(timeout).Execute(ctx, op)
}
