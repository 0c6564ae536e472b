package resilience

import (
	"errors"
	"fmt"
)

// Outcome tags a Result.
type Outcome int

const (
	// OutcomeSuccess carries a value.
	OutcomeSuccess Outcome = iota
	// OutcomeDegraded means the service is temporarily unavailable and the
	// call may be retried later (breaker open, timeout, retries exhausted).
	OutcomeDegraded
	// OutcomeFailure is a hard failure that retrying will not fix.
	OutcomeFailure
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of a guarded call.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Err     error
}

// Ok returns a successful result.
func Ok[T any](v T) Result[T] {
	return Result[T]{Outcome: OutcomeSuccess, Value: v}
}

// DegradedResult returns a retryable "service degraded" result.
func DegradedResult[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeDegraded, Err: err}
}

// Failed returns a hard failure.
func Failed[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeFailure, Err: err}
}

// ResultOf converts a (value, error) pair. Breaker-open, timeout and
// exhausted transient errors become degraded; other errors are failures.
func ResultOf[T any](v T, err error) Result[T] {
	if err == nil {
		return Ok(v)
	}
	if IsDegraded(err) {
		return DegradedResult[T](err)
	}
	return Failed[T](err)
}

// IsDegraded reports whether err signals temporary unavailability.
func IsDegraded(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrTimeout), errors.Is(err, ErrBulkheadFull):
		return true
	case errors.Is(err, ErrMaxRetriesExceeded):
		return true
	}
	return IsTransient(err)
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Unwrap returns the value and error in conventional Go form.
func (r Result[T]) Unwrap() (T, error) {
	if r.Outcome == OutcomeSuccess {
		return r.Value, nil
	}
	if r.Err == nil {
		var zero T
		return zero, fmt.Errorf("resilience: %s result without error", r.Outcome)
	}
	var zero T
	return zero, r.Err
}

// Match dispatches on the outcome. Every branch must be supplied.
func Match[T, R any](r Result[T], onSuccess func(T) R, onDegraded func(error) R, onFailure func(error) R) R {
	switch r.Outcome {
	case OutcomeSuccess:
		return onSuccess(r.Value)
	case OutcomeDegraded:
		return onDegraded(r.Err)
	default:
		return onFailure(r.Err)
	}
}
