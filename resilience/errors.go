package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded marks an error returned after all retries were used.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrTimeout is returned when the overall retry bound or a timeout wrapper expires.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrBulkheadFull is returned when a bulkhead has no free slot.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")
)

// Category classifies an error for retry and degradation decisions.
type Category int

const (
	// CategoryUnknown is an unclassified error. Not retried by default.
	CategoryUnknown Category = iota
	// CategoryTransient covers timeouts, network failures and throttling.
	CategoryTransient
	// CategoryPermanent covers validation, auth and configuration errors.
	CategoryPermanent
	// CategoryBreakerOpen means the call was never attempted.
	CategoryBreakerOpen
	// CategoryTimeout means the overall retry bound expired.
	CategoryTimeout
	// CategoryRejected means a bulkhead turned the call away.
	CategoryRejected
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryBreakerOpen:
		return "breaker-open"
	case CategoryTimeout:
		return "timeout"
	case CategoryRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type classified struct {
	err      error
	category Category
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, category: CategoryTransient}
}

// Permanent marks err as never worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, category: CategoryPermanent}
}

// StatusError carries a remote status code, e.g. from an HTTP-style provider.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Classify maps err onto the error taxonomy.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var c *classified
	if errors.As(err, &c) {
		return c.category
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return CategoryBreakerOpen
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout
	case errors.Is(err, ErrBulkheadFull):
		return CategoryRejected
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	case errors.Is(err, context.Canceled):
		return CategoryPermanent
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case 408, 425, 429, 500, 502, 503, 504:
			return CategoryTransient
		case 400, 401, 403, 404, 405, 409, 422:
			return CategoryPermanent
		}
		return CategoryUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryTransient
	}

	return CategoryUnknown
}

// IsTransient reports whether err is worth retrying.
// It is the default RetryIf predicate.
func IsTransient(err error) bool {
	return Classify(err) == CategoryTransient
}
