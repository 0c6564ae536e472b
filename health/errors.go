package health

import "errors"

var (
	// ErrCheckFailed marks an unhealthy component.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a check did not finish before its deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates no checker is registered under a name.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrCheckPanic indicates a checker panicked.
	ErrCheckPanic = errors.New("health: check panicked")
)
