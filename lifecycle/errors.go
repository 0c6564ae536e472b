package lifecycle

import (
	"errors"
	"fmt"
)

// Sentinel errors for registration and disposal.
var (
	// ErrInvalidKey indicates an empty resource key.
	ErrInvalidKey = errors.New("lifecycle: key is required")

	// ErrNilDispose indicates a nil dispose callback.
	ErrNilDispose = errors.New("lifecycle: dispose callback is nil")

	// ErrInvalidPriority indicates a priority outside low/medium/high.
	ErrInvalidPriority = errors.New("lifecycle: unknown priority")

	// ErrDisposeTimeout indicates a dispose callback exceeded DisposeTimeout.
	ErrDisposeTimeout = errors.New("lifecycle: dispose timed out")

	// ErrDisposePanic indicates a dispose callback panicked.
	ErrDisposePanic = errors.New("lifecycle: dispose panicked")
)

// Failure describes one resource whose disposal failed.
type Failure struct {
	Key         string
	Type        string
	Description string
	Priority    Priority
	Err         error
}

func (f Failure) Error() string {
	return fmt.Sprintf("lifecycle: dispose %q (%s): %v", f.Key, f.Type, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }
