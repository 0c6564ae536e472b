package pool

import "errors"

// Sentinel errors for pool construction.
var (
	// ErrNilConstructor indicates Config.New is nil.
	ErrNilConstructor = errors.New("pool: constructor is nil")

	// ErrInvalidSize indicates InitialSize or MaxSize is out of range.
	ErrInvalidSize = errors.New("pool: sizes must satisfy 0 <= initial <= max and max > 0")
)
