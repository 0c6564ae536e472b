package core

import "errors"

var (
	// ErrClosed indicates the Core has been closed.
	ErrClosed = errors.New("core: closed")

	// ErrInvalidCategory indicates an empty operation category.
	ErrInvalidCategory = errors.New("core: operation category is required")
)
