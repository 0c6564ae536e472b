package pressure

import "errors"

var (
	// ErrInvalidThreshold indicates a negative or NaN ThresholdMB.
	ErrInvalidThreshold = errors.New("pressure: threshold must be positive")

	// ErrInvalidFraction indicates a ShrinkFraction outside [0,1].
	ErrInvalidFraction = errors.New("pressure: shrink fraction must be in [0,1]")

	// ErrAlreadyRunning indicates Start was called on a running controller.
	ErrAlreadyRunning = errors.New("pressure: controller already running")

	// ErrSampleFailed wraps sampler failures.
	ErrSampleFailed = errors.New("pressure: memory sample failed")

	// ErrStepPanic indicates a cleanup step panicked.
	ErrStepPanic = errors.New("pressure: cleanup step panicked")
)
