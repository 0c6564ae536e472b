package lifecycle

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Report summarizes one DisposeAll pass.
type Report struct {
	ID       string
	Disposed int
	Failures []Failure
	Duration time.Duration
}

func newReport() Report {
	return Report{ID: uuid.NewString()}
}

// Total returns the number of entries visited.
func (r Report) Total() int {
	return r.Disposed + len(r.Failures)
}

// OK reports whether every disposal succeeded.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// Err joins all disposal failures, or returns nil when there were none.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
