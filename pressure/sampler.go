package pressure

import (
	"context"
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

const bytesPerMB = 1024 * 1024

// Sampler reports current process memory usage in megabytes.
type Sampler interface {
	SampleMB(ctx context.Context) (float64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (float64, error)

func (f SamplerFunc) SampleMB(ctx context.Context) (float64, error) { return f(ctx) }

// RuntimeSampler reports memory obtained from the OS by the Go runtime that
// has not been returned to it.
type RuntimeSampler struct{}

func (RuntimeSampler) SampleMB(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Sys-ms.HeapReleased) / bytesPerMB, nil
}

// ProcSampler reports the resident set size from /proc/self/stat. Where
// procfs is unavailable it falls back to RuntimeSampler.
type ProcSampler struct {
	fallback RuntimeSampler
	proc     *procfs.Proc
}

// NewProcSampler opens /proc/self. It never fails; without procfs every
// sample comes from the Go runtime.
func NewProcSampler() *ProcSampler {
	s := &ProcSampler{}
	if p, err := procfs.Self(); err == nil {
		s.proc = &p
	}
	return s
}

func (s *ProcSampler) SampleMB(ctx context.Context) (float64, error) {
	if s.proc == nil {
		return s.fallback.SampleMB(ctx)
	}
	stat, err := s.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSampleFailed, err)
	}
	return float64(stat.ResidentMemory()) / bytesPerMB, nil
}

// UsesProcfs reports whether samples come from procfs.
func (s *ProcSampler) UsesProcfs() bool { return s.proc != nil }
