package pressure

import (
	"context"
	"testing"
)

func TestRuntimeSampler(t *testing.T) {
	mb, err := RuntimeSampler{}.SampleMB(context.Background())
	if err != nil {
		t.Fatalf("SampleMB() error = %v", err)
	}
	if mb <= 0 {
		t.Errorf("SampleMB() = %v, want > 0", mb)
	}
}

func TestRuntimeSampler_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (RuntimeSampler{}).SampleMB(ctx); err == nil {
		t.Error("SampleMB() with cancelled context returned nil error")
	}
}

func TestProcSampler(t *testing.T) {
	s := NewProcSampler()
	mb, err := s.SampleMB(context.Background())
	if err != nil {
		t.Fatalf("SampleMB() error = %v (procfs=%v)", err, s.UsesProcfs())
	}
	if mb <= 0 {
		t.Errorf("SampleMB() = %v, want > 0", mb)
	}
}
