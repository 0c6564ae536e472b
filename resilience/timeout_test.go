package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout(t *testing.T) {
	if got := NewTimeout(0).Duration(); got != 30*time.Second {
		t.Errorf("Duration = %v, want 30s", got)
	}
	if got := NewTimeout(time.Second).Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
}

func TestTimeout_Execute(t *testing.T) {
	testErr := errors.New("test error")

	tests := []struct {
		name    string
		timeout time.Duration
		op      func(context.Context) error
		wantErr error
	}{
		{
			name:    "success",
			timeout: time.Second,
			op:      func(ctx context.Context) error { return nil },
		},
		{
			name:    "operation error",
			timeout: time.Second,
			op:      func(ctx context.Context) error { return testErr },
			wantErr: testErr,
		},
		{
			name:    "deadline",
			timeout: 10 * time.Millisecond,
			op: func(ctx context.Context) error {
				time.Sleep(100 * time.Millisecond)
				return nil
			},
			wantErr: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTimeout(tt.timeout).Execute(context.Background(), tt.op)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Execute() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeout_ExpiryIsTransient(t *testing.T) {
	err := ExecuteWithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !IsTransient(err) {
		t.Errorf("IsTransient(%v) = false, want true", err)
	}
}

func TestTimeout_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTimeout(time.Second).Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}
