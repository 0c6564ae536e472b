package cache

import (
	"context"
	"errors"
	"testing"
)

// mockProvider tracks calls and returns configured results
type mockProvider struct {
	calls  int
	result string
	err    error
}

func (m *mockProvider) call(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.result, m.err
}

func newTestMiddleware(t *testing.T, policy Policy) (*Middleware[string], *vectorEmbedder) {
	t.Helper()
	c, emb := newTestCache(t, SimilarityConfig{SimilarityThreshold: Threshold(0.85)})
	mw, err := NewMiddleware(c, policy, nil)
	if err != nil {
		t.Fatalf("NewMiddleware() error = %v", err)
	}
	return mw, emb
}

func TestMiddleware_NearDuplicateServedFromCache(t *testing.T) {
	mw, _ := newTestMiddleware(t, DefaultPolicy())
	provider := &mockProvider{result: "sunny, 24C"}
	ctx := context.Background()

	first, err := mw.Execute(ctx, "weather in paris", nil, provider.call)
	if err != nil || first != "sunny, 24C" {
		t.Fatalf("first call = %q, %v", first, err)
	}

	second, err := mw.Execute(ctx, "paris weather today", nil, provider.call)
	if err != nil || second != "sunny, 24C" {
		t.Fatalf("second call = %q, %v", second, err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestMiddleware_ErrorsNotCached(t *testing.T) {
	mw, _ := newTestMiddleware(t, DefaultPolicy())
	boom := errors.New("rate limited")
	provider := &mockProvider{err: boom}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := mw.Execute(ctx, "weather in paris", nil, provider.call); !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
}

func TestMiddleware_SkipsUnsafeTags(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		tags      []string
		wantCalls int
	}{
		{"safe tags cached", DefaultPolicy(), []string{"chat"}, 1},
		{"stream skipped", DefaultPolicy(), []string{"stream"}, 2},
		{"case insensitive", DefaultPolicy(), []string{"NoCache"}, 2},
		{"allow unsafe", Policy{AllowUnsafe: true}, []string{"write"}, 1},
		{"disabled policy", NoCachePolicy(), nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, _ := newTestMiddleware(t, tt.policy)
			provider := &mockProvider{result: "ok"}
			ctx := context.Background()

			_, _ = mw.Execute(ctx, "weather in paris", tt.tags, provider.call)
			_, _ = mw.Execute(ctx, "weather in paris", tt.tags, provider.call)

			if provider.calls != tt.wantCalls {
				t.Errorf("provider calls = %d, want %d", provider.calls, tt.wantCalls)
			}
		})
	}
}

func TestMiddleware_EmbeddingFailureBypassesCache(t *testing.T) {
	mw, emb := newTestMiddleware(t, DefaultPolicy())
	emb.err = errors.New("embedder offline")
	provider := &mockProvider{result: "direct"}

	v, err := mw.Execute(context.Background(), "weather in paris", nil, provider.call)
	if err != nil || v != "direct" {
		t.Errorf("Execute() = %q, %v; want direct, nil", v, err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestMiddleware_Wrap(t *testing.T) {
	mw, _ := newTestMiddleware(t, DefaultPolicy())
	provider := &mockProvider{result: "answer"}
	wrapped := mw.Wrap(provider.call)

	for i := 0; i < 3; i++ {
		if v, err := wrapped(context.Background(), "how do magnets work"); err != nil || v != "answer" {
			t.Fatalf("wrapped() = %q, %v", v, err)
		}
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestNewMiddleware_NilCache(t *testing.T) {
	if _, err := NewMiddleware[string](nil, DefaultPolicy(), nil); !errors.Is(err, ErrNilCache) {
		t.Errorf("NewMiddleware(nil) error = %v", err)
	}
}

func TestDefaultSkipRule(t *testing.T) {
	if DefaultSkipRule("q", nil) {
		t.Error("no tags should not skip")
	}
	if !DefaultSkipRule("q", []string{"read", "Delete"}) {
		t.Error("delete tag should skip")
	}
}
