package cache

import (
	"context"
	"errors"
	"math"
	"strings"
)

// Sentinel errors for cache operations.
var (
	ErrNilCache         = errors.New("cache: cache is nil")
	ErrNilEmbedder      = errors.New("cache: embedder is nil")
	ErrInvalidKey       = errors.New("cache: query is empty")
	ErrInvalidThreshold = errors.New("cache: similarity threshold must be between 0.0 and 1.0")
	ErrInvalidSize      = errors.New("cache: max size must not be negative")

	// ErrEmbedding wraps failures of the Embedder. Middleware bypasses the
	// cache when it sees one.
	ErrEmbedding = errors.New("cache: embedding failed")
)

// Embedder turns text into an embedding vector.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Embed should honor cancellation/deadlines.
// - Determinism: equal texts should map to equal vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Vectors of different length or zero norm have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ValidateQuery checks that a query can be cached.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrInvalidKey
	}
	return nil
}
