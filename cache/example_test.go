package cache_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/app-appplayer/flutter-mcp-sub003/cache"
)

// bagOfWords is a toy embedder: one dimension per known word.
func bagOfWords(vocab ...string) cache.Embedder {
	return cache.EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
		v := make([]float32, len(vocab))
		for _, w := range strings.Fields(strings.ToLower(text)) {
			for i, known := range vocab {
				if w == known {
					v[i]++
				}
			}
		}
		return v, nil
	})
}

func ExampleNewSimilarityCache() {
	ctx := context.Background()
	embedder := bagOfWords("weather", "paris", "today", "magnets")

	c, err := cache.NewSimilarityCache[string](embedder, cache.SimilarityConfig{
		Name:                "responses",
		SimilarityThreshold: cache.Threshold(0.8),
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	_ = c.Put(ctx, "weather in paris", "sunny")

	v, ok, _ := c.Get(ctx, "paris weather today")
	fmt.Println(v, ok)

	_, ok, _ = c.Get(ctx, "magnets")
	fmt.Println(ok)
	// Output:
	// sunny true
	// false
}

func ExampleMiddleware_Execute() {
	ctx := context.Background()
	c, _ := cache.NewSimilarityCache[string](bagOfWords("weather", "paris"), cache.SimilarityConfig{})
	mw, _ := cache.NewMiddleware(c, cache.DefaultPolicy(), nil)

	calls := 0
	provider := func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "sunny", nil
	}

	_, _ = mw.Execute(ctx, "weather in Paris", nil, provider)
	_, _ = mw.Execute(ctx, "Paris weather", nil, provider)
	_, _ = mw.Execute(ctx, "Paris weather", []string{"stream"}, provider)

	fmt.Println("provider calls:", calls)
	// Output:
	// provider calls: 2
}

func ExampleSimilarityCache_Shrink() {
	ctx := context.Background()
	c, _ := cache.NewSimilarityCache[int](bagOfWords("a", "b", "c", "d"), cache.SimilarityConfig{})

	for i, q := range []string{"a", "b", "c", "d"} {
		_ = c.Put(ctx, q, i)
	}

	fmt.Println("evicted:", c.Shrink(0.5))
	fmt.Println("size:", c.Size())
	// Output:
	// evicted: 2
	// size: 2
}

func ExampleCosine() {
	fmt.Printf("%.2f\n", cache.Cosine([]float32{1, 0}, []float32{1, 1}))
	// Output:
	// 0.71
}
