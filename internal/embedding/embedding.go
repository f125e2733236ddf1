// Package embedding turns text into vectors through an external provider.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Embedder generates an embedding vector for a text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// EmbedBatch embeds texts with at most maxConcurrent requests in flight.
// Vectors are returned in the order of texts. progressFunc, if not nil, is
// called after each text completes; calls are serialized.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, maxConcurrent int,
	progressFunc func(processed, total int)) ([][]float64, error) {

	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	vectors := make([][]float64, len(texts))

	var (
		mu        sync.Mutex
		processed int
	)
	total := len(texts)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.EmbedText(ctx, text)
			if err != nil {
				return fmt.Errorf("failed to embed text %d: %w", i, err)
			}
			vectors[i] = vec

			mu.Lock()
			processed++
			if progressFunc != nil {
				progressFunc(processed, total)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
