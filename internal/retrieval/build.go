package retrieval

import (
	"context"
	"errors"
	"fmt"

	"parts-assistant/internal/embedding"
	"parts-assistant/internal/models"
)

// BuildOptions tunes index construction.
type BuildOptions struct {
	// Dimension, when set, is the vector size every embedding must have.
	Dimension int
	// MaxConcurrent bounds the embedding requests in flight.
	MaxConcurrent int
	// Progress is called after each page is embedded.
	Progress func(processed, total int)
}

// Build embeds every page and returns a new index over them.
func Build(ctx context.Context, pages []models.Page, e embedding.Embedder, opts BuildOptions) (*Index, error) {
	if len(pages) == 0 {
		return nil, errors.New("no pages to index")
	}

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}

	vectors, err := embedding.EmbedBatch(ctx, e, texts, opts.MaxConcurrent, opts.Progress)
	if err != nil {
		return nil, fmt.Errorf("failed to embed manual pages: %w", err)
	}

	chunks := make([]models.Chunk, len(pages))
	for i, p := range pages {
		if opts.Dimension > 0 && len(vectors[i]) != opts.Dimension {
			return nil, fmt.Errorf("%w: page %d has %d dimensions, configured %d",
				ErrDimensionMismatch, p.Number, len(vectors[i]), opts.Dimension)
		}
		chunks[i] = models.Chunk{Page: p.Number, Text: p.Text, Embedding: vectors[i]}
	}

	return NewIndex(chunks)
}
