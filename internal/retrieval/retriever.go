package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"parts-assistant/internal/embedding"
	"parts-assistant/internal/models"
)

// DefaultTopK is the number of passages returned when none is requested.
const DefaultTopK = 3

// Holder owns the index currently in service. Rebuilds produce a new
// index that replaces the old one in a single atomic swap.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder returns a holder serving ix.
func NewHolder(ix *Index) *Holder {
	h := &Holder{}
	h.current.Store(ix)
	return h
}

// Current returns the index in service, or nil if none was loaded.
func (h *Holder) Current() *Index {
	return h.current.Load()
}

// Swap puts ix in service and returns the previous index.
func (h *Holder) Swap(ix *Index) *Index {
	return h.current.Swap(ix)
}

// Retriever answers passage queries against the held index.
type Retriever struct {
	holder   *Holder
	embedder embedding.Embedder
	topK     int
}

// NewRetriever creates a retriever returning topK passages per question.
func NewRetriever(h *Holder, e embedding.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{holder: h, embedder: e, topK: topK}
}

// Retrieve embeds question and returns the nearest passages, nearest
// first. k <= 0 uses the retriever default. Failures wrap ErrRetrieval and
// never return partial results.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]models.Chunk, error) {
	if k <= 0 {
		k = r.topK
	}
	ix := r.holder.Current()
	if ix == nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, errors.New("no manual index loaded"))
	}

	query, err := r.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	chunks, err := ix.Search(query, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return chunks, nil
}
