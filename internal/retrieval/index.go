// Package retrieval finds the manual passages closest to a question.
package retrieval

import (
	"errors"
	"fmt"
	"sort"

	"parts-assistant/internal/models"
)

var (
	// ErrDimensionMismatch is returned when vectors of different sizes meet.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrRetrieval wraps any failure while answering a retrieval request.
	ErrRetrieval = errors.New("retrieval failed")
)

// Index is an immutable exact nearest-neighbour index over page chunks,
// ranked by squared Euclidean distance. It is safe for concurrent use.
type Index struct {
	chunks []models.Chunk
	dim    int
}

// NewIndex builds an index over chunks, which must all carry embeddings of
// the same dimension. The slice order is the tie-break order.
func NewIndex(chunks []models.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errors.New("cannot build an empty index")
	}

	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return nil, fmt.Errorf("chunk for page %d has no embedding", chunks[0].Page)
	}

	owned := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return nil, fmt.Errorf("%w: page %d has %d dimensions, expected %d",
				ErrDimensionMismatch, c.Page, len(c.Embedding), dim)
		}
		c.Embedding = append([]float64(nil), c.Embedding...)
		owned[i] = c
	}
	return &Index{chunks: owned, dim: dim}, nil
}

// Dimension returns the vector size of the index.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Pages returns the page numbers of the indexed chunks, in index order.
func (ix *Index) Pages() []int {
	pages := make([]int, len(ix.chunks))
	for i, c := range ix.chunks {
		pages[i] = c.Page
	}
	return pages
}

// Search returns the k chunks nearest to query, nearest first. Equal
// distances keep index order. Returned chunks do not carry embeddings.
func (ix *Index) Search(query []float64, k int) ([]models.Chunk, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 {
		return []models.Chunk{}, nil
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}

	type hit struct {
		pos  int
		dist float64
	}
	hits := make([]hit, len(ix.chunks))
	for i, c := range ix.chunks {
		hits[i] = hit{pos: i, dist: squaredL2(query, c.Embedding)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].dist < hits[b].dist
	})

	out := make([]models.Chunk, k)
	for i := 0; i < k; i++ {
		c := ix.chunks[hits[i].pos]
		out[i] = models.Chunk{Page: c.Page, Text: c.Text}
	}
	return out, nil
}

func squaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
