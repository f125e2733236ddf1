// Package catalog resolves free-text piece descriptions to catalog items.
package catalog

import (
	"context"
	"fmt"

	"parts-assistant/internal/models"

	"golang.org/x/sync/errgroup"
)

// DefaultThreshold is the minimum similarity for a match to be accepted.
// 0.4 is a lenient alternative that accepts partial descriptions.
const DefaultThreshold = 0.75

// Matcher resolves one description to the best catalog item, if any.
type Matcher interface {
	Match(ctx context.Context, description string) (models.MatchResult, error)
}

type entry struct {
	item  models.Item
	grams trigramSet
}

// MemoryMatcher matches against an in-memory snapshot of the catalog.
// It is safe for concurrent use; the snapshot is never modified.
type MemoryMatcher struct {
	entries   []entry
	threshold float64
}

// NewMemoryMatcher builds a matcher over items. When two items score the
// same, the one that comes first in items wins.
func NewMemoryMatcher(items []models.Item, threshold float64) *MemoryMatcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	entries := make([]entry, len(items))
	for i, it := range items {
		entries[i] = entry{item: it, grams: trigrams(Normalize(it.Description))}
	}
	return &MemoryMatcher{entries: entries, threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (m *MemoryMatcher) Threshold() float64 {
	return m.threshold
}

// Len returns the number of catalog items in the snapshot.
func (m *MemoryMatcher) Len() int {
	return len(m.entries)
}

// Match returns the highest scoring item whose score clears the threshold.
// A miss is not an error: the result simply carries no item.
func (m *MemoryMatcher) Match(ctx context.Context, description string) (models.MatchResult, error) {
	result := models.MatchResult{Requested: description}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	query := trigrams(Normalize(description))
	best := -1
	bestScore := 0.0
	for i, e := range m.entries {
		score := jaccard(query, e.grams)
		// strict comparison keeps the earliest item on ties
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	result.Score = bestScore
	if best >= 0 && bestScore >= m.threshold {
		item := m.entries[best].item
		result.Item = &item
	}
	return result, nil
}

// SimilarityLookup is a store able to run the similarity search itself,
// e.g. with pg_trgm.
type SimilarityLookup interface {
	MatchPiece(ctx context.Context, description string, threshold float64) (*models.Item, float64, error)
}

// StoreMatcher delegates matching to a SimilarityLookup.
type StoreMatcher struct {
	lookup    SimilarityLookup
	threshold float64
}

// NewStoreMatcher creates a matcher backed by the database.
func NewStoreMatcher(lookup SimilarityLookup, threshold float64) *StoreMatcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &StoreMatcher{lookup: lookup, threshold: threshold}
}

// Match runs the lookup for description.
func (m *StoreMatcher) Match(ctx context.Context, description string) (models.MatchResult, error) {
	item, score, err := m.lookup.MatchPiece(ctx, Normalize(description), m.threshold)
	if err != nil {
		return models.MatchResult{Requested: description}, fmt.Errorf("failed to match %q: %w", description, err)
	}
	return models.MatchResult{Requested: description, Item: item, Score: score}, nil
}

// MatchAll matches every description independently, with at most
// concurrency lookups in flight. Results keep the order of descriptions.
func MatchAll(ctx context.Context, m Matcher, descriptions []string, concurrency int) ([]models.MatchResult, error) {
	results := make([]models.MatchResult, len(descriptions))
	if len(descriptions) == 0 {
		return results, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, desc := range descriptions {
		g.Go(func() error {
			res, err := m.Match(ctx, desc)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Ensure implementations satisfy interface.
var (
	_ Matcher = (*MemoryMatcher)(nil)
	_ Matcher = (*StoreMatcher)(nil)
)
