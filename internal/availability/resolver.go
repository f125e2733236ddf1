// Package availability computes the hours at which a set of items is
// simultaneously free.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SlotStore returns, per canonical id, the free hours on date. Ids with no
// rows may be missing from the map.
type SlotStore interface {
	FreeHours(ctx context.Context, ids []string, date time.Time) (map[string][]int, error)
}

// Resolver answers common-availability queries against a SlotStore.
type Resolver struct {
	store SlotStore
}

// NewResolver creates a resolver.
func NewResolver(store SlotStore) *Resolver {
	return &Resolver{store: store}
}

// CommonAvailability returns, ascending, every hour on date at which all ids
// have a free slot. No ids means nothing was requested: the result is empty
// and the store is not consulted.
func (r *Resolver) CommonAvailability(ctx context.Context, ids []string, date time.Time) ([]int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return []int{}, nil
	}

	free, err := r.store.FreeHours(ctx, ids, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability for %s: %w", date.Format(time.DateOnly), err)
	}
	return Intersect(free, ids), nil
}

// Intersect returns the sorted hours present in free[id] for every id.
// An id without entries empties the result.
func Intersect(free map[string][]int, ids []string) []int {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return []int{}
	}

	counts := make(map[int]int)
	for _, id := range ids {
		seen := make(map[int]bool)
		for _, h := range free[id] {
			if !seen[h] {
				seen[h] = true
				counts[h]++
			}
		}
	}

	hours := make([]int, 0, len(counts))
	for h, n := range counts {
		if n == len(ids) {
			hours = append(hours, h)
		}
	}
	sort.Ints(hours)
	return hours
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
