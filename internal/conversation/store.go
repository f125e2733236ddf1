// Package conversation keeps the per-conversation message history.
package conversation

import (
	"context"
	"errors"
	"sync"

	"parts-assistant/internal/models"
)

// ErrConflict is returned when a history changed concurrently and the
// update could not be applied after retrying.
var ErrConflict = errors.New("conversation modified concurrently")

// UpdateFunc computes the new history from the current one. Returning an
// error aborts the update and leaves the stored history unchanged. A store
// may run fn more than once when another process wrote the same history
// concurrently, so fn must not depend on running exactly once.
type UpdateFunc func(models.History) (models.History, error)

// Store holds conversation histories by id. Unknown ids have an empty
// history.
type Store interface {
	Get(ctx context.Context, id string) (models.History, error)
	Put(ctx context.Context, id string, history models.History) error
	// Update runs fn with the current history and stores its result.
	// Updates of the same id are serialized.
	Update(ctx context.Context, id string, fn UpdateFunc) error
	Close() error
}

// keyedMutex serializes work per key. Each key in use has its own mutex,
// reference counted and dropped once no caller holds or waits for it, so
// unrelated keys never contend. The zero value is ready to use.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// trim keeps at most the newest maxTurns turns. The kept history starts at
// a user turn, so a reply is never left without its question even when an
// unanswered user turn broke the alternation.
func trim(h models.History, maxTurns int) models.History {
	if maxTurns <= 0 || len(h) <= maxTurns {
		return h
	}
	start := len(h) - maxTurns
	for start < len(h) && h[start].Role != models.RoleUser {
		start++
	}
	if start >= len(h) {
		return models.History{}
	}
	return append(models.History(nil), h[start:]...)
}
