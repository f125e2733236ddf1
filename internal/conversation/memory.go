package conversation

import (
	"container/list"
	"context"
	"sync"
	"time"

	"parts-assistant/internal/models"
)

// MemoryOptions bounds an in-memory store.
type MemoryOptions struct {
	// TTL expires conversations idle for longer. Zero keeps them forever.
	TTL time.Duration
	// MaxConversations evicts the least recently used conversation beyond it.
	MaxConversations int
	// MaxTurns caps the turns kept per conversation.
	MaxTurns int
}

// MemoryStore keeps histories in process memory.
type MemoryStore struct {
	locks keyedMutex

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
	opts  MemoryOptions
	now   func() time.Time
}

type memoryEntry struct {
	id        string
	history   models.History
	updatedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*list.Element),
		order: list.New(),
		opts:  opts,
		now:   time.Now,
	}
}

// Get returns a copy of the history of id.
func (s *MemoryStore) Get(_ context.Context, id string) (models.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.lookup(id)
	if !ok {
		return models.History{}, nil
	}
	return el.Value.(*memoryEntry).history.Append(), nil
}

// Put replaces the history of id.
func (s *MemoryStore) Put(_ context.Context, id string, history models.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store(id, history)
	return nil
}

// Update applies fn to the history of id while holding the lock for id.
func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.Put(ctx, id, next)
}

// Len returns the number of conversations held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Close releases nothing; it exists to satisfy Store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) lookup(id string) (*list.Element, bool) {
	el, ok := s.items[id]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if s.opts.TTL > 0 && s.now().Sub(entry.updatedAt) > s.opts.TTL {
		s.order.Remove(el)
		delete(s.items, id)
		return nil, false
	}
	return el, true
}

func (s *MemoryStore) store(id string, history models.History) {
	history = trim(history.Append(), s.opts.MaxTurns)

	if el, ok := s.items[id]; ok {
		entry := el.Value.(*memoryEntry)
		entry.history = history
		entry.updatedAt = s.now()
		s.order.MoveToFront(el)
		return
	}

	if s.opts.MaxConversations > 0 {
		for s.order.Len() >= s.opts.MaxConversations {
			oldest := s.order.Back()
			s.order.Remove(oldest)
			delete(s.items, oldest.Value.(*memoryEntry).id)
		}
	}
	s.items[id] = s.order.PushFront(&memoryEntry{id: id, history: history, updatedAt: s.now()})
}
