package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parts-assistant/internal/models"

	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 10

// RedisStore keeps histories in Redis as JSON, one key per conversation.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	maxTurns int
	locks    keyedMutex
}

// NewRedisStore creates a store on an open connection. ttl refreshes on
// every write; zero keeps histories forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, maxTurns int) *RedisStore {
	if prefix == "" {
		prefix = "pa:conv:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, maxTurns: maxTurns}
}

// Get returns the history of id.
func (s *RedisStore) Get(ctx context.Context, id string) (models.History, error) {
	return s.read(ctx, s.client, s.prefix+id)
}

// Put replaces the history of id.
func (s *RedisStore) Put(ctx context.Context, id string, history models.History) error {
	data, err := s.encode(history)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Update applies fn inside an optimistic transaction, retrying when
// another process changed the history in between. Writers in this process
// are serialized up front so they never conflict with each other.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	unlock := s.locks.lock(id)
	defer unlock()

	key := s.prefix + id
	txf := func(tx *redis.Tx) error {
		current, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		data, err := s.encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrConflict, id)
}

// Close is a no-op: the shared connection is closed by its owner.
func (s *RedisStore) Close() error {
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) read(ctx context.Context, c getter, key string) (models.History, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	h := models.History{}
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	if h == nil {
		h = models.History{}
	}
	return h, nil
}

func (s *RedisStore) encode(h models.History) ([]byte, error) {
	data, err := json.Marshal(trim(h, s.maxTurns))
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	return data, nil
}

// Ensure implementations satisfy interface.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
