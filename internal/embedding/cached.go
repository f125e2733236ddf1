package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parts-assistant/internal/cache"

	"github.com/rs/zerolog"
)

// CachedEmbedder memoizes another embedder in a cache, keyed by model and
// text digest. Cache failures are logged and never fail the embedding.
type CachedEmbedder struct {
	next   Embedder
	cache  cache.Client
	model  string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedEmbedder wraps next.
func NewCachedEmbedder(next Embedder, c cache.Client, model string, ttl time.Duration, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: c, model: model, ttl: ttl, logger: logger}
}

// EmbedText returns the cached vector for text or computes and stores it.
func (e *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	key := cache.Key("emb", e.model, cache.Digest(text))

	data, err := e.cache.Get(ctx, key)
	switch {
	case err == nil:
		var vec []float64
		if err := json.Unmarshal(data, &vec); err == nil && len(vec) > 0 {
			return vec, nil
		}
		e.logger.Warn().Str("key", key).Msg("discarding corrupt cached embedding")
	case !errors.Is(err, cache.ErrCacheMiss):
		e.logger.Warn().Err(err).Msg("embedding cache read failed")
	}

	vec, err := e.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
		e.logger.Warn().Err(err).Msg("embedding cache write failed")
	}
	return vec, nil
}

// Ensure implementations satisfy interface.
var (
	_ Embedder = (*OllamaEmbedder)(nil)
	_ Embedder = (*OpenAIEmbedder)(nil)
	_ Embedder = (*CachedEmbedder)(nil)
)
