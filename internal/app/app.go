// Package app wires the assistant's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"parts-assistant/internal/api"
	"parts-assistant/internal/assistant"
	"parts-assistant/internal/availability"
	"parts-assistant/internal/cache"
	"parts-assistant/internal/catalog"
	"parts-assistant/internal/config"
	"parts-assistant/internal/conversation"
	"parts-assistant/internal/database"
	"parts-assistant/internal/embedding"
	"parts-assistant/internal/intent"
	"parts-assistant/internal/llm"
	"parts-assistant/internal/observability"
	"parts-assistant/internal/processor"
	"parts-assistant/internal/retrieval"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// minPageChars drops pages that carry only headers or page numbers.
const minPageChars = 20

// App holds the running components.
type App struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Store         database.Store
	Redis         *redis.Client
	Cache         cache.Client
	Embedder      embedding.Embedder
	Completer     llm.Completer
	Matcher       catalog.Matcher
	Index         *retrieval.Holder
	Conversations conversation.Store
	Assistant     *assistant.Assistant
}

// NewLogger creates the process logger from configuration.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// New connects every backend, indexes the manual and assembles the
// assistant. Anything opened before a failure is closed again.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Store, err = OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err = a.Store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a.Matcher, err = NewMatcher(ctx, cfg, a.Store)
	if err != nil {
		return nil, err
	}
	if mm, ok := a.Matcher.(*catalog.MemoryMatcher); ok {
		logger.Info().Int("items", mm.Len()).Msg("catalog snapshot loaded")
	}

	if cfg.UsesRedis() {
		a.Redis, err = ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	a.Cache = NewCache(cfg, a.Redis)
	a.Embedder, err = NewEmbedder(cfg, a.Cache, logger)
	if err != nil {
		return nil, err
	}
	a.Completer, err = NewCompleter(cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ix, err := BuildIndex(ctx, cfg, a.Embedder, nil)
	if err != nil {
		return nil, err
	}
	a.Index = retrieval.NewHolder(ix)
	logger.Info().
		Str("manual", cfg.Manual.Path).
		Int("pages", ix.Len()).
		Int("dimension", ix.Dimension()).
		Dur("duration", time.Since(start)).
		Msg("manual indexed")

	a.Conversations = NewConversationStore(cfg, a.Redis)

	a.Assistant = assistant.New(assistant.Deps{
		Classifier:       intent.NewKeywordClassifier(),
		Extractor:        intent.NewExtractor(a.Completer, cfg.Location()),
		Matcher:          a.Matcher,
		Resolver:         availability.NewResolver(a.Store),
		Retriever:        retrieval.NewRetriever(a.Index, a.Embedder, cfg.Retrieval.TopK),
		Composer:         llm.NewAnswerComposer(a.Completer),
		Conversations:    a.Conversations,
		Logger:           logger,
		Location:         cfg.Location(),
		MatchConcurrency: cfg.Matcher.Concurrency,
		TopK:             cfg.Retrieval.TopK,
	})
	return a, nil
}

// OpenStore opens the configured catalog database.
func OpenStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	dsn := cfg.Database.Postgres.DSN
	if cfg.Database.Driver == "sqlite" {
		dsn = cfg.Database.SQLite.Path
	}
	store, err := database.Open(ctx, cfg.Database.Driver, dsn, cfg.Database.Postgres.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// NewMatcher creates the configured catalog matcher. The memory backend
// snapshots the catalog once; later catalog edits need a restart.
func NewMatcher(ctx context.Context, cfg *config.Config, store database.Store) (catalog.Matcher, error) {
	switch cfg.Matcher.Backend {
	case "postgres":
		lookup, ok := store.(catalog.SimilarityLookup)
		if !ok {
			return nil, fmt.Errorf("database driver %s cannot run similarity lookups", cfg.Database.Driver)
		}
		return catalog.NewStoreMatcher(lookup, cfg.Matcher.Threshold), nil
	case "memory", "":
		items, err := store.ListItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		return catalog.NewMemoryMatcher(items, cfg.Matcher.Threshold), nil
	default:
		return nil, fmt.Errorf("unknown matcher backend %q", cfg.Matcher.Backend)
	}
}

// ConnectRedis opens the shared Redis connection.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client, err := cache.Connect(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewCache returns the embedding cache, or nil when caching is disabled.
func NewCache(cfg *config.Config, rdb *redis.Client) cache.Client {
	switch cfg.Cache.Driver {
	case "memory":
		return cache.NewMemoryClient(cfg.Cache.MaxEntries)
	case "redis":
		if rdb != nil {
			return cache.NewRedisClient(rdb, "")
		}
	}
	return nil
}

// NewEmbedder creates the configured embedding backend, wrapped in c when
// it is not nil.
func NewEmbedder(cfg *config.Config, c cache.Client, logger zerolog.Logger) (embedding.Embedder, error) {
	ec := cfg.Embedding
	var e embedding.Embedder
	switch ec.Backend {
	case "ollama":
		oe, err := embedding.NewOllamaEmbedder(ec.Host, ec.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		if ec.MaxRetries > 0 {
			oe.MaxRetries = ec.MaxRetries
		}
		if ec.Timeout > 0 {
			oe.Timeout = ec.Timeout
		}
		e = oe
	case "openai":
		e = embedding.NewOpenAIEmbedder(ec.APIKey, ec.BaseURL, ec.Model, ec.Timeout, ec.MaxRetries)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", ec.Backend)
	}

	if c != nil {
		e = embedding.NewCachedEmbedder(e, c, ec.Model, cfg.Cache.TTL, logger)
	}
	return e, nil
}

// NewCompleter creates the configured chat backend.
func NewCompleter(cfg *config.Config) (llm.Completer, error) {
	lc := cfg.LLM
	switch lc.Backend {
	case "ollama":
		c, err := llm.NewOllamaLLM(lc.Host, lc.Model, lc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		return c, nil
	case "openai":
		return llm.NewOpenAILLM(lc.APIKey, lc.BaseURL, lc.Model, lc.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", lc.Backend)
	}
}

// BuildIndex extracts the manual's pages and embeds them.
func BuildIndex(ctx context.Context, cfg *config.Config, e embedding.Embedder, progress func(processed, total int)) (*retrieval.Index, error) {
	pages, err := processor.NewPDFProcessor(minPageChars).ExtractPages(cfg.Manual.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manual: %w", err)
	}
	ix, err := retrieval.Build(ctx, pages, e, retrieval.BuildOptions{
		Dimension:     cfg.Embedding.Dimension,
		MaxConcurrent: cfg.Embedding.MaxConcurrent,
		Progress:      progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index manual: %w", err)
	}
	return ix, nil
}

// NewConversationStore creates the configured history store.
func NewConversationStore(cfg *config.Config, rdb *redis.Client) conversation.Store {
	cc := cfg.Conversation
	if cc.Backend == "redis" && rdb != nil {
		return conversation.NewRedisStore(rdb, "", cc.TTL, cc.MaxTurns)
	}
	return conversation.NewMemoryStore(conversation.MemoryOptions{
		TTL:              cc.TTL,
		MaxConversations: cc.MaxConversations,
		MaxTurns:         cc.MaxTurns,
	})
}

// Handler returns the HTTP API for the assistant.
func (a *App) Handler() http.Handler {
	checks := map[string]api.ReadinessCheck{
		"database": a.Store.Ping,
		"manual": func(context.Context) error {
			if a.Index.Current() == nil {
				return errors.New("manual not indexed")
			}
			return nil
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	h := api.NewHandler(a.Assistant, checks, a.Logger)
	return api.NewRouter(h, a.Logger, a.Config.Server.RequestTimeout)
}

// WatchManual rebuilds the index whenever the manual changes, until ctx is
// done. It returns immediately when watching is disabled.
func (a *App) WatchManual(ctx context.Context) error {
	if !a.Config.Manual.Watch {
		return nil
	}
	w := &retrieval.Watcher{
		Path:   a.Config.Manual.Path,
		Holder: a.Index,
		Rebuild: func(ctx context.Context) (*retrieval.Index, error) {
			return BuildIndex(ctx, a.Config, a.Embedder, nil)
		},
		Logger: a.Logger,
	}
	a.Logger.Info().Str("manual", a.Config.Manual.Path).Msg("watching manual for changes")
	return w.Run(ctx)
}

// Close releases every open backend.
func (a *App) Close() {
	if a.Conversations != nil {
		if err := a.Conversations.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close conversation store")
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close cache")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
