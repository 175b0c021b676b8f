// Package app wires configuration into a ready rag.Service.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/josinaldojr/doc-qa-rag/internal/config"
	"github.com/josinaldojr/doc-qa-rag/internal/db"
	"github.com/josinaldojr/doc-qa-rag/pkg/llm"
	"github.com/josinaldojr/doc-qa-rag/pkg/loader"
	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
	"github.com/josinaldojr/doc-qa-rag/pkg/store"
)

type App struct {
	Service *rag.Service
	Store   rag.IndexStore
	Logger  *slog.Logger

	closers []func()
}

func NewLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// New builds the provider clients, loader and index store described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}
	a := &App{Logger: logger}

	embeddings, chat, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	chatModel := cfg.ChatModel
	if cm, ok := chat.(interface{ ChatModel() string }); ok {
		chatModel = cm.ChatModel()
	}
	if cfg.RateLimit > 0 || cfg.MaxRetries > 0 {
		retry := llm.DefaultRetry
		retry.MaxAttempts = cfg.MaxRetries + 1
		guard := llm.NewGuard(embeddings, chat, llm.GuardConfig{
			RequestsPerSecond: cfg.RateLimit,
			Burst:             cfg.RateBurst,
			Retry:             retry,
		})
		embeddings, chat = guard, guard
	}

	st, err := a.newStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	svc, err := rag.NewService(rag.Deps{
		Chat:       chat,
		Embeddings: embeddings,
		Loader:     loader.New(loader.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout})),
		Store:      st,
		Logger:     logger,
	}, cfg.Options())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc

	logger.Info("app: ready",
		"provider", cfg.Provider,
		"chat_model", chatModel,
		"embedding_model", embeddings.Model(),
		"backend", cfg.IndexBackend,
	)
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newProvider(ctx context.Context, cfg *config.Config) (rag.EmbeddingsClient, rag.ChatClient, error) {
	switch cfg.Provider {
	case "gemini":
		c, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:         cfg.APIKey,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case "openai":
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, rag.Errorf(rag.ErrConfiguration, "app", "unknown provider %q", cfg.Provider)
	}
}

func (a *App) newStore(ctx context.Context, cfg *config.Config) (rag.IndexStore, error) {
	switch cfg.IndexBackend {
	case "file":
		fs, err := store.NewFileStore(cfg.RagDir)
		if err != nil {
			return nil, err
		}
		a.Logger.Info("app: file store", "root", fs.Root())
		return fs, nil

	case "postgres":
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := db.NewPool(dbCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, rag.Wrap(rag.ErrConfiguration, "app", err)
		}
		a.closers = append(a.closers, pool.Close)

		pg := store.NewPgStore(pool)
		if err := pg.EnsureSchema(dbCtx); err != nil {
			return nil, rag.Wrap(rag.ErrConfiguration, "app", err)
		}
		return pg, nil

	case "qdrant":
		qs, err := store.NewQdrantStore(store.QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantUseTLS,
			Prefix: cfg.QdrantPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := qs.Close(); err != nil {
				a.Logger.Warn("app: closing qdrant client", "error", err)
			}
		})
		return qs, nil

	default:
		return nil, rag.Errorf(rag.ErrConfiguration, "app", "unknown index backend %q", cfg.IndexBackend)
	}
}
