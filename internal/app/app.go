// Package app builds the pipeline components from configuration for the
// command-line entry points.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/config"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/describe"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/embedding"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/ingest"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/lock"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/segment"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/storage"
)

// App holds connected components. Close releases them.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Storage *storage.QdrantStorage
	Text    *storage.QdrantCollection
	Image   *storage.QdrantCollection

	// Orchestrator is nil until EnableIngest succeeds.
	Orchestrator *ingest.Orchestrator

	closers []func()
}

// NewLogger returns a text logger on w at the named level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Connect opens Qdrant and ensures both collections exist. It needs no
// OpenAI credentials.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewQdrantStorage(storage.Config{
		Host:      cfg.Qdrant.Host,
		Port:      cfg.Qdrant.Port,
		APIKey:    cfg.Qdrant.APIKey,
		UseTLS:    cfg.Qdrant.UseTLS,
		Dimension: cfg.OpenAI.EmbeddingDimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, Storage: store}
	a.closers = append(a.closers, func() { store.Close() })

	for _, name := range []string{cfg.Qdrant.TextCollection, cfg.Qdrant.ImageCollection} {
		if err := store.EnsureCollection(ctx, name); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure collection: %w", err)
		}
	}
	a.Text = store.Collection(cfg.Qdrant.TextCollection, nil)
	a.Image = store.Collection(cfg.Qdrant.ImageCollection, nil)
	return a, nil
}

// EnableIngest builds the embedder, describer, locker and orchestrator.
func (a *App) EnableIngest() error {
	if err := a.Config.Validate(true); err != nil {
		return err
	}
	cfg := a.Config

	client, err := embedding.NewClient(cfg.OpenAI.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	embedder := embedding.NewEmbedder(client,
		embedding.WithModel(cfg.OpenAI.EmbeddingModel),
		embedding.WithDimension(cfg.OpenAI.EmbeddingDimension),
	)
	a.Text = a.Storage.Collection(cfg.Qdrant.TextCollection, embedder)
	a.Image = a.Storage.Collection(cfg.Qdrant.ImageCollection, embedder)

	describer, err := describe.NewOpenAIDescriber(client.Client(), cfg.OpenAI.VisionModel, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create describer: %w", err)
	}

	lenFunc, err := segment.TiktokenLen()
	if err != nil {
		a.Logger.Warn("tokenizer unavailable, approximating token counts", "error", err)
		lenFunc = segment.ApproxTokens
	}

	locker, err := a.newLocker()
	if err != nil {
		return err
	}

	a.Orchestrator, err = ingest.New(ingest.Config{
		Text:      a.Text,
		Image:     a.Image,
		Describer: describer,
		Segmenter: segment.New(cfg.Ingest.ChunkTokens, cfg.Ingest.ChunkOverlap, lenFunc),
		Locker:    locker,
		Logger:    a.Logger,
	})
	return err
}

func (a *App) newLocker() (lock.Locker, error) {
	if len(a.Config.Redis.Addrs) == 0 {
		return lock.NewLocalLocker(), nil
	}
	locker, err := lock.NewRedisLocker(a.Config.Redis.Addrs, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, locker.Close)
	a.Logger.Info("using shared locks", "redis", a.Config.Redis.Addrs)
	return locker, nil
}

// Flush drops and recreates both collections.
func (a *App) Flush(ctx context.Context) error {
	for _, name := range []string{a.Config.Qdrant.TextCollection, a.Config.Qdrant.ImageCollection} {
		if err := a.Storage.RecreateCollection(ctx, name); err != nil {
			return err
		}
		a.Logger.Info("collection recreated", "collection", name)
	}
	return nil
}

// Close releases everything Connect and EnableIngest opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
