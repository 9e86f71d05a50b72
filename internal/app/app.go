// Package app wires configuration into the running ingestion and
// retrieval components shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/embedding"
	"github.com/dgallion1/ragdoc/internal/events"
	"github.com/dgallion1/ragdoc/internal/llm"
	"github.com/dgallion1/ragdoc/internal/pipeline"
	"github.com/dgallion1/ragdoc/internal/retriever"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
	"github.com/dgallion1/ragdoc/internal/vectorstore/open"
)

const statsWindow = time.Hour

// App holds the long-lived components. Build it once per process and
// Close it on shutdown.
type App struct {
	Config config.Config
	Log    *slog.Logger

	Embedder  *embedding.Fuser
	Store     vectorstore.Store
	Ingester  *pipeline.Ingester
	Retriever *retriever.Retriever
	Answerer  *retriever.Answerer
	Manifests *pipeline.ManifestIndex
	Publisher events.Publisher

	EmbedStats     *llm.Stats
	GeneratorStats *llm.Stats

	mu      sync.Mutex
	closers []func()
}

// Build constructs every component from cfg. Oracles are loaded lazily on
// first use, so Build does not contact the embedding or generation
// services.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{
		Config:         cfg,
		Log:            log,
		EmbedStats:     llm.NewStats(statsWindow),
		GeneratorStats: llm.NewStats(statsWindow),
	}

	oracle, err := a.buildOracle(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Embedder = embedding.NewFuser(oracle, cfg.EmbeddingDimensions, log)

	store, err := open.Store(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.Store = vectorstore.Serialized(store)
	a.onClose(func() {
		if err := a.Store.Close(); err != nil {
			log.Warn("closing vector store", "error", err)
		}
	})

	ing, err := pipeline.NewIngester(cfg, a.Embedder, a.Store, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ingester = ing
	a.onClose(ing.Close)

	a.Publisher, err = buildPublisher(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() {
		if err := a.Publisher.Close(); err != nil {
			log.Warn("closing event publisher", "error", err)
		}
	})

	gen := llm.NewHandle(a.generatorLoader())
	a.onClose(gen.Close)

	a.Manifests = pipeline.NewManifestIndex(ing.StorageRoot())
	a.Retriever = retriever.New(a.Embedder, a.Store, cfg.DefaultTopK, log)
	a.Answerer = retriever.NewAnswerer(a.Retriever, a.Manifests, gen, log)

	return a, nil
}

// EmbedModel names the embedding model in use.
func (a *App) EmbedModel() string {
	return a.Config.EmbeddingModel
}

// GeneratorModel names the generation model in use.
func (a *App) GeneratorModel() string {
	if a.Config.GeneratorProvider == "claude" {
		return a.Config.AnthropicModel
	}
	return a.Config.OllamaModel
}

// Close releases components in reverse construction order.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// onClose registers fn to run on Close. Oracle loaders call it from
// request goroutines.
func (a *App) onClose(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

func (a *App) buildOracle(ctx context.Context) (embedding.Oracle, error) {
	cfg := a.Config

	var oracle embedding.Oracle = embedding.NewHandle(cfg.EmbeddingModel, func(context.Context) (embedding.Oracle, error) {
		switch cfg.EmbeddingProvider {
		case "jina":
			c := embedding.NewJinaClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, a.EmbedStats)
			a.onClose(c.Close)
			return c, nil
		case "ollama":
			c := embedding.NewOllamaClient(cfg.EmbeddingURL, cfg.EmbeddingModel, a.EmbedStats)
			a.onClose(c.Close)
			return c, nil
		default:
			return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
		}
	})

	if cfg.RedisURL == "" {
		return oracle, nil
	}
	cache, err := embedding.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect embedding cache: %w", err)
	}
	a.onClose(func() { cache.Close() })
	a.Log.Info("embedding cache enabled", "ttl", cfg.EmbedCacheTTL)
	return embedding.NewCached(oracle, cache, cfg.EmbedCacheTTL, a.Log), nil
}

func (a *App) generatorLoader() llm.Loader {
	cfg := a.Config
	return func(context.Context) (llm.Generator, error) {
		switch cfg.GeneratorProvider {
		case "claude":
			return llm.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, a.GeneratorStats), nil
		case "ollama":
			return llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, a.GeneratorStats), nil
		default:
			return nil, fmt.Errorf("unknown generator provider %q", cfg.GeneratorProvider)
		}
	}
}

func buildPublisher(cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogPublisher(log), nil
	}
	p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	log.Info("publishing ingest events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return p, nil
}
