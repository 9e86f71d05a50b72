// Package open selects and connects the configured vector store backend.
package open

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
	"github.com/dgallion1/ragdoc/internal/vectorstore/chroma"
	"github.com/dgallion1/ragdoc/internal/vectorstore/memory"
	"github.com/dgallion1/ragdoc/internal/vectorstore/milvus"
	"github.com/dgallion1/ragdoc/internal/vectorstore/qdrant"
	"github.com/dgallion1/ragdoc/internal/vectorstore/sqlitevec"
)

// Store opens the backend named by cfg.VectorStore. In-process backends
// are wrapped so writes are serialized; server backends handle their own
// concurrency.
func Store(ctx context.Context, cfg config.Config, log *slog.Logger) (vectorstore.Store, error) {
	log = log.With("vector_store", cfg.VectorStore, "collection", cfg.CollectionName)

	switch cfg.VectorStore {
	case "memory":
		return vectorstore.Serialized(memory.New()), nil

	case "sqlite", "":
		s, err := sqlitevec.New(sqlitevec.Config{
			DBPath:     cfg.SQLitePath,
			Collection: cfg.CollectionName,
			Dimensions: cfg.EmbeddingDimensions,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return vectorstore.Serialized(s), nil

	case "chroma":
		s, err := chroma.New(ctx, chroma.Config{
			URL:        cfg.ChromaURL,
			Collection: cfg.CollectionName,
			Dimensions: cfg.EmbeddingDimensions,
			MaxRetries: 5,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("opening chroma store: %w", err)
		}
		return s, nil

	case "qdrant":
		s, err := qdrant.New(ctx, qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.CollectionName,
			Dimensions: cfg.EmbeddingDimensions,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("opening qdrant store: %w", err)
		}
		return s, nil

	case "milvus":
		s, err := milvus.New(ctx, milvus.Config{
			Address:    cfg.MilvusAddress,
			Collection: cfg.CollectionName,
			Dimensions: cfg.EmbeddingDimensions,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("opening milvus store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
	}
}
