// Package retriever answers similarity queries against the stored
// fragments of a document.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

// ErrEmptyQuery is returned for a blank query string.
var ErrEmptyQuery = errors.New("query is empty")

// QueryEmbedder embeds query text with the oracle used at ingestion.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Retriever embeds a query and ranks stored fragments against it.
type Retriever struct {
	embedder    QueryEmbedder
	store       vectorstore.Store
	defaultTopK int
	log         *slog.Logger
}

// New creates a retriever. defaultTopK applies when a caller asks for
// zero or fewer results.
func New(embedder QueryEmbedder, store vectorstore.Store, defaultTopK int, log *slog.Logger) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = vectorstore.DefaultTopK
	}
	return &Retriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
		log:         log,
	}
}

// Retrieve returns at most topK fragments, most similar first.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]fragment.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := r.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	r.log.Debug("retrieved fragments", "top_k", topK, "results", len(results))
	return results, nil
}
