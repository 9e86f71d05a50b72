// Package chroma is a vector store backed by a Chroma server's REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

const collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// Config holds configuration for the Chroma store.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// Collection is created with cosine space if it does not exist.
	Collection string

	// Dimensions, when set, rejects query vectors of any other length.
	Dimensions int

	// MaxRetries bounds connection attempts while the server starts up.
	MaxRetries int

	// RetryDelay is the first backoff delay; it doubles up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Store talks to one Chroma collection.
type Store struct {
	baseURL      string
	collectionID string
	dimensions   int
	httpClient   *http.Client
	log          *slog.Logger
}

// New connects and gets or creates the collection, retrying while the
// server is unreachable.
func New(ctx context.Context, c Config, log *slog.Logger) (*Store, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}
	if c.Collection == "" {
		return nil, fmt.Errorf("chroma collection name is required")
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 10 * time.Second
	}

	s := &Store{
		baseURL:    strings.TrimRight(c.URL, "/"),
		dimensions: c.Dimensions,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log,
	}

	delay := c.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("chroma not ready, retrying", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.MaxRetryDelay)
		}

		id, err := s.getOrCreateCollection(ctx, c.Collection)
		if err == nil {
			s.collectionID = id
			log.Info("connected to chroma", "url", c.URL, "collection", c.Collection, "collection_id", id)
			return s, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("getting or creating collection %q: %w", c.Collection, lastErr)
}

// getOrCreateCollection relies on get_or_create so concurrent creators
// all end up with the same collection.
func (s *Store) getOrCreateCollection(ctx context.Context, name string) (string, error) {
	var coll chromaCollection
	err := s.do(ctx, http.MethodPost, collectionsPath, chromaCreateRequest{
		Name:        name,
		Metadata:    map[string]any{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}, &coll)
	if err != nil {
		return "", err
	}
	if coll.ID == "" {
		return "", fmt.Errorf("chroma returned a collection without an id")
	}
	return coll.ID, nil
}

func (s *Store) collectionPath(op string) string {
	return collectionsPath + "/" + s.collectionID + "/" + op
}

func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) (int, error) {
	valid := vectorstore.FilterValid(entries)
	if len(valid) == 0 {
		return 0, nil
	}
	for _, e := range valid {
		if err := vectorstore.CheckDimensions(e.Vector, s.dimensions); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", e.ID, err)
		}
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(valid)),
		Embeddings: make([][]float32, len(valid)),
		Metadatas:  make([]map[string]any, len(valid)),
	}
	for i, e := range valid {
		req.IDs[i] = e.ID
		req.Embeddings[i] = e.Vector
		// Chroma metadata values must be scalars.
		req.Metadatas[i] = map[string]any{
			"page":        e.Metadata.Page,
			"chunk_id":    e.Metadata.ChunkID,
			"image_paths": vectorstore.EncodePaths(e.Metadata.ImagePaths),
		}
	}

	if err := s.do(ctx, http.MethodPost, s.collectionPath("upsert"), req, nil); err != nil {
		return 0, fmt.Errorf("upserting to chroma: %w", err)
	}

	s.log.Debug("upserted fragments to chroma", "count", len(valid))
	return len(valid), nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]fragment.RetrievalResult, error) {
	topK, err := vectorstore.NormalizeQuery(vector, topK)
	if err != nil {
		return nil, err
	}
	if err := vectorstore.CheckDimensions(vector, s.dimensions); err != nil {
		return nil, fmt.Errorf("querying chroma: %w", err)
	}

	// Chroma rejects n_results larger than the collection.
	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []fragment.RetrievalResult{}, nil
	}
	topK = min(topK, count)

	var resp chromaQueryResponse
	err = s.do(ctx, http.MethodPost, s.collectionPath("query"), chromaQueryRequest{
		QueryEmbeddings: [][]float32{vector},
		NResults:        topK,
		Include:         []string{"metadatas", "distances", "embeddings"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("querying chroma: %w", err)
	}

	results := reshape(resp)
	s.log.Debug("queried chroma", "results", len(results))
	return results, nil
}

// reshape turns the first query group of a Chroma response into typed
// results. Missing parallel arrays leave fields at their zero value.
func reshape(resp chromaQueryResponse) []fragment.RetrievalResult {
	if len(resp.IDs) == 0 {
		return []fragment.RetrievalResult{}
	}

	ids := resp.IDs[0]
	var distances []float32
	if len(resp.Distances) > 0 {
		distances = resp.Distances[0]
	}
	var metadatas []map[string]any
	if len(resp.Metadatas) > 0 {
		metadatas = resp.Metadatas[0]
	}
	var embeddings [][]float32
	if len(resp.Embeddings) > 0 {
		embeddings = resp.Embeddings[0]
	}

	results := make([]fragment.RetrievalResult, len(ids))
	for i, id := range ids {
		r := fragment.RetrievalResult{
			ID:       id,
			Metadata: fragment.Metadata{ImagePaths: []string{}},
		}
		if i < len(metadatas) && metadatas[i] != nil {
			m := metadatas[i]
			r.Metadata.Page = toInt(m["page"])
			r.Metadata.ChunkID = toInt(m["chunk_id"])
			if p, ok := m["image_paths"].(string); ok {
				r.Metadata.ImagePaths = vectorstore.DecodePaths(p)
			}
		}
		if i < len(embeddings) {
			r.Embedding = embeddings[i]
		}
		if i < len(distances) {
			// Cosine space: distance is 1 - similarity.
			r.Score = 1 - distances[i]
		}
		results[i] = r
	}
	return results
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.do(ctx, http.MethodGet, s.collectionPath("count"), nil, &n); err != nil {
		return 0, fmt.Errorf("counting chroma collection: %w", err)
	}
	return n, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
