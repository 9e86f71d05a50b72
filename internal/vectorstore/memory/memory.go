// Package memory is an in-process vector store using brute-force cosine
// similarity. It does not persist across restarts.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

type record struct {
	vector   []float32
	norm     float64
	metadata fragment.Metadata
}

// Store keeps vectors in a map keyed by fragment id.
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]record
}

func New() *Store {
	return &Store{records: make(map[string]record)}
}

func (s *Store) Upsert(_ context.Context, entries []vectorstore.Entry) (int, error) {
	valid := vectorstore.FilterValid(entries)
	if len(valid) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(valid[0].Vector)
	}
	for _, e := range valid {
		if len(e.Vector) != dim {
			return 0, fmt.Errorf("upsert %s: want %d dimensions, got %d: %w", e.ID, dim, len(e.Vector), fragment.ErrDimensionMismatch)
		}
	}

	s.dimension = dim
	for _, e := range valid {
		vec := slices.Clone(e.Vector)
		meta := e.Metadata
		meta.ImagePaths = slices.Clone(meta.ImagePaths)
		s.records[e.ID] = record{vector: vec, norm: norm(vec), metadata: meta}
	}
	return len(valid), nil
}

func (s *Store) Query(_ context.Context, vector []float32, topK int) ([]fragment.RetrievalResult, error) {
	topK, err := vectorstore.NormalizeQuery(vector, topK)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return []fragment.RetrievalResult{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query: want %d dimensions, got %d: %w", s.dimension, len(vector), fragment.ErrDimensionMismatch)
	}

	qnorm := norm(vector)
	results := make([]fragment.RetrievalResult, 0, len(s.records))
	// Results get their own copies; stored records never change after upsert.
	for id, r := range s.records {
		meta := r.metadata
		meta.ImagePaths = slices.Clone(meta.ImagePaths)
		results = append(results, fragment.RetrievalResult{
			ID:        id,
			Embedding: slices.Clone(r.vector),
			Metadata:  meta,
			Score:     cosine(vector, r.vector, qnorm, r.norm),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) Close() error { return nil }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float32 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (na * nb))
}
