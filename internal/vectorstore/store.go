// Package vectorstore defines the persistent similarity index that holds
// one vector and its metadata per fragment.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgallion1/ragdoc/internal/fragment"
)

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 5

// ErrInvalidQuery is returned for a query with no vector.
var ErrInvalidQuery = errors.New("invalid query: vector is empty")

// Entry is one vector to persist.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata fragment.Metadata
}

// EntryFor builds a store entry from an embedded fragment.
func EntryFor(f fragment.Fragment) Entry {
	return Entry{
		ID:       f.ID,
		Vector:   f.Embedding,
		Metadata: fragment.MetadataFor(f),
	}
}

// Store is a named, persistent similarity index. Implementations create
// their collection on first use and reshape engine results into typed
// RetrievalResults.
type Store interface {
	// Upsert writes entries, overwriting existing ids. Entries without a
	// vector are dropped; it returns how many were written.
	Upsert(ctx context.Context, entries []Entry) (int, error)

	// Query returns up to topK entries ranked by similarity, best first.
	Query(ctx context.Context, vector []float32, topK int) ([]fragment.RetrievalResult, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	Close() error
}

// FilterValid drops entries with no vector.
func FilterValid(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) > 0 && e.ID != "" {
			out = append(out, e)
		}
	}
	return out
}

// NormalizeQuery validates a query vector and applies the default topK.
func NormalizeQuery(vector []float32, topK int) (int, error) {
	if len(vector) == 0 {
		return 0, ErrInvalidQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return topK, nil
}

// CheckDimensions rejects a vector whose length differs from the
// collection's. A dim of 0 means unknown and accepts anything.
func CheckDimensions(vector []float32, dim int) error {
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("want %d dimensions, got %d: %w", dim, len(vector), fragment.ErrDimensionMismatch)
	}
	return nil
}

// EnsureCollection calls create when exists reports the collection
// missing. If create fails, existence is checked again so a concurrent
// creator is not an error. It reports whether this call created it.
func EnsureCollection(ctx context.Context, exists func(context.Context) (bool, error), create func(context.Context) error) (bool, error) {
	ok, err := exists(ctx)
	if err != nil {
		return false, fmt.Errorf("checking collection: %w", err)
	}
	if ok {
		return false, nil
	}

	if err := create(ctx); err != nil {
		if ok, checkErr := exists(ctx); checkErr == nil && ok {
			return false, nil
		}
		return false, fmt.Errorf("creating collection: %w", err)
	}
	return true, nil
}

// EncodePaths renders image paths for engines whose metadata values must
// be scalars.
func EncodePaths(paths []string) string {
	if paths == nil {
		paths = []string{}
	}
	b, _ := json.Marshal(paths)
	return string(b)
}

// DecodePaths reverses EncodePaths. Malformed input yields no paths.
func DecodePaths(s string) []string {
	var paths []string
	if err := json.Unmarshal([]byte(s), &paths); err != nil || paths == nil {
		return []string{}
	}
	return paths
}

// Serialized guards a store's writes with a mutex. Queries still run
// concurrently with each other.
func Serialized(s Store) Store {
	return &serialized{Store: s}
}

type serialized struct {
	Store
	mu sync.RWMutex
}

func (s *serialized) Upsert(ctx context.Context, entries []Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Store.Upsert(ctx, entries)
}

func (s *serialized) Query(ctx context.Context, vector []float32, topK int) ([]fragment.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Store.Query(ctx, vector, topK)
}
