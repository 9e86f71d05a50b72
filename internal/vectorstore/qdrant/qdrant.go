// Package qdrant is a vector store backed by Qdrant over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

// Qdrant point ids must be integers or UUIDs, so fragment ids are mapped to
// name-based UUIDs and the original id rides along in the payload.
var pointNamespace = uuid.MustParse("6f1f8f3e-2b61-4c55-9a57-3d1c0c6e8a10")

const (
	payloadID         = "fragment_id"
	payloadPage       = "page"
	payloadChunkID    = "chunk_id"
	payloadImagePaths = "image_paths"
)

// Config holds configuration for the Qdrant store.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// Store wraps one Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
	dimensions int
	log        *slog.Logger
}

// New connects to Qdrant and creates the collection with cosine distance
// if it does not exist.
func New(ctx context.Context, c Config, log *slog.Logger) (*Store, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions must be configured")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: c.Collection,
		dimensions: c.Dimensions,
		log:        log,
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	log.Info("connected to qdrant", "host", c.Host, "port", c.Port, "collection", c.Collection)
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists := func(ctx context.Context) (bool, error) {
		return s.client.CollectionExists(ctx, s.collection)
	}
	create := func(ctx context.Context) error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	}
	if _, err := vectorstore.EnsureCollection(ctx, exists, create); err != nil {
		return fmt.Errorf("qdrant collection %q: %w", s.collection, err)
	}
	return nil
}

// pointID maps a fragment id to its stable point UUID.
func pointID(fragmentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fragmentID)).String()
}

func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) (int, error) {
	valid := vectorstore.FilterValid(entries)
	if len(valid) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointStruct, len(valid))
	for i, e := range valid {
		if len(e.Vector) != s.dimensions {
			return 0, fmt.Errorf("%w: %s has %d, collection has %d",
				fragment.ErrDimensionMismatch, e.ID, len(e.Vector), s.dimensions)
		}
		points[i] = toPoint(e)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("upserting to qdrant: %w", err)
	}

	s.log.Debug("upserted fragments to qdrant", "count", len(valid))
	return len(valid), nil
}

func toPoint(e vectorstore.Entry) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(e.ID)),
		Vectors: qdrant.NewVectors(e.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadID:         e.ID,
			payloadPage:       int64(e.Metadata.Page),
			payloadChunkID:    int64(e.Metadata.ChunkID),
			payloadImagePaths: vectorstore.EncodePaths(e.Metadata.ImagePaths),
		}),
	}
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]fragment.RetrievalResult, error) {
	topK, err := vectorstore.NormalizeQuery(vector, topK)
	if err != nil {
		return nil, err
	}
	if err := vectorstore.CheckDimensions(vector, s.dimensions); err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	results := make([]fragment.RetrievalResult, len(points))
	for i, p := range points {
		results[i] = fromScoredPoint(p)
	}
	return results, nil
}

// fromScoredPoint reads a result back. Cosine scores are similarities.
func fromScoredPoint(p *qdrant.ScoredPoint) fragment.RetrievalResult {
	payload := p.GetPayload()
	r := fragment.RetrievalResult{
		ID:    payload[payloadID].GetStringValue(),
		Score: p.GetScore(),
		Metadata: fragment.Metadata{
			Page:       int(payload[payloadPage].GetIntegerValue()),
			ChunkID:    int(payload[payloadChunkID].GetIntegerValue()),
			ImagePaths: vectorstore.DecodePaths(payload[payloadImagePaths].GetStringValue()),
		},
	}
	if r.ID == "" {
		r.ID = p.GetId().GetUuid()
	}
	if v := p.GetVectors().GetVector(); v != nil {
		r.Embedding = v.GetData()
	}
	return r
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting qdrant points: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
