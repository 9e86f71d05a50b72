// Package milvus is a vector store backed by a Milvus server.
package milvus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

const (
	fieldID         = "fragment_id"
	fieldEmbedding  = "embedding"
	fieldPage       = "page"
	fieldChunkID    = "chunk_id"
	fieldImagePaths = "image_paths"

	maxIDLen    = 512
	maxPathsLen = 65535
)

var outputFields = []string{fieldPage, fieldChunkID, fieldImagePaths, fieldEmbedding}

// Config holds configuration for the Milvus store.
type Config struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Dimensions int
}

// Store wraps one Milvus collection keyed by fragment id.
type Store struct {
	client     *milvusclient.Client
	collection string
	dimensions int
	log        *slog.Logger
}

// New connects to Milvus and creates and loads the collection if needed.
func New(ctx context.Context, c Config, log *slog.Logger) (*Store, error) {
	if c.Address == "" {
		return nil, fmt.Errorf("milvus address is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("milvus embedding dimensions must be configured")
	}

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  c.Address,
		Username: c.Username,
		Password: c.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	s := &Store{
		client:     client,
		collection: c.Collection,
		dimensions: c.Dimensions,
		log:        log,
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close(ctx)
		return nil, err
	}

	log.Info("connected to milvus", "address", c.Address, "collection", c.Collection)
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists := func(ctx context.Context) (bool, error) {
		return s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	}
	create := func(ctx context.Context) error {
		schema := entity.NewSchema().
			WithName(s.collection).
			WithDescription("document fragments").
			WithAutoID(false)

		schema.WithField(
			entity.NewField().
				WithName(fieldID).
				WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).
				WithMaxLength(maxIDLen),
		)
		schema.WithField(
			entity.NewField().
				WithName(fieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(s.dimensions)),
		)
		schema.WithField(entity.NewField().WithName(fieldPage).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName(fieldChunkID).WithDataType(entity.FieldTypeInt64))
		schema.WithField(
			entity.NewField().
				WithName(fieldImagePaths).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(maxPathsLen),
		)

		return s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, schema))
	}

	created, err := vectorstore.EnsureCollection(ctx, exists, create)
	if err != nil {
		return fmt.Errorf("milvus collection %q: %w", s.collection, err)
	}

	// Whoever created the collection builds its index.
	if created {
		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		createIdxTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, fieldEmbedding, idx))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := createIdxTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index creation: %w", err)
		}
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) (int, error) {
	valid := vectorstore.FilterValid(entries)
	if len(valid) == 0 {
		return 0, nil
	}
	for _, e := range valid {
		if len(e.Vector) != s.dimensions {
			return 0, fmt.Errorf("%w: %s has %d, collection has %d",
				fragment.ErrDimensionMismatch, e.ID, len(e.Vector), s.dimensions)
		}
	}

	if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, columns(valid, s.dimensions)...)); err != nil {
		return 0, fmt.Errorf("failed to upsert data: %w", err)
	}

	// Flush so the rows are searchable as soon as ingestion reports success.
	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(s.collection))
	if err != nil {
		return 0, fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return 0, fmt.Errorf("failed to wait for flush: %w", err)
	}

	s.log.Debug("upserted fragments to milvus", "count", len(valid))
	return len(valid), nil
}

// columns lays entries out as one column per schema field.
func columns(entries []vectorstore.Entry, dim int) []column.Column {
	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	pages := make([]int64, len(entries))
	chunks := make([]int64, len(entries))
	paths := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		vectors[i] = e.Vector
		pages[i] = int64(e.Metadata.Page)
		chunks[i] = int64(e.Metadata.ChunkID)
		paths[i] = vectorstore.EncodePaths(e.Metadata.ImagePaths)
	}
	return []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnFloatVector(fieldEmbedding, dim, vectors),
		column.NewColumnInt64(fieldPage, pages),
		column.NewColumnInt64(fieldChunkID, chunks),
		column.NewColumnVarChar(fieldImagePaths, paths),
	}
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]fragment.RetrievalResult, error) {
	topK, err := vectorstore.NormalizeQuery(vector, topK)
	if err != nil {
		return nil, err
	}
	if err := vectorstore.CheckDimensions(vector, s.dimensions); err != nil {
		return nil, fmt.Errorf("searching milvus: %w", err)
	}

	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		s.collection,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(fieldEmbedding).
		WithSearchParam("ef", strconv.Itoa(max(topK, 64))).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []fragment.RetrievalResult{}, nil
	}
	return readResultSet(results[0]), nil
}

// readResultSet converts one Milvus result set. With the COSINE metric the
// reported score is already the similarity.
func readResultSet(rs milvusclient.ResultSet) []fragment.RetrievalResult {
	out := make([]fragment.RetrievalResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		r := fragment.RetrievalResult{
			Metadata: fragment.Metadata{ImagePaths: []string{}},
		}
		if i < len(rs.Scores) {
			r.Score = rs.Scores[i]
		}
		if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
			r.ID = idCol.Data()[i]
		}

		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				if col.Name() == fieldImagePaths {
					r.Metadata.ImagePaths = vectorstore.DecodePaths(col.Data()[i])
				}
			case *column.ColumnInt64:
				switch col.Name() {
				case fieldPage:
					r.Metadata.Page = int(col.Data()[i])
				case fieldChunkID:
					r.Metadata.ChunkID = int(col.Data()[i])
				}
			case *column.ColumnFloatVector:
				r.Embedding = col.Data()[i]
			}
		}
		out = append(out, r)
	}
	return out
}

func (s *Store) Count(ctx context.Context) (int, error) {
	stats, err := s.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(s.collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	val, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing row_count %q: %w", val, err)
	}
	return n, nil
}

// Close closes the Milvus client connection.
func (s *Store) Close() error {
	return s.client.Close(context.Background())
}
