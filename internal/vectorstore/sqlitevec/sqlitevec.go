// Package sqlitevec is a vector store backed by SQLite with the
// sqlite-vec extension. It is the default persistent store.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

// Config holds configuration for the SQLite store.
type Config struct {
	// DBPath is the database file. Use ":memory:" for a throwaway store.
	DBPath string

	// Collection names the table pair holding this store's data.
	Collection string

	// Dimensions is the fixed vector length of the collection.
	Dimensions int
}

// Store keeps fragment metadata in a regular table and vectors in a vec0
// virtual table sharing its rowid.
type Store struct {
	db         *sql.DB
	dimensions int
	metaTable  string
	vecTable   string
	log        *slog.Logger
}

var (
	unsafeIdent = regexp.MustCompile(`[^a-z0-9_]`)
	vecDimRe    = regexp.MustCompile(`float\[(\d+)\]`)
)

// New opens (or creates) the database and the collection's tables.
func New(c Config, log *slog.Logger) (*Store, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions must be configured")
	}
	if c.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// vec0 tables and in-memory databases are per-connection.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	name := unsafeIdent.ReplaceAllString(strings.ToLower(c.Collection), "_")
	if name == "" {
		name = "rag_docs"
	}
	s := &Store{
		db:         db,
		dimensions: c.Dimensions,
		metaTable:  name + "_fragments",
		vecTable:   name + "_vectors",
		log:        log,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("sqlite-vec store initialized",
		"db_path", c.DBPath,
		"collection", name,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)
	return s, nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			fragment_id TEXT NOT NULL UNIQUE,
			page INTEGER NOT NULL DEFAULT 0,
			chunk_id INTEGER NOT NULL DEFAULT 0,
			image_paths TEXT NOT NULL DEFAULT '[]'
		)`, s.metaTable))
	if err != nil {
		return fmt.Errorf("creating fragments table: %w", err)
	}

	_, err = s.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=cosine)`,
		s.vecTable, s.dimensions,
	))
	if err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}

	// IF NOT EXISTS keeps a table built for an earlier dimension.
	var ddl string
	err = s.db.QueryRow(`SELECT sql FROM sqlite_master WHERE name = ?`, s.vecTable).Scan(&ddl)
	if err != nil {
		return fmt.Errorf("reading vec0 schema: %w", err)
	}
	if m := vecDimRe.FindStringSubmatch(ddl); m != nil {
		if existing, _ := strconv.Atoi(m[1]); existing != s.dimensions {
			return fmt.Errorf("table %s holds %d-dimensional vectors, configured %d: %w",
				s.vecTable, existing, s.dimensions, fragment.ErrDimensionMismatch)
		}
	}
	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Upsert writes all entries in one transaction.
func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) (int, error) {
	valid := vectorstore.FilterValid(entries)
	if len(valid) == 0 {
		return 0, nil
	}
	for _, e := range valid {
		if len(e.Vector) != s.dimensions {
			return 0, fmt.Errorf("upsert %s: want %d dimensions, got %d: %w", e.ID, s.dimensions, len(e.Vector), fragment.ErrDimensionMismatch)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range valid {
		blob := serializeFloat32(e.Vector)
		paths := vectorstore.EncodePaths(e.Metadata.ImagePaths)

		var rowID int64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT rowid FROM %s WHERE fragment_id = ?`, s.metaTable), e.ID,
		).Scan(&rowID)

		switch err {
		case nil:
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET page = ?, chunk_id = ?, image_paths = ? WHERE rowid = ?`, s.metaTable),
				e.Metadata.Page, e.Metadata.ChunkID, paths, rowID,
			); err != nil {
				return 0, fmt.Errorf("updating fragment %s: %w", e.ID, err)
			}
			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, s.vecTable), rowID,
			); err != nil {
				return 0, fmt.Errorf("deleting old embedding for %s: %w", e.ID, err)
			}
		case sql.ErrNoRows:
			res, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(fragment_id, page, chunk_id, image_paths) VALUES (?, ?, ?, ?)`, s.metaTable),
				e.ID, e.Metadata.Page, e.Metadata.ChunkID, paths,
			)
			if err != nil {
				return 0, fmt.Errorf("inserting fragment %s: %w", e.ID, err)
			}
			if rowID, err = res.LastInsertId(); err != nil {
				return 0, fmt.Errorf("getting rowid for %s: %w", e.ID, err)
			}
		default:
			return 0, fmt.Errorf("checking for existing fragment %s: %w", e.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, s.vecTable),
			rowID, blob,
		); err != nil {
			return 0, fmt.Errorf("inserting embedding for %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	s.log.Debug("upserted fragments to sqlite-vec", "count", len(valid))
	return len(valid), nil
}

// Query runs a KNN search and joins back to the metadata table.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]fragment.RetrievalResult, error) {
	topK, err := vectorstore.NormalizeQuery(vector, topK)
	if err != nil {
		return nil, err
	}
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("query: want %d dimensions, got %d: %w", s.dimensions, len(vector), fragment.ErrDimensionMismatch)
	}

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []fragment.RetrievalResult{}, nil
	}
	topK = min(topK, count)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT
			f.fragment_id,
			f.page,
			f.chunk_id,
			f.image_paths,
			v.distance,
			v.embedding
		FROM %s v
		INNER JOIN %s f ON f.rowid = v.rowid
		WHERE v.embedding MATCH ?
			AND v.k = ?
		ORDER BY v.distance
	`, s.vecTable, s.metaTable), serializeFloat32(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	results := make([]fragment.RetrievalResult, 0, topK)
	for rows.Next() {
		var (
			r        fragment.RetrievalResult
			paths    string
			distance float64
			blob     []byte
		)
		if err := rows.Scan(&r.ID, &r.Metadata.Page, &r.Metadata.ChunkID, &paths, &distance, &blob); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		if r.Embedding, err = deserializeFloat32(blob); err != nil {
			return nil, err
		}
		r.Metadata.ImagePaths = vectorstore.DecodePaths(paths)
		// Cosine distance is 1 - similarity.
		r.Score = float32(1 - distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	s.log.Debug("queried sqlite-vec", "results", len(results))
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.metaTable)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting fragments: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
