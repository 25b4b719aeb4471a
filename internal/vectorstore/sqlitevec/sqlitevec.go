// Package sqlitevec provides a SQLite-backed Store using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/vectorstore"
)

// Store keeps chunk rows in a regular table and their embeddings in a vec0
// virtual table sharing the same rowid. Rowids double as insertion sequence.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	dims   int
	logger zerolog.Logger
}

// Config holds configuration for the SQLite vec store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions int
}

// New opens the database and creates the tables when missing.
func New(c Config, logger zerolog.Logger) (*Store, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("%w: sqlite-vec database path is required", models.ErrConfiguration)
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: sqlite-vec embedding dimensions must be positive", models.ErrConfiguration)
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", models.ErrRetrieval, err)
	}
	// one connection so that ":memory:" databases are shared across queries
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite-vec not available: %v", models.ErrRetrieval, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rag_chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			page INTEGER,
			chunk_index INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating chunks table: %v", models.ErrRetrieval, err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS rag_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating vec0 table: %v", models.ErrRetrieval, err)
	}

	logger.Info().
		Str("db_path", c.DBPath).
		Int("dimensions", c.Dimensions).
		Str("vec_version", vecVersion).
		Msg("sqlite-vec vector store initialized")

	return &Store{db: db, dims: c.Dimensions, logger: logger}, nil
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

func (s *Store) Add(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := vectorstore.CheckDimensions(entries, s.dims); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", models.ErrRetrieval, err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		var page sql.NullInt64
		if e.Chunk.Page != nil {
			page = sql.NullInt64{Int64: int64(*e.Chunk.Page), Valid: true}
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO rag_chunks(doc_id, content, source, page, chunk_index) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.Chunk.Content, e.Chunk.Source, page, e.Chunk.Index,
		)
		if err != nil {
			return fmt.Errorf("%w: inserting chunk %s: %v", models.ErrRetrieval, e.ID, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: getting rowid for chunk %s: %v", models.ErrRetrieval, e.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rag_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, serializeFloat32(e.Embedding),
		); err != nil {
			return fmt.Errorf("%w: inserting embedding for chunk %s: %v", models.ErrRetrieval, e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", models.ErrRetrieval, err)
	}

	s.logger.Debug().Int("count", len(entries)).Msg("added chunks to sqlite-vec")
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		return []vectorstore.Result{}, nil
	}
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("%w: %w: query has %d values, store expects %d",
			models.ErrRetrieval, vectorstore.ErrDimensionMismatch, len(embedding), s.dims)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_chunks`).Scan(&total); err != nil {
		return nil, fmt.Errorf("%w: counting chunks: %v", models.ErrRetrieval, err)
	}

	// vec0 picks arbitrarily among equal distances, so keep widening the
	// neighbour set while the last row still ties with the k-th one. Rank
	// then orders the whole tie by rowid.
	blob := serializeFloat32(embedding)
	n := k + 1
	for {
		results, err := s.nearest(ctx, blob, min(n, total))
		if err != nil {
			return nil, err
		}
		if len(results) <= k || n >= total || results[len(results)-1].Score != results[k-1].Score {
			return vectorstore.Rank(results, k), nil
		}
		n *= 2
	}
}

// nearest returns the n closest rows by cosine distance.
func (s *Store) nearest(ctx context.Context, blob []byte, n int) ([]vectorstore.Result, error) {
	results := []vectorstore.Result{}
	if n <= 0 {
		return results, nil
	}

	// KNN via vec0 MATCH, then JOIN back to the chunk rows.
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.rowid,
			c.doc_id,
			c.content,
			c.source,
			c.page,
			c.chunk_index,
			e.distance
		FROM rag_embeddings e
		INNER JOIN rag_chunks c ON c.rowid = e.rowid
		WHERE e.embedding MATCH ?
			AND e.k = ?
		ORDER BY e.distance, c.rowid
	`, blob, n)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", models.ErrRetrieval, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r        vectorstore.Result
			page     sql.NullInt64
			distance float64
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.Chunk.Content, &r.Chunk.Source, &page, &r.Chunk.Index, &distance); err != nil {
			return nil, fmt.Errorf("%w: scanning query result: %v", models.ErrRetrieval, err)
		}
		if page.Valid {
			r.Chunk.Page = models.PageNumber(int(page.Int64))
		}
		// cosine distance is 1 - similarity
		r.Score = float32(1 - distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating query results: %v", models.ErrRetrieval, err)
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %v", models.ErrRetrieval, err)
	}
	return n, nil
}

func (s *Store) Kind() string { return models.StoreSQLiteVec }

// Close releases resources held by the store.
func (s *Store) Close() error {
	return s.db.Close()
}
