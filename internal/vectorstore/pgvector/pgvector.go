// Package pgvector stores chunk embeddings in PostgreSQL with the pgvector
// extension, through bun.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/vectorstore"
)

// Chunk is one row of the chunks table. Seq is the bigserial primary key and
// records insertion order.
type Chunk struct {
	bun.BaseModel `bun:"table:rag_chunks,alias:c"`

	Seq        int64   `bun:"seq,pk,autoincrement"`
	ID         string  `bun:"id,notnull,unique"`
	Content    string  `bun:"content,notnull"`
	Source     string  `bun:"source,notnull"`
	Page       *int    `bun:"page"`
	ChunkIndex int     `bun:"chunk_index,notnull"`
	Embedding  Vector  `bun:"embedding,notnull"`
	Score      float64 `bun:"score,scanonly"`
}

// Config holds the connection settings.
type Config struct {
	DSN        string
	Table      string
	Dimensions int
	// Debug logs every query through bundebug.
	Debug bool
}

type Store struct {
	mu     sync.RWMutex
	db     *bun.DB
	table  string
	dims   int
	logger zerolog.Logger
}

// NewDB wraps an *sql.DB with the postgres dialect.
func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(debug),
		bundebug.WithVerbose(debug),
	))
	return db
}

// ConnectDB opens a connection pool for dsn using bun's postgres driver.
func ConnectDB(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

// New connects, checks the server is reachable and creates the extension,
// table and index when missing.
func New(ctx context.Context, c Config, logger zerolog.Logger) (*Store, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("%w: pgvector dsn is required", models.ErrConfiguration)
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: pgvector embedding dimensions must be positive", models.ErrConfiguration)
	}
	if c.Table == "" {
		c.Table = "rag_chunks"
	}

	db := NewDB(ConnectDB(c.DSN), c.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connecting to postgres: %v", models.ErrRetrieval, err)
	}

	s := &Store{db: db, table: c.Table, dims: c.Dimensions, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().
		Str("table", c.Table).
		Int("dimensions", c.Dimensions).
		Msg("pgvector store initialized")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: creating vector extension: %v", models.ErrRetrieval, err)
	}

	// bun cannot express vector(N) with a runtime N, so the DDL is raw
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ? (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			page INTEGER,
			chunk_index INTEGER NOT NULL,
			embedding vector(?) NOT NULL
		)`, bun.Ident(s.table), bun.Safe(fmt.Sprint(s.dims)))
	if err != nil {
		return fmt.Errorf("%w: creating table %s: %v", models.ErrRetrieval, s.table, err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := vectorstore.CheckDimensions(entries, s.dims); err != nil {
		return err
	}

	rows := make([]Chunk, len(entries))
	for i, e := range entries {
		rows[i] = Chunk{
			ID:         e.ID,
			Content:    e.Chunk.Content,
			Source:     e.Chunk.Source,
			Page:       e.Chunk.Page,
			ChunkIndex: e.Chunk.Index,
			Embedding:  Vector(e.Embedding),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.NewInsert().
		Model(&rows).
		ModelTableExpr("?", bun.Ident(s.table)).
		ExcludeColumn("seq").
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: inserting chunks: %v", models.ErrRetrieval, err)
	}

	s.logger.Debug().Int("count", len(entries)).Msg("added chunks to pgvector")
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

	query := Vector(embedding).String()
	var rows []Chunk
	err := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		Column("seq", "id", "content", "source", "page", "chunk_index").
		ColumnExpr("1 - (c.embedding <=> ?::vector) AS score", query).
		OrderExpr("c.embedding <=> ?::vector", query).
		OrderExpr("c.seq ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", models.ErrRetrieval, err)
	}

	results := make([]vectorstore.Result, len(rows))
	for i, r := range rows {
		results[i] = vectorstore.Result{
			ID: r.ID,
			Chunk: models.Chunk{
				Content: r.Content,
				Source:  r.Source,
				Page:    r.Page,
				Index:   r.ChunkIndex,
			},
			Score: float32(r.Score),
			Seq:   r.Seq,
		}
	}
	return vectorstore.Rank(results, k), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.db.NewSelect().TableExpr("?", bun.Ident(s.table)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %v", models.ErrRetrieval, err)
	}
	return n, nil
}

func (s *Store) Kind() string { return models.StorePGVector }

// DropTable removes the chunks table.
func (s *Store) DropTable(ctx context.Context) error {
	_, err := s.db.NewDropTable().TableExpr("?", bun.Ident(s.table)).IfExists().Exec(ctx)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
