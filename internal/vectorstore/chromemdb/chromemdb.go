// Package chromemdb stores chunk embeddings in a persistent chromem-go
// collection.
package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/vectorstore"
)

// metadata keys stored with every chromem document
const (
	metaSource = "source"
	metaPage   = "page"
	metaIndex  = "chunk_index"
	metaSeq    = "seq"
)

// Config selects where and how the collection is stored.
type Config struct {
	// Dir is the persistence directory. Empty keeps the database in memory.
	Dir        string
	Collection string
	Compress   bool
	// Dimensions, when set, is enforced on added entries and queries.
	Dimensions int
}

// Store wraps one chromem collection.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	seq        int64
	dims       int
	logger     zerolog.Logger
}

// errNoEmbeddingFunc keeps chromem from calling out to a remote embedding API
// when a document arrives without a vector.
func errNoEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store requires precomputed embeddings")
}

// New opens (or creates) the persistent database and its collection.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: chromem collection name is required", models.ErrConfiguration)
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Dir, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open chromem database at %s: %v", models.ErrRetrieval, cfg.Dir, err)
		}
	}

	c, err := db.GetOrCreateCollection(cfg.Collection, nil, errNoEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrRetrieval, err)
	}

	s := &Store{db: db, collection: c, dims: cfg.Dimensions, logger: logger}
	s.seq = int64(c.Count())

	logger.Info().
		Str("dir", cfg.Dir).
		Str("collection", cfg.Collection).
		Int("documents", c.Count()).
		Msg("chromem vector store opened")
	return s, nil
}

func (s *Store) Add(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if s.dims > 0 {
		if err := vectorstore.CheckDimensions(entries, s.dims); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Chunk.Content,
			Metadata:  chunkMetadata(e.Chunk, s.seq+int64(i)),
			Embedding: e.Embedding,
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrRetrieval, err)
	}
	s.seq += int64(len(entries))

	s.logger.Debug().Int("count", len(entries)).Msg("added documents to chromem")
	return nil
}

// Query asks chromem for every document so that ties at the k boundary can be
// resolved by insertion order. chromem scans the whole collection regardless.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Result, error) {
	if s.dims > 0 && len(embedding) != s.dims {
		return nil, fmt.Errorf("%w: %w: query has %d values, store expects %d",
			models.ErrRetrieval, vectorstore.ErrDimensionMismatch, len(embedding), s.dims)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return []vectorstore.Result{}, nil
	}

	found, err := s.collection.QueryEmbedding(ctx, embedding, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrRetrieval, err)
	}

	results := make([]vectorstore.Result, 0, len(found))
	for _, r := range found {
		chunk, seq := parseMetadata(r.Content, r.Metadata)
		results = append(results, vectorstore.Result{
			ID:    r.ID,
			Chunk: chunk,
			Score: r.Similarity,
			Seq:   seq,
		})
	}
	return vectorstore.Rank(results, k), nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

func (s *Store) Kind() string { return models.StoreChromem }

// Close is a no-op: the persistent database writes every document on Add.
func (s *Store) Close() error { return nil }

func chunkMetadata(c models.Chunk, seq int64) map[string]string {
	meta := map[string]string{
		metaSource: c.Source,
		metaIndex:  strconv.Itoa(c.Index),
		metaSeq:    strconv.FormatInt(seq, 10),
	}
	if c.Page != nil {
		meta[metaPage] = strconv.Itoa(*c.Page)
	}
	return meta
}

func parseMetadata(content string, meta map[string]string) (models.Chunk, int64) {
	c := models.Chunk{Content: content, Source: meta[metaSource]}
	if p, err := strconv.Atoi(meta[metaPage]); err == nil {
		c.Page = models.PageNumber(p)
	}
	if idx, err := strconv.Atoi(meta[metaIndex]); err == nil {
		c.Index = idx
	}
	seq, _ := strconv.ParseInt(meta[metaSeq], 10, 64)
	return c, seq
}
