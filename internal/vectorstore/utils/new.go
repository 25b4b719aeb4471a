package vectorutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/vectorstore"
	"rag-chatbot/internal/vectorstore/chromemdb"
	"rag-chatbot/internal/vectorstore/memory"
	"rag-chatbot/internal/vectorstore/pgvector"
	"rag-chatbot/internal/vectorstore/sqlitevec"
)

const sqliteFile = "rag.sqlite"

type NewStoreOpts struct {
	Config     config.VectorStoreConfig
	Dimensions int
	Debug      bool
	Logger     zerolog.Logger
}

// NewVectorStore opens the configured store.
func NewVectorStore(ctx context.Context, o *NewStoreOpts) (vectorstore.Store, error) {
	switch o.Config.Provider {
	case models.StoreChromem:
		return chromemdb.New(chromemdb.Config{
			Dir:        o.Config.Dir,
			Collection: o.Config.Collection,
			Compress:   o.Config.Compress,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case models.StoreSQLiteVec:
		path := ":memory:"
		if o.Config.Dir != "" {
			if err := os.MkdirAll(o.Config.Dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: creating %s: %v", models.ErrRetrieval, o.Config.Dir, err)
			}
			path = filepath.Join(o.Config.Dir, sqliteFile)
		}
		return sqlitevec.New(sqlitevec.Config{
			DBPath:     path,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case models.StorePGVector:
		return pgvector.New(ctx, pgvector.Config{
			DSN:        o.Config.DSN,
			Table:      o.Config.Collection,
			Dimensions: o.Dimensions,
			Debug:      o.Debug,
		}, o.Logger)
	case models.StoreMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported vector store provider: %s", models.ErrConfiguration, o.Config.Provider)
	}
}

// NewStoreWithFallback opens the configured store once. On any failure it logs
// the cause and returns an in-memory store instead; fellBack reports that case.
func NewStoreWithFallback(ctx context.Context, o *NewStoreOpts) (store vectorstore.Store, fellBack bool) {
	store, err := NewVectorStore(ctx, o)
	if err == nil {
		return store, false
	}

	o.Logger.Warn().Err(err).
		Str("provider", o.Config.Provider).
		Msg("Vector store unavailable, using in-memory store")
	return memory.New(), o.Config.Provider != models.StoreMemory
}
