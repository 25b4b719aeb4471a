// Package memory is a Store kept entirely in process memory. Queries scan
// every entry.
package memory

import (
	"context"
	"fmt"
	"sync"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/vectorstore"
)

type Store struct {
	mu      sync.RWMutex
	entries []vectorstore.Entry
}

// New returns a Store preloaded with entries, in order.
func New(entries ...vectorstore.Entry) *Store {
	s := &Store{}
	s.entries = append(s.entries, entries...)
	return s
}

func (s *Store) Add(_ context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) > 0 {
		if err := vectorstore.CheckDimensions(entries, len(s.entries[0].Embedding)); err != nil {
			return err
		}
	} else if err := vectorstore.CheckDimensions(entries, len(entries[0].Embedding)); err != nil {
		return err
	}

	s.entries = append(s.entries, entries...)
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		return []vectorstore.Result{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) > 0 && len(embedding) != len(s.entries[0].Embedding) {
		return nil, fmt.Errorf("%w: %w: query has %d values, store holds %d",
			models.ErrRetrieval, vectorstore.ErrDimensionMismatch, len(embedding), len(s.entries[0].Embedding))
	}

	results := make([]vectorstore.Result, 0, len(s.entries))
	for i, e := range s.entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		results = append(results, vectorstore.Result{
			ID:    e.ID,
			Chunk: e.Chunk,
			Score: vectorstore.CosineSimilarity(embedding, e.Embedding),
			Seq:   int64(i),
		})
	}
	return vectorstore.Rank(results, k), nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) Kind() string { return models.StoreMemory }

func (s *Store) Close() error { return nil }
