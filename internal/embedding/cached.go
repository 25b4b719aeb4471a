package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes vectors of an Embedder by input text.
type Cached struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps next with an LRU cache holding up to size vectors.
func NewCached(next Embedder, size int) (*Cached, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// EmbedDocuments sends only the texts missing from the cache to the wrapped
// embedder, in a single batch.
func (c *Cached) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := c.next.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		vectors[missingIdx[j]] = vec
		c.cache.Add(missing[j], vec)
	}
	return vectors, nil
}

func (c *Cached) Dimension() int { return c.next.Dimension() }

func (c *Cached) Kind() string { return c.next.Kind() }

// Len reports how many vectors are cached.
func (c *Cached) Len() int { return c.cache.Len() }
