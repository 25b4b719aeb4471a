// Package vectorstore defines the storage contract for chunk embeddings.
package vectorstore

import (
	"context"
	"math"
	"sort"

	"rag-chatbot/internal/models"
)

// Entry is a chunk with its embedding, as handed to a Store.
type Entry struct {
	ID        string
	Chunk     models.Chunk
	Embedding []float32
}

// Result is a stored chunk matched by a query.
type Result struct {
	ID    string
	Chunk models.Chunk
	// Score is the cosine similarity to the query, higher is closer.
	Score float32
	// Seq is the insertion sequence number assigned by the store.
	Seq int64
}

// Store persists entries and answers nearest-neighbour queries.
//
// Implementations serialize Add against Query. Query returns at most k results
// ordered by descending score, with ties broken by insertion order, and an
// empty slice when nothing is stored.
type Store interface {
	Add(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, embedding []float32, k int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Kind() string
	Close() error
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Rank sorts results by descending score then ascending Seq, and keeps the
// first k.
func Rank(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Seq < results[j].Seq
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
