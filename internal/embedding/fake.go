package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"rag-chatbot/internal/models"
)

// wholeTextWeight scales the component derived from the full text, so that
// texts sharing the same words still get distinct vectors.
const wholeTextWeight = 0.05

// Fake derives vectors from hashes of the input. Words are hashed into signed
// buckets, so texts sharing vocabulary land close together, and the whole text
// is hashed on top so that distinct inputs never collide in practice.
type Fake struct {
	dims int
}

// NewFake returns a deterministic embedder producing dims-length unit vectors.
func NewFake(dims int) *Fake {
	return &Fake{dims: dims}
}

func (f *Fake) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = f.vector(text)
	}
	return vectors, nil
}

func (f *Fake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.vector(text), nil
}

func (f *Fake) Dimension() int { return f.dims }

func (f *Fake) Kind() string { return models.EmbeddingFake }

func (f *Fake) vector(text string) []float32 {
	acc := make([]float64, f.dims)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range words {
		sum := sha256.Sum256([]byte(word))
		bucket := binary.BigEndian.Uint64(sum[:8]) % uint64(f.dims)
		if sum[8]&1 == 0 {
			acc[bucket]++
		} else {
			acc[bucket]--
		}
	}

	weight := wholeTextWeight
	if len(words) == 0 {
		weight = 1
	}
	f.addTextNoise(acc, text, weight)

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, f.dims)
	for i, v := range acc {
		if norm > 0 {
			out[i] = float32(v / norm)
		}
	}
	return out
}

// addTextNoise adds a pseudo-random vector in [-weight, weight) seeded by the
// full text.
func (f *Fake) addTextNoise(acc []float64, text string, weight float64) {
	var counter [4]byte
	var block [sha256.Size]byte
	for i := range acc {
		if i%8 == 0 {
			binary.BigEndian.PutUint32(counter[:], uint32(i/8))
			block = sha256.Sum256(append([]byte(text), counter[:]...))
		}
		off := (i % 8) * 4
		u := binary.BigEndian.Uint32(block[off : off+4])
		acc[i] += weight * (float64(u)/float64(math.MaxUint32)*2 - 1)
	}
}
