package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

// Embedder turns text into fixed-length vectors. Every vector produced by one
// Embedder has Dimension() entries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Kind() string
}

const checkText = "dimension check"

// LangChain adapts a langchaingo embedder to Embedder and checks that every
// returned vector has the detected dimension.
type LangChain struct {
	embedder embeddings.Embedder
	kind     string
	dims     int
}

// NewOpenAI builds an embedder backed by the OpenAI embeddings API.
func NewOpenAI(cfg config.EmbeddingConfig, apiKey string) (*LangChain, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai embeddings need an API key", models.ErrConfiguration)
	}
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing openai client: %v", models.ErrEmbedding, err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai embedder: %v", models.ErrEmbedding, err)
	}
	return &LangChain{embedder: embedder, kind: models.EmbeddingOpenAI}, nil
}

// NewOllama builds an embedder backed by a local Ollama server.
func NewOllama(cfg config.EmbeddingConfig) (*LangChain, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing ollama client: %v", models.ErrEmbedding, err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: creating ollama embedder: %v", models.ErrEmbedding, err)
	}
	return &LangChain{embedder: embedder, kind: models.EmbeddingOllama}, nil
}

// NewLangChain wraps any langchaingo embedder. The dimension is unknown until
// Check succeeds.
func NewLangChain(embedder embeddings.Embedder, kind string) *LangChain {
	return &LangChain{embedder: embedder, kind: kind}
}

// Check embeds a short text to confirm the provider is reachable and to learn
// the vector dimension.
func (l *LangChain) Check(ctx context.Context) error {
	vec, err := l.embedder.EmbedQuery(ctx, checkText)
	if err != nil {
		return fmt.Errorf("%w: %s check failed: %v", models.ErrEmbedding, l.kind, err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("%w: %s check returned an empty vector", models.ErrEmbedding, l.kind)
	}
	l.dims = len(vec)
	return nil
}

func (l *LangChain) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrEmbedding, l.kind, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", models.ErrEmbedding, l.kind, len(vectors), len(texts))
	}
	for _, vec := range vectors {
		if err := l.checkDimension(vec); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (l *LangChain) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrEmbedding, l.kind, err)
	}
	if err := l.checkDimension(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (l *LangChain) checkDimension(vec []float32) error {
	if l.dims != 0 && len(vec) != l.dims {
		return fmt.Errorf("%w: %s returned %d dimensions, expected %d", models.ErrEmbedding, l.kind, len(vec), l.dims)
	}
	return nil
}

func (l *LangChain) Dimension() int { return l.dims }

func (l *LangChain) Kind() string { return l.kind }
