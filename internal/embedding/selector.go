package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

// checker is implemented by embedders that must be reached before use.
type checker interface {
	Check(ctx context.Context) error
}

// NewEmbedder picks the embedder once at startup. When the configured
// provider cannot be initialized or reached it logs a single warning and
// returns the fake embedder with cfg.Dimensions; fellBack reports that case.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, apiKey string, logger zerolog.Logger) (emb Embedder, fellBack bool) {
	primary, err := newProvider(ctx, cfg, apiKey)
	if err != nil {
		logger.Warn().Err(err).
			Str("provider", cfg.Provider).
			Int("dimensions", cfg.Dimensions).
			Msg("Embedding provider unavailable, using fake embeddings")
		primary = NewFake(cfg.Dimensions)
		fellBack = true
	}

	logger.Info().
		Str("embedding", primary.Kind()).
		Int("dimensions", primary.Dimension()).
		Msg("Embedding provider selected")

	if cfg.CacheSize <= 0 {
		return primary, fellBack
	}
	cached, err := NewCached(primary, cfg.CacheSize)
	if err != nil {
		logger.Warn().Err(err).Msg("Embedding cache disabled")
		return primary, fellBack
	}
	return cached, fellBack
}

func newProvider(ctx context.Context, cfg config.EmbeddingConfig, apiKey string) (Embedder, error) {
	var (
		emb *LangChain
		err error
	)
	switch cfg.Provider {
	case models.EmbeddingFake:
		return NewFake(cfg.Dimensions), nil
	case models.EmbeddingOpenAI:
		emb, err = NewOpenAI(cfg, apiKey)
	case models.EmbeddingOllama:
		emb, err = NewOllama(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if err := check(ctx, emb, cfg); err != nil {
		return nil, err
	}
	return emb, nil
}

func check(ctx context.Context, c checker, cfg config.EmbeddingConfig) error {
	if cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CheckTimeout)
		defer cancel()
	}
	return c.Check(ctx)
}
