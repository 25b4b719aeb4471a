package rag

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/embedding"
	"rag-chatbot/internal/llmservice"
	"rag-chatbot/internal/metrics"
	trackingutils "rag-chatbot/internal/tracking/utils"
	vectorutils "rag-chatbot/internal/vectorstore/utils"
)

// Setup selects every provider once from cfg and builds the pipeline.
// Fallbacks are logged as warnings and listed in Status. reg may be nil to
// skip metrics.
func Setup(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*Pipeline, error) {
	var degraded []string

	emb, fellBack := embedding.NewEmbedder(ctx, cfg.Embedding, cfg.OpenAIAPIKey, logger)
	if fellBack {
		degraded = append(degraded, "embedding")
	}

	store, fellBack := vectorutils.NewStoreWithFallback(ctx, &vectorutils.NewStoreOpts{
		Config:     cfg.VectorStore,
		Dimensions: emb.Dimension(),
		Debug:      cfg.Debug,
		Logger:     logger,
	})
	if fellBack {
		degraded = append(degraded, "vector_store")
	}

	gen, err := llmservice.NewGenerator(cfg.LLM, cfg.OpenAIAPIKey, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	tracker := trackingutils.NewTracker(cfg.Tracking, logger)
	tracker.OnFailure = m.TrackingFailed

	p, err := NewPipeline(cfg, Deps{
		Embedder:  emb,
		Store:     store,
		Generator: gen,
		Tracker:   tracker,
		Metrics:   m,
		Logger:    logger,
		Degraded:  degraded,
	})
	if err != nil {
		store.Close()
		tracker.Close()
		return nil, err
	}

	if n, err := store.Count(ctx); err == nil {
		m.SetStored(n)
	}

	logger.Info().
		Str("embedding", emb.Kind()).
		Str("vector_store", store.Kind()).
		Str("llm", gen.Kind()).
		Strs("degraded", degraded).
		Msg("RAG pipeline ready")
	return p, nil
}
