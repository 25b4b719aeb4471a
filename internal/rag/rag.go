// Package rag ties chunking, embedding, retrieval and generation together.
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/embedding"
	"rag-chatbot/internal/helper"
	"rag-chatbot/internal/llmservice"
	"rag-chatbot/internal/metrics"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/parser"
	"rag-chatbot/internal/tracking"
	"rag-chatbot/internal/vectorstore"
)

// Deps are the collaborators of a Pipeline. Tracker and Metrics may be nil.
type Deps struct {
	Embedder  embedding.Embedder
	Store     vectorstore.Store
	Generator llmservice.Generator
	Tracker   *tracking.Tracker
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	// Degraded names the components running on a fallback.
	Degraded []string
}

// Pipeline ingests documents and answers questions about them.
type Pipeline struct {
	cfg *config.Config
	Deps
}

// NewPipeline checks the chunk settings and fills in optional dependencies.
func NewPipeline(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if err := config.ValidateChunking(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap); err != nil {
		return nil, err
	}
	if deps.Embedder == nil || deps.Store == nil || deps.Generator == nil {
		return nil, fmt.Errorf("%w: pipeline needs an embedder, a store and a generator", models.ErrConfiguration)
	}
	if deps.Tracker == nil {
		deps.Tracker = tracking.Disabled()
	}
	return &Pipeline{cfg: cfg, Deps: deps}, nil
}

// Ingest validates every file type before reading any file, then saves,
// parses, chunks and embeds all files and stores their chunks in one batch.
// Nothing is stored when any step fails.
func (p *Pipeline) Ingest(ctx context.Context, docs []models.Document) (result *models.IngestResult, err error) {
	start := time.Now()
	defer func() {
		p.Metrics.Observe(metrics.OperationIngest, outcome(err), time.Since(start))
	}()

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", models.ErrIngestion)
	}
	for _, doc := range docs {
		if err := parser.ValidateFilename(doc.Filename); err != nil {
			return nil, err
		}
	}

	result = &models.IngestResult{Files: make([]models.FileIngest, 0, len(docs))}
	var chunks []models.Chunk
	for _, doc := range docs {
		name := filepath.Base(doc.Filename)
		if err := p.saveUpload(name, doc.Data); err != nil {
			return nil, err
		}

		pages, err := parser.ParseDocument(doc)
		if err != nil {
			return nil, err
		}
		docChunks, err := parser.ChunkPages(pages, name, p.cfg.RAG.ChunkSize, p.cfg.RAG.ChunkOverlap)
		if err != nil {
			return nil, err
		}

		p.Logger.Debug().Str("file", name).Int("pages", len(pages)).Int("chunks", len(docChunks)).Msg("Document chunked")
		chunks = append(chunks, docChunks...)
		result.Files = append(result.Files, models.FileIngest{Filename: name, Chunks: len(docChunks)})
	}

	if err := p.store(ctx, chunks); err != nil {
		return nil, err
	}

	result.DocumentsIngested = len(chunks)
	result.Detail = fmt.Sprintf("Ingested %d chunks from %d files.", len(chunks), len(docs))
	p.Metrics.Ingested(len(docs), len(chunks))
	if n, err := p.Store.Count(ctx); err == nil {
		p.Metrics.SetStored(n)
	}

	p.Logger.Info().Int("files", len(docs)).Int("chunks", len(chunks)).Msg("Documents ingested")
	return result, nil
}

func (p *Pipeline) saveUpload(name string, data []byte) error {
	if p.cfg.UploadDir == "" {
		return nil
	}
	if err := helper.CreateFolder(p.cfg.UploadDir); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIngestion, err)
	}
	if err := os.WriteFile(filepath.Join(p.cfg.UploadDir, name), data, 0o644); err != nil {
		return fmt.Errorf("%w: saving %s: %v", models.ErrIngestion, name, err)
	}
	return nil
}

func (p *Pipeline) store(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return wrap(models.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbedding, len(vectors), len(chunks))
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrIngestion, err)
		}
		entries[i] = vectorstore.Entry{ID: id, Chunk: c, Embedding: vectors[i]}
	}

	if err := p.Store.Add(ctx, entries); err != nil {
		return wrap(models.ErrRetrieval, err)
	}
	return nil
}

// Ask answers q from the stored chunks. When nothing relevant is stored it
// returns models.NoDocumentsAnswer without calling the language model.
func (p *Pipeline) Ask(ctx context.Context, q models.Query) (answer *models.Answer, err error) {
	start := time.Now()
	retrieved := 0
	defer func() {
		o := outcome(err)
		if err == nil && retrieved == 0 {
			o = metrics.OutcomeNoDocs
		}
		p.Metrics.Observe(metrics.OperationAsk, o, time.Since(start))
	}()

	question := strings.TrimSpace(q.Text)
	if question == "" {
		return nil, fmt.Errorf("%w: query must not be empty", models.ErrInvalidInput)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = p.cfg.RAG.TopK
	}

	queryVec, err := p.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, wrap(models.ErrEmbedding, err)
	}

	results, err := p.Store.Query(ctx, queryVec, topK)
	if err != nil {
		return nil, wrap(models.ErrRetrieval, err)
	}
	retrieved = len(results)
	p.Metrics.Retrieved(retrieved)

	var text string
	sources := []models.Source{}
	if len(results) == 0 {
		text = models.NoDocumentsAnswer
	} else {
		genStart := time.Now()
		text, err = p.Generator.Generate(ctx, BuildPrompt(question, results))
		p.Metrics.Observe(metrics.OperationGenerate, outcome(err), time.Since(genStart))
		if err != nil {
			return nil, wrap(models.ErrGeneration, err)
		}
		sources = Citations(results)
	}

	answer = &models.Answer{
		Answer:    text,
		Sources:   sources,
		UsedModel: p.Generator.Model(),
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		CreatedAt: time.Now().UTC(),
	}

	p.Tracker.LogRun(ctx, &tracking.Run{
		Params: map[string]string{
			"top_k": strconv.Itoa(topK),
			"model": answer.UsedModel,
		},
		Metrics: map[string]float64{"latency_ms": answer.LatencyMS},
		Artifact: tracking.Artifact{
			Query:   question,
			Answer:  answer.Answer,
			Sources: answer.Sources,
		},
	})

	p.Logger.Debug().
		Int("top_k", topK).
		Int("retrieved", retrieved).
		Int("sources", len(sources)).
		Float64("latency_ms", answer.LatencyMS).
		Msg("Question answered")
	return answer, nil
}

// BuildPrompt joins the retrieved chunks in retrieval order and fills the
// prompt template.
func BuildPrompt(question string, results []vectorstore.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return fmt.Sprintf(models.PromptTemplate, strings.Join(parts, models.ContextSeparator), question)
}

type citationKey struct {
	source string
	page   int
	paged  bool
}

// Citations maps results to sources, keeping the first result of every
// (source, page) pair.
func Citations(results []vectorstore.Result) []models.Source {
	seen := make(map[citationKey]bool, len(results))
	sources := make([]models.Source, 0, len(results))
	for _, r := range results {
		name := r.Chunk.Source
		if name == "" {
			name = models.UnknownSource
		}
		key := citationKey{source: name}
		if r.Chunk.Page != nil {
			key.page, key.paged = *r.Chunk.Page, true
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		score := r.Score
		sources = append(sources, models.Source{
			Source:         name,
			Page:           r.Chunk.Page,
			Score:          &score,
			ContentPreview: helper.Truncate(r.Chunk.Content, models.PreviewLength),
		})
	}
	return sources
}

// Status reports the active providers and the number of stored chunks.
func (p *Pipeline) Status(ctx context.Context) models.Status {
	status := models.Status{
		Status:      "ok",
		App:         p.cfg.AppName,
		Environment: p.cfg.Environment,
		Embedding:   p.Embedder.Kind(),
		VectorStore: p.Store.Kind(),
		LLM:         p.Generator.Kind(),
		Degraded:    append([]string{}, p.Degraded...),
	}
	n, err := p.Store.Count(ctx)
	if err != nil {
		p.Logger.Warn().Err(err).Msg("Vector store count failed")
		status.Status = "degraded"
		status.Degraded = append(status.Degraded, "vector_store_unreachable")
		return status
	}
	status.Documents = n
	return status
}

// Close releases the store and the tracking sink.
func (p *Pipeline) Close() error {
	return errors.Join(p.Store.Close(), p.Tracker.Close())
}

// wrap tags err with kind unless it already carries it.
func wrap(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeOK
}
