package models

import "time"

// Query is a single question asked against the ingested documents.
type Query struct {
	Text string
	// TopK overrides the configured retrieval count when greater than zero.
	TopK int
}

// Source is a citation attached to an answer.
type Source struct {
	Source         string   `json:"source"`
	Page           *int     `json:"page,omitempty"`
	Score          *float32 `json:"score,omitempty"`
	ContentPreview string   `json:"content_preview,omitempty"`
}

// Answer is the pipeline output for one query.
type Answer struct {
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	UsedModel string    `json:"used_model"`
	LatencyMS float64   `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// FileIngest reports how many chunks one uploaded file produced.
type FileIngest struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

// IngestResult summarises an ingestion request.
type IngestResult struct {
	DocumentsIngested int          `json:"documents_ingested"`
	Detail            string       `json:"detail"`
	Files             []FileIngest `json:"files"`
}

// Status describes which provider implementations are active.
type Status struct {
	Status      string   `json:"status"`
	App         string   `json:"app"`
	Environment string   `json:"environment"`
	Embedding   string   `json:"embedding"`
	VectorStore string   `json:"vector_store"`
	LLM         string   `json:"llm"`
	Documents   int      `json:"documents"`
	Degraded    []string `json:"degraded"`
}
