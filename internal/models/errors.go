package models

import "errors"

var (
	// ErrConfiguration is returned for invalid or missing settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrIngestion is returned when an uploaded document cannot be ingested.
	ErrIngestion = errors.New("ingestion error")

	// ErrUnsupportedFileType is returned for uploads outside the supported set.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrInvalidInput is returned for malformed requests, such as a blank query.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbedding is returned when the embedding provider fails.
	ErrEmbedding = errors.New("embedding error")

	// ErrRetrieval is returned when the vector store cannot be read or written.
	ErrRetrieval = errors.New("retrieval error")

	// ErrGeneration is returned when the language model call fails.
	ErrGeneration = errors.New("generation error")

	// ErrTimeout is joined with ErrGeneration when the model call times out.
	ErrTimeout = errors.New("timeout")

	// ErrObservability is returned by experiment tracking sinks. It never
	// reaches API callers.
	ErrObservability = errors.New("observability error")
)
