package tracking

import (
	"time"

	"rag-chatbot/internal/models"
)

// SchemaVersionV1 is the first version of the run record schema.
const SchemaVersionV1 = 1

// Run is one answered query as recorded by an experiment tracking sink.
type Run struct {
	SchemaVersion int                `json:"schema_version"`
	RunID         string             `json:"run_id"`
	Experiment    string             `json:"experiment"`
	LoggedAt      time.Time          `json:"logged_at"`
	Params        map[string]string  `json:"params"`
	Metrics       map[string]float64 `json:"metrics"`
	Artifact      Artifact           `json:"artifact"`
}

// Artifact holds the query and what was returned for it.
type Artifact struct {
	Query   string          `json:"query"`
	Answer  string          `json:"answer"`
	Sources []models.Source `json:"sources"`
}
