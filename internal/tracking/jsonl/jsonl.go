// Package jsonl appends run records as JSON lines to a file per experiment.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/tracking"
)

type Sink struct {
	mu  sync.Mutex
	dir string
}

// NewSink creates dir when missing.
func NewSink(dir string) (*Sink, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: tracking directory is required", models.ErrObservability)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", models.ErrObservability, dir, err)
	}
	return &Sink{dir: dir}, nil
}

// Path returns the file runs of experiment are appended to.
func (s *Sink) Path(experiment string) string {
	return filepath.Join(s.dir, experiment+".jsonl")
}

func (s *Sink) Write(ctx context.Context, run *tracking.Run) error {
	if run == nil {
		return tracking.ErrNilRun
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrObservability, err)
	}

	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("%w: encoding run: %v", models.ErrObservability, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(run.Experiment), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening run log: %v", models.ErrObservability, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("%w: writing run log: %v", models.ErrObservability, err)
	}
	return nil
}

func (s *Sink) Close() error { return nil }
