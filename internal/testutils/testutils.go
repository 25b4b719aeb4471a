// Package testutils provides doubles for the pipeline collaborators.
package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/tracking"
)

// SpyGenerator records prompts and answers with Answer, or fails with Err.
type SpyGenerator struct {
	mu      sync.Mutex
	Answer  string
	Err     error
	prompts []string
}

func NewSpyGenerator(answer string) *SpyGenerator {
	return &SpyGenerator{Answer: answer}
}

func (s *SpyGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Answer, nil
}

func (s *SpyGenerator) Model() string { return "spy-model" }

func (s *SpyGenerator) Kind() string { return "spy" }

// Calls returns how many times Generate ran.
func (s *SpyGenerator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of every prompt received.
func (s *SpyGenerator) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// FailingEmbedder fails every call with models.ErrEmbedding.
type FailingEmbedder struct {
	Dims int
}

func (f FailingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: provider offline", models.ErrEmbedding)
}

func (f FailingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: provider offline", models.ErrEmbedding)
}

func (f FailingEmbedder) Dimension() int { return f.Dims }

func (f FailingEmbedder) Kind() string { return "failing" }

// FailingSink rejects every run.
type FailingSink struct {
	mu     sync.Mutex
	writes int
}

func (f *FailingSink) Write(context.Context, *tracking.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return errors.New("tracking backend unreachable")
}

func (f *FailingSink) Close() error { return nil }

func (f *FailingSink) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// RecordingSink keeps every run in memory.
type RecordingSink struct {
	mu   sync.Mutex
	runs []tracking.Run
}

func (r *RecordingSink) Write(_ context.Context, run *tracking.Run) error {
	if run == nil {
		return tracking.ErrNilRun
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *RecordingSink) Close() error { return nil }

func (r *RecordingSink) Runs() []tracking.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tracking.Run(nil), r.runs...)
}

// StalledSink blocks every write until its context ends.
type StalledSink struct{}

func (StalledSink) Write(ctx context.Context, _ *tracking.Run) error {
	<-ctx.Done()
	return ctx.Err()
}

func (StalledSink) Close() error { return nil }
