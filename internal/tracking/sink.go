package tracking

import (
	"context"
	"errors"
)

// ErrNilRun indicates a nil run was handed to a sink.
var ErrNilRun = errors.New("nil run")

// Sink writes run records to a tracking backend.
type Sink interface {
	Write(ctx context.Context, run *Run) error
	Close() error
}

// NopSink accepts every run and stores nothing. A tracker built on it is
// disabled.
type NopSink struct{}

func (NopSink) Write(_ context.Context, run *Run) error {
	if run == nil {
		return ErrNilRun
	}
	return nil
}

func (NopSink) Close() error { return nil }
