// Package tracking records answered queries to an experiment tracking sink.
// Sink failures never reach the caller.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rag-chatbot/internal/helper"
	"rag-chatbot/internal/models"
)

// DefaultWriteTimeout bounds a single sink write so that a slow backend
// cannot hold up the query that produced the run.
const DefaultWriteTimeout = 2 * time.Second

// Tracker stamps runs and hands them to a Sink. The first failure is logged
// as a warning, later ones at debug level.
type Tracker struct {
	sink       Sink
	experiment string
	logger     zerolog.Logger

	// WriteTimeout bounds each sink write. Zero means no bound.
	WriteTimeout time.Duration

	warnOnce sync.Once
	failures atomic.Int64
	// OnFailure, when set, is called for every swallowed sink error.
	OnFailure func(error)
}

// New returns a tracker writing to sink under the experiment name.
func New(sink Sink, experiment string, logger zerolog.Logger) *Tracker {
	return &Tracker{sink: sink, experiment: experiment, logger: logger, WriteTimeout: DefaultWriteTimeout}
}

// Disabled returns a tracker on NopSink.
func Disabled() *Tracker {
	return &Tracker{sink: NopSink{}, logger: zerolog.Nop()}
}

// Enabled reports whether runs are recorded.
func (t *Tracker) Enabled() bool {
	if t == nil || t.sink == nil {
		return false
	}
	_, nop := t.sink.(NopSink)
	return !nop
}

// LogRun records run. It never fails: sink errors are wrapped as
// models.ErrObservability, logged and counted.
func (t *Tracker) LogRun(ctx context.Context, run *Run) {
	if !t.Enabled() || run == nil {
		return
	}

	if run.SchemaVersion == 0 {
		run.SchemaVersion = SchemaVersionV1
	}
	if run.Experiment == "" {
		run.Experiment = t.experiment
	}
	if run.LoggedAt.IsZero() {
		run.LoggedAt = time.Now().UTC()
	}
	if run.RunID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			t.fail(err)
			return
		}
		run.RunID = id
	}

	if err := t.write(ctx, run); err != nil {
		t.fail(err)
	}
}

func (t *Tracker) write(ctx context.Context, run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	if t.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.WriteTimeout)
		defer cancel()
	}
	return t.sink.Write(ctx, run)
}

func (t *Tracker) fail(err error) {
	if !errors.Is(err, models.ErrObservability) {
		err = fmt.Errorf("%w: %w", models.ErrObservability, err)
	}
	t.failures.Add(1)
	if t.OnFailure != nil {
		t.OnFailure(err)
	}

	warned := false
	t.warnOnce.Do(func() {
		warned = true
		t.logger.Warn().Err(err).Str("experiment", t.experiment).Msg("Experiment tracking failed, further failures logged at debug level")
	})
	if !warned {
		t.logger.Debug().Err(err).Msg("Experiment tracking failed")
	}
}

// Failures reports how many runs could not be recorded.
func (t *Tracker) Failures() int64 {
	if t == nil {
		return 0
	}
	return t.failures.Load()
}

// Close closes the sink.
func (t *Tracker) Close() error {
	if t == nil || t.sink == nil {
		return nil
	}
	return t.sink.Close()
}
