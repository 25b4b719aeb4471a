package tracking_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/tracking"
	"rag-chatbot/internal/tracking/jsonl"
	"rag-chatbot/internal/tracking/kafka"
	trackingutils "rag-chatbot/internal/tracking/utils"
)

type failingSink struct {
	writes int
	panic  bool
}

func (f *failingSink) Write(context.Context, *tracking.Run) error {
	f.writes++
	if f.panic {
		panic("sink bug")
	}
	return errors.New("tracking server unreachable")
}

func (f *failingSink) Close() error { return nil }

// stalledSink blocks until the write context ends, like an unreachable broker.
type stalledSink struct{}

func (stalledSink) Write(ctx context.Context, _ *tracking.Run) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledSink) Close() error { return nil }

func sampleRun() *tracking.Run {
	return &tracking.Run{
		Params:  map[string]string{"top_k": "4", "model": "mock"},
		Metrics: map[string]float64{"latency_ms": 12.5},
		Artifact: tracking.Artifact{
			Query:   "What is RAG?",
			Answer:  models.MockAnswer,
			Sources: []models.Source{{Source: "rag_intro.txt"}},
		},
	}
}

var _ = Describe("Tracker", func() {
	ctx := context.Background()

	It("stamps and writes runs to the sink", func() {
		dir := GinkgoT().TempDir()
		sink, err := jsonl.NewSink(dir)
		Expect(err).NotTo(HaveOccurred())
		tracker := tracking.New(sink, "rag_query", zerolog.Nop())

		tracker.LogRun(ctx, sampleRun())
		tracker.LogRun(ctx, sampleRun())
		Expect(tracker.Failures()).To(BeZero())

		f, err := os.Open(filepath.Join(dir, "rag_query.jsonl"))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		var runs []tracking.Run
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var run tracking.Run
			Expect(json.Unmarshal(scanner.Bytes(), &run)).To(Succeed())
			runs = append(runs, run)
		}
		Expect(runs).To(HaveLen(2))
		Expect(runs[0].SchemaVersion).To(Equal(tracking.SchemaVersionV1))
		Expect(runs[0].Experiment).To(Equal("rag_query"))
		Expect(runs[0].RunID).NotTo(BeEmpty())
		Expect(runs[0].RunID).NotTo(Equal(runs[1].RunID))
		Expect(runs[0].LoggedAt).NotTo(BeZero())
		Expect(runs[0].Params).To(HaveKeyWithValue("top_k", "4"))
		Expect(runs[0].Metrics).To(HaveKeyWithValue("latency_ms", 12.5))
		Expect(runs[0].Artifact.Sources[0].Source).To(Equal("rag_intro.txt"))
	})

	It("swallows sink failures and warns only once", func() {
		logs := &bytes.Buffer{}
		sink := &failingSink{}
		tracker := tracking.New(sink, "rag_query", zerolog.New(logs).Level(zerolog.DebugLevel))
		var seen []error
		tracker.OnFailure = func(err error) { seen = append(seen, err) }

		Expect(func() {
			tracker.LogRun(ctx, sampleRun())
			tracker.LogRun(ctx, sampleRun())
			tracker.LogRun(ctx, sampleRun())
		}).NotTo(Panic())

		Expect(sink.writes).To(Equal(3))
		Expect(tracker.Failures()).To(BeEquivalentTo(3))
		Expect(bytes.Count(logs.Bytes(), []byte(`"level":"warn"`))).To(Equal(1))
		Expect(bytes.Count(logs.Bytes(), []byte(`"level":"debug"`))).To(Equal(2))
		Expect(seen).To(HaveLen(3))
		Expect(seen[0]).To(MatchError(models.ErrObservability))
	})

	It("contains panicking sinks", func() {
		tracker := tracking.New(&failingSink{panic: true}, "rag_query", zerolog.Nop())
		Expect(func() { tracker.LogRun(ctx, sampleRun()) }).NotTo(Panic())
		Expect(tracker.Failures()).To(BeEquivalentTo(1))
	})

	It("drops runs when disabled", func() {
		tracker := tracking.Disabled()
		Expect(tracker.Enabled()).To(BeFalse())
		tracker.LogRun(ctx, sampleRun())
		Expect(tracker.Failures()).To(BeZero())
		Expect(tracker.Close()).To(Succeed())
	})

	It("treats a tracker on the nop sink as disabled", func() {
		tracker := tracking.New(tracking.NopSink{}, "rag_query", zerolog.Nop())
		Expect(tracker.Enabled()).To(BeFalse())
		tracker.LogRun(ctx, sampleRun())
		Expect(tracker.Failures()).To(BeZero())
		Expect(tracking.NopSink{}.Write(ctx, sampleRun())).To(Succeed())
		Expect(tracking.NopSink{}.Write(ctx, nil)).To(MatchError(tracking.ErrNilRun))
	})

	It("bounds each write with the write timeout", func() {
		tracker := tracking.New(stalledSink{}, "rag_query", zerolog.Nop())
		tracker.WriteTimeout = 50 * time.Millisecond

		start := time.Now()
		tracker.LogRun(ctx, sampleRun())
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		Expect(tracker.Failures()).To(BeEquivalentTo(1))
	})

	It("defaults the write timeout", func() {
		Expect(tracking.New(stalledSink{}, "rag_query", zerolog.Nop()).WriteTimeout).To(Equal(tracking.DefaultWriteTimeout))
	})
})

var _ = Describe("NewSink", func() {
	It("parses file URIs", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "mlruns")
		sink, err := trackingutils.NewSink("file://" + dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(sink).To(BeAssignableToTypeOf(&jsonl.Sink{}))
		Expect(dir).To(BeADirectory())
	})

	It("treats a bare path as a directory", func() {
		sink, err := trackingutils.NewSink(filepath.Join(GinkgoT().TempDir(), "runs"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sink).To(BeAssignableToTypeOf(&jsonl.Sink{}))
	})

	It("parses kafka URIs with several brokers", func() {
		sink, err := trackingutils.NewSink("kafka://broker-1:9092,broker-2:9092/rag-runs")
		Expect(err).NotTo(HaveOccurred())
		Expect(sink).To(BeAssignableToTypeOf(&kafka.Sink{}))
		Expect(sink.(*kafka.Sink).Topic()).To(Equal("rag-runs"))
		Expect(sink.Close()).To(Succeed())
	})

	It("rejects kafka URIs without a topic", func() {
		_, err := trackingutils.NewSink("kafka://broker:9092")
		Expect(err).To(MatchError(models.ErrObservability))
	})

	It("rejects unknown schemes", func() {
		_, err := trackingutils.NewSink("mlflow://localhost:5000")
		Expect(err).To(MatchError(models.ErrObservability))
	})
})

var _ = Describe("NewTracker", func() {
	It("is disabled by default", func() {
		Expect(trackingutils.NewTracker(config.Default().Tracking, zerolog.Nop()).Enabled()).To(BeFalse())
	})

	It("is enabled with a usable sink", func() {
		cfg := config.Default().Tracking
		cfg.Enabled = true
		cfg.URI = "file://" + GinkgoT().TempDir()
		Expect(trackingutils.NewTracker(cfg, zerolog.Nop()).Enabled()).To(BeTrue())
	})

	It("disables tracking when the sink cannot be built", func() {
		logs := &bytes.Buffer{}
		cfg := config.Default().Tracking
		cfg.Enabled = true
		cfg.URI = "ftp://nowhere"
		Expect(trackingutils.NewTracker(cfg, zerolog.New(logs)).Enabled()).To(BeFalse())
		Expect(logs.String()).To(ContainSubstring("Experiment tracking disabled"))
	})
})

var _ = Describe("kafka sink", func() {
	It("keys messages by experiment", func() {
		run := sampleRun()
		run.RunID = "run-1"
		run.Experiment = "rag_query"
		run.LoggedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		msg, err := kafka.NewMessage(run)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(msg.Key)).To(Equal("rag_query"))
		Expect(msg.Time).To(Equal(run.LoggedAt))

		var decoded tracking.Run
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.RunID).To(Equal("run-1"))
		Expect(decoded.Artifact.Query).To(Equal("What is RAG?"))
	})

	It("rejects a nil run", func() {
		_, err := kafka.NewMessage(nil)
		Expect(err).To(MatchError(tracking.ErrNilRun))
	})

	It("reports unreachable brokers as observability errors", func() {
		sink, err := kafka.NewSink(kafka.Config{Brokers: []string{"127.0.0.1:1"}, Topic: "rag-runs", WriteTimeout: time.Second})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = sink.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = sink.Write(ctx, &tracking.Run{RunID: "run-1"})
		Expect(err).To(MatchError(models.ErrObservability))
	})
})
