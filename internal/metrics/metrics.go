// Package metrics provides Prometheus metrics for the chatbot service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeOK         = "ok"
	OutcomeNoDocs     = "no_documents"
	OutcomeError      = "error"
	OperationAsk      = "ask"
	OperationIngest   = "ingest"
	OperationGenerate = "generate"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	Requests         *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	ChunksIngested   prometheus.Counter
	FilesIngested    prometheus.Counter
	RetrievedChunks  prometheus.Histogram
	StoredChunks     prometheus.Gauge
	TrackingFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_requests_total",
			Help: "Total number of pipeline operations by outcome",
		}, []string{"operation", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rag_operation_duration_seconds",
			Help:    "Duration of pipeline operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"operation"}),
		ChunksIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "rag_chunks_ingested_total",
			Help: "Total number of chunks written to the vector store",
		}),
		FilesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "rag_files_ingested_total",
			Help: "Total number of uploaded files ingested",
		}),
		RetrievedChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_retrieved_chunks",
			Help:    "Number of chunks retrieved per question",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		StoredChunks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rag_stored_chunks",
			Help: "Number of chunks held by the vector store",
		}),
		TrackingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rag_tracking_failures_total",
			Help: "Total number of runs the experiment tracker could not record",
		}),
	}
}

func (m *Metrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(operation, outcome).Inc()
	m.Duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) Ingested(files, chunks int) {
	if m == nil {
		return
	}
	m.FilesIngested.Add(float64(files))
	m.ChunksIngested.Add(float64(chunks))
}

func (m *Metrics) Retrieved(n int) {
	if m == nil {
		return
	}
	m.RetrievedChunks.Observe(float64(n))
}

func (m *Metrics) SetStored(n int) {
	if m == nil {
		return
	}
	m.StoredChunks.Set(float64(n))
}

func (m *Metrics) TrackingFailed(error) {
	if m == nil {
		return
	}
	m.TrackingFailures.Inc()
}
