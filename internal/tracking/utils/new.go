package trackingutils

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
	"rag-chatbot/internal/tracking"
	"rag-chatbot/internal/tracking/jsonl"
	"rag-chatbot/internal/tracking/kafka"
)

// NewSink parses a tracking URI. Supported forms are file://<dir>, a bare
// directory, and kafka://<host:port>[,<host:port>...]/<topic>.
func NewSink(uri string) (tracking.Sink, error) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		scheme, rest = "file", uri
	}

	switch scheme {
	case "file":
		return jsonl.NewSink(rest)
	case "kafka":
		hosts, topic, _ := strings.Cut(rest, "/")
		var brokers []string
		for _, h := range strings.Split(hosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				brokers = append(brokers, h)
			}
		}
		return kafka.NewSink(kafka.Config{Brokers: brokers, Topic: strings.Trim(topic, "/")})
	default:
		return nil, fmt.Errorf("%w: unsupported tracking uri scheme %q", models.ErrObservability, scheme)
	}
}

// NewTracker returns a disabled tracker unless cfg enables tracking. A sink
// that cannot be created disables tracking with a warning.
func NewTracker(cfg config.TrackingConfig, logger zerolog.Logger) *tracking.Tracker {
	if !cfg.Enabled {
		return tracking.Disabled()
	}
	sink, err := NewSink(cfg.URI)
	if err != nil {
		logger.Warn().Err(err).Str("uri", cfg.URI).Msg("Experiment tracking disabled")
		return tracking.Disabled()
	}
	logger.Info().Str("uri", cfg.URI).Str("experiment", cfg.Experiment).Msg("Experiment tracking enabled")
	return tracking.New(sink, cfg.Experiment, logger)
}
