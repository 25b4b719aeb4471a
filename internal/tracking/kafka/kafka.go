// Package kafka publishes run records to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/tracking"
)

// Config holds the broker settings.
type Config struct {
	Brokers []string
	Topic   string
	// WriteTimeout bounds each publish. Defaults to 5s.
	WriteTimeout time.Duration
}

// Sink writes one message per run, keyed by experiment so that the runs of
// one experiment stay ordered on a single partition.
type Sink struct {
	writer *kafkago.Writer
}

func NewSink(c Config) (*Sink, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", models.ErrObservability)
	}
	if c.Topic == "" {
		return nil, fmt.Errorf("%w: kafka topic is required", models.ErrObservability)
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}

	return &Sink{writer: &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           c.WriteTimeout,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Topic returns the destination topic.
func (s *Sink) Topic() string { return s.writer.Topic }

func (s *Sink) Write(ctx context.Context, run *tracking.Run) error {
	if run == nil {
		return tracking.ErrNilRun
	}
	msg, err := NewMessage(run)
	if err != nil {
		return err
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: publishing run to %s: %v", models.ErrObservability, s.writer.Topic, err)
	}
	return nil
}

// NewMessage encodes run as the message published for it.
func NewMessage(run *tracking.Run) (kafkago.Message, error) {
	if run == nil {
		return kafkago.Message{}, tracking.ErrNilRun
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("%w: encoding run: %v", models.ErrObservability, err)
	}
	return kafkago.Message{
		Key:   []byte(run.Experiment),
		Value: payload,
		Time:  run.LoggedAt,
	}, nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
