// Package sink publishes completed run results to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tablesentry-io/tablesentry/internal/config"
	"github.com/tablesentry-io/tablesentry/internal/runner"
)

const (
	defaultTopic        = "tablesentry.run-results"
	defaultWriteTimeout = 10 * time.Second
)

// ErrPublishFailed is returned when a run result cannot be delivered.
var ErrPublishFailed = errors.New("run result publish failed")

// Config holds Kafka sink settings. An empty broker list disables the sink.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// LoadConfig reads sink settings from the environment.
func LoadConfig() *Config {
	return &Config{
		Brokers:      config.ParseCommaSeparatedList(config.GetEnvStr("TABLESENTRY_KAFKA_BROKERS", "")),
		Topic:        config.GetEnvStr("TABLESENTRY_KAFKA_TOPIC", defaultTopic),
		WriteTimeout: config.GetEnvDuration("TABLESENTRY_KAFKA_WRITE_TIMEOUT", defaultWriteTimeout),
	}
}

// Enabled reports whether any broker is configured.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// KafkaSink writes one message per completed run, keyed by config id so all
// runs of one table land on the same partition in order.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink over the configured brokers.
func NewKafkaSink(cfg *Config) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Publish emits one run result as an append-only record.
func (s *KafkaSink) Publish(ctx context.Context, result *runner.BatchRunResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: marshal run %s: %w", ErrPublishFailed, result.RunID, err)
	}

	message := kafka.Message{
		Key:   []byte(result.ConfigID),
		Value: payload,
	}

	if err := s.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("%w: run %s: %w", ErrPublishFailed, result.RunID, err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// NoopSink discards results. Used when no broker is configured.
type NoopSink struct{}

// Publish drops the result.
func (NoopSink) Publish(context.Context, *runner.BatchRunResult) error {
	return nil
}
