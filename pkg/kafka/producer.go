// Package kafka publishes JSON events to Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("kafka unavailable")

// Writer is the part of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string      `koanf:"brokers"`
	TopicPrefix  string        `koanf:"topic_prefix"`
	BatchSize    int           `koanf:"batch_size"`
	BatchTimeout time.Duration `koanf:"batch_timeout"`
	RequiredAcks int           `koanf:"required_acks"`
	Compression  string        `koanf:"compression"`

	// Consecutive failures that open the breaker, and how long it stays open.
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

// Enabled reports whether any broker is configured.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Topic prefixes name with the configured prefix.
func (c Config) Topic(name string) string {
	if c.TopicPrefix == "" {
		return name
	}
	return c.TopicPrefix + "." + name
}

// Producer handles Kafka event emission
type Producer struct {
	writer  Writer
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  ectologger.Logger
	cfg     Config
}

// NewWriter builds a kafka-go writer for cfg.
func NewWriter(cfg Config) *kafka.Writer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}
}

// NewProducer wraps writer with a circuit breaker.
func NewProducer(writer Writer, cfg Config, logger ectologger.Logger) *Producer {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Kafka circuit breaker changed state")
		},
	})

	return &Producer{
		writer:  writer,
		breaker: breaker,
		logger:  logger,
		cfg:     cfg,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes one JSON event to topic. The configured prefix is applied to topic.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	topic = p.cfg.Topic(topic)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType, err)
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.Key),
		Value:   data,
		Headers: event.headers(ctx),
	}

	start := time.Now()
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordKafkaPublish(topic, status, time.Since(start).Seconds())

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":      topic,
			"event_type": event.EventType,
		}).Error("Failed to publish event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      topic,
		"event_type": event.EventType,
		"key":        event.Key,
	}).Debug("Published event")

	return nil
}
