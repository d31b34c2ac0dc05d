package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Header keys set on every outbound message.
const (
	HeaderRoutingKey    = "routing_key"
	HeaderCorrelationID = "correlation_id"
	HeaderMessageID     = "message_id"
	HeaderContentType   = "content_type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes outbound XML messages to a single topic. The AMQP routing
// key travels as a header so downstream consumers can keep routing on it.
type Producer struct {
	writer messageWriter
	now    func() time.Time
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafkago.Compression
	RequiredAcks kafkago.RequiredAcks
	MaxAttempts  int
}

// NewProducer constructs a Producer from the given configuration.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: cfg.RequiredAcks,
			Compression:  cfg.Compression,
			MaxAttempts:  cfg.MaxAttempts,
		},
		now: time.Now,
	}
}

// Publish writes body keyed by the correlation id, so all messages about one
// media id land on the same partition.
func (p *Producer) Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error {
	msg := kafkago.Message{
		Key:   []byte(correlationID),
		Value: body,
		Time:  p.now().UTC(),
		Headers: []kafkago.Header{
			{Key: HeaderRoutingKey, Value: []byte(routingKey)},
			{Key: HeaderCorrelationID, Value: []byte(correlationID)},
			{Key: HeaderMessageID, Value: []byte(uuid.NewString())},
			{Key: HeaderContentType, Value: []byte("application/xml")},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// CompressionFromString maps textual codec to kafka-go value.
func CompressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "snappy":
		return kafkago.Snappy
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}
