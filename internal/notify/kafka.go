package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaSink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink writes hub messages as JSON to a Kafka topic, keyed by event
// name so a compacted topic keeps the latest message of each kind.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing synchronously to the least loaded partition.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{writer: w}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

// Publish writes one message. The store version travels as a header.
func (s *KafkaSink) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka encode: %w", err)
	}

	km := kafka.Message{
		Key:   []byte(msg.Name()),
		Value: payload,
		Time:  msg.Time,
		Headers: []kafka.Header{
			{Key: "version", Value: []byte(strconv.FormatUint(msg.Version, 10))},
		},
	}
	if err := s.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
