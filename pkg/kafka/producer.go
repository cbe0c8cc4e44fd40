// Package kafka publishes pipeline events to a Kafka topic through
// segmentio/kafka-go. Values are JSON and the key picks the partition, so
// every event for one book lands on the same partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// RunIDHeader carries the batch run id when the publishing context has one.
const RunIDHeader = "run-id"

// Event is one message: Key selects the partition, Value is marshalled to
// JSON.
type Event struct {
	Key   string
	Value any
}

// Publisher is what the pipeline needs from Kafka.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events synchronously, waiting for all in-sync replicas.
type Producer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewProducer returns a Producer for topic on the configured brokers.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func message(ctx context.Context, event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s event: %w", event.Key, err)
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: value}
	if id, ok := logger.RunID(ctx); ok {
		msg.Headers = append(msg.Headers, kafka.Header{Key: RunIDHeader, Value: []byte(id)})
	}
	return msg, nil
}

// Publish writes one event and blocks until the brokers acknowledge it.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in a single call. Nothing is written when any
// value fails to marshal.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		msg, err := message(ctx, ev)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "count", len(msgs), "first_key", events[0].Key, "error", err)
		return fmt.Errorf("publishing %d event(s): %w", len(msgs), err)
	}
	p.logger.Debug("published", "count", len(msgs), "first_key", events[0].Key)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
