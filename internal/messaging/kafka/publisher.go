// Package kafka adapts the durable transaction queue contract to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"orderflow/internal/messaging"

	kafkago "github.com/segmentio/kafka-go"
)

// Publisher writes transaction messages to a Kafka topic with full acks,
// giving the queue its durable, at-least-once character.
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher constructs a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
		},
	}
}

// PublishTransaction appends one message, keyed by transaction id so
// duplicates of the same transaction land on the same partition.
func (p *Publisher) PublishTransaction(ctx context.Context, msg messaging.TransactionMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal transaction message: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(msg.TransactionID),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
