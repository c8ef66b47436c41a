package kafka

import (
	"context"

	"orderflow/internal/audit"

	kafkago "github.com/segmentio/kafka-go"
)

// Queue adapts a Kafka reader to the audit consumer's queue contract.
// Offsets are committed manually, which is the Kafka shape of manual acks:
// an uncommitted message is redelivered after a restart, a committed one
// never is. QueueCapacity of one keeps a single message in flight, so
// processing is strictly serial.
type Queue struct {
	reader *kafkago.Reader
}

// NewQueue constructs the consumer-side queue binding.
func NewQueue(brokers []string, topic, groupID string) *Queue {
	return &Queue{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:       brokers,
			Topic:         topic,
			GroupID:       groupID,
			QueueCapacity: 1,
		}),
	}
}

func (q *Queue) Fetch(ctx context.Context) (audit.Delivery, error) {
	msg, err := q.reader.FetchMessage(ctx)
	if err != nil {
		return audit.Delivery{}, err
	}
	return audit.Delivery{Body: msg.Value, Handle: msg}, nil
}

func (q *Queue) Ack(ctx context.Context, d audit.Delivery) error {
	msg, ok := d.Handle.(kafkago.Message)
	if !ok {
		return nil
	}
	return q.reader.CommitMessages(ctx, msg)
}

// Close stops the reader.
func (q *Queue) Close() error {
	return q.reader.Close()
}
