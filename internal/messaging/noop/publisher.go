package noop

import (
	"context"

	"orderflow/internal/messaging"
)

// Publisher is a no-op TransactionPublisher used when the queue is not
// configured. Charges still settle; nothing reaches the audit trail.
type Publisher struct{}

func (Publisher) PublishTransaction(_ context.Context, _ messaging.TransactionMessage) error {
	return nil
}
