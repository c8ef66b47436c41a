package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"orderflow/internal/messaging"
)

// Metrics receives ingestion counters. The zero-value NopMetrics satisfies
// it for callers that do not collect metrics.
type Metrics interface {
	AddAuditIngested()
	AddAuditDuplicate()
	AddAuditDropped()
}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) AddAuditIngested()  {}
func (NopMetrics) AddAuditDuplicate() {}
func (NopMetrics) AddAuditDropped()   {}

// Consumer drains the queue one message at a time. Malformed messages and
// persistence failures are acknowledged and dropped rather than retried, so
// a poison message can never wedge the queue; duplicates are acknowledged
// without inserting.
type Consumer struct {
	queue   Queue
	store   Store
	logger  *slog.Logger
	metrics Metrics

	now func() time.Time
}

// NewConsumer constructs the audit consumer.
func NewConsumer(queue Queue, store Store, logger *slog.Logger, metrics Metrics) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Consumer{
		queue:   queue,
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run processes messages until the context ends. Fetch errors other than
// context cancellation are logged and retried after a short pause.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		delivery, err := c.queue.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("queue fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		c.process(ctx, delivery)
	}
}

// process handles one delivery end to end and always acknowledges it.
func (c *Consumer) process(ctx context.Context, delivery Delivery) {
	defer c.ack(ctx, delivery)

	var msg messaging.TransactionMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Warn("dropping malformed transaction message", "error", err)
		c.metrics.AddAuditDropped()
		return
	}
	if err := msg.Validate(); err != nil {
		c.logger.Warn("dropping invalid transaction message",
			"transaction_id", msg.TransactionID, "order_id", msg.OrderID, "error", err)
		c.metrics.AddAuditDropped()
		return
	}

	created, err := c.store.Insert(ctx, Record{
		TransactionID: msg.TransactionID,
		OrderID:       msg.OrderID,
		CustomerID:    msg.CustomerID,
		ProductID:     msg.ProductID,
		Amount:        msg.Amount,
		Status:        StatusCompleted,
		OccurredAt:    msg.Timestamp,
		RecordedAt:    c.now().UTC(),
	})
	if err != nil {
		// Dropped after a single attempt. A dead-letter queue would be the
		// production answer; behavioral parity keeps the drop.
		c.logger.Error("dropping transaction message after insert failure",
			"transaction_id", msg.TransactionID, "error", err)
		c.metrics.AddAuditDropped()
		return
	}

	if !created {
		c.logger.Debug("duplicate transaction message acknowledged",
			"transaction_id", msg.TransactionID)
		c.metrics.AddAuditDuplicate()
		return
	}

	c.logger.Info("transaction recorded",
		"transaction_id", msg.TransactionID, "order_id", msg.OrderID, "amount", msg.Amount)
	c.metrics.AddAuditIngested()
}

func (c *Consumer) ack(ctx context.Context, delivery Delivery) {
	// Acknowledge on a detached context so shutdown mid-message still
	// commits; an unacked message would be redelivered and deduplicated
	// anyway, this just avoids the noise.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.queue.Ack(ackCtx, delivery); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("failed to acknowledge message", "error", err)
	}
}
