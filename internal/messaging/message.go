// Package messaging defines the wire envelope carried on the durable
// transaction queue between the payment step and the audit consumer.
package messaging

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// TransactionMessage is published exactly once per completed charge. It is
// never persisted by the publisher; the audit record downstream is its only
// durable form.
type TransactionMessage struct {
	CustomerID    string    `json:"customerId"`
	OrderID       string    `json:"orderId"`
	ProductID     string    `json:"productId"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"transactionId"`
	Timestamp     time.Time `json:"timestamp"`
}

// ErrInvalidMessage signals a message that fails envelope validation.
// Consumers drop such messages instead of retrying them.
var ErrInvalidMessage = errors.New("invalid transaction message")

// Validate checks the required fields. Amount must be a non-negative finite
// number; the identifier fields must be non-blank.
func (m TransactionMessage) Validate() error {
	for _, field := range []string{m.CustomerID, m.OrderID, m.ProductID, m.TransactionID} {
		if strings.TrimSpace(field) == "" {
			return ErrInvalidMessage
		}
	}
	if math.IsNaN(m.Amount) || math.IsInf(m.Amount, 0) || m.Amount < 0 {
		return ErrInvalidMessage
	}
	return nil
}

// TransactionPublisher appends a transaction message to the durable queue.
type TransactionPublisher interface {
	PublishTransaction(ctx context.Context, msg TransactionMessage) error
}
