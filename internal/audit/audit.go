// Package audit drains the durable transaction queue into an immutable
// transaction history, producing exactly one record per distinct
// transaction id despite at-least-once delivery.
package audit

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when no record exists for a transaction id.
var ErrRecordNotFound = errors.New("audit record not found")

// Record is the durable audit entry. TransactionID is the natural key;
// records are never updated or deleted by this flow.
type Record struct {
	TransactionID string
	OrderID       string
	CustomerID    string
	ProductID     string
	Amount        float64
	Status        string
	OccurredAt    time.Time
	RecordedAt    time.Time
}

// StatusCompleted is the default status for ingested records.
const StatusCompleted = "completed"

// Store persists audit records.
type Store interface {
	// Insert writes the record unless one already exists for its
	// transaction id. Returns false when the record was a duplicate.
	Insert(ctx context.Context, rec Record) (bool, error)
	// GetByTransactionID loads a record, or ErrRecordNotFound.
	GetByTransactionID(ctx context.Context, transactionID string) (Record, error)
}

// Delivery is one message pulled off the queue. Handle is the transport's
// opaque acknowledgement token.
type Delivery struct {
	Body   []byte
	Handle any
}

// Queue is the consumer-side queue contract: fetch one message, process it,
// acknowledge it. Implementations keep a single message in flight.
type Queue interface {
	Fetch(ctx context.Context) (Delivery, error)
	Ack(ctx context.Context, d Delivery) error
}
