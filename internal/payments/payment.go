// Package payments implements the simulated payment gateway: real latency,
// probabilistic outcomes, durable payment records, and a best-effort publish
// of the transaction message once a charge completes.
package payments

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// ErrAlreadyCharged signals an order already has a payment record.
var ErrAlreadyCharged = errors.New("order already charged")

// ErrNotFound signals no payment exists for the order.
var ErrNotFound = errors.New("payment not found")

// ErrNotPending signals the payment already left the pending state.
var ErrNotPending = errors.New("payment is not pending")

// Payment is the durable record of one charge attempt. It is created in
// pending and transitions exactly once to completed or failed.
type Payment struct {
	ID            string
	OrderID       string
	CustomerID    string
	ProductID     string
	Amount        float64
	Method        string
	Status        Status
	TransactionID string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
