package orders

import (
	"errors"
	"time"
)

// ErrNotFound signals the requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrVersionConflict signals a concurrent writer updated the order first.
var ErrVersionConflict = errors.New("order version conflict")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// transitions is the allowed status graph. pending resolves to confirmed or
// cancelled when the saga completes; the later hops are operator driven.
// cancelled and delivered are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is the aggregate the saga coordinates. The ID is generated at
// creation and never client supplied. Version backs optimistic locking on
// status updates.
type Order struct {
	ID              string
	CustomerID      string
	ProductID       string
	Amount          float64
	Status          Status
	ShippingAddress string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanCancel reports whether the cancel operation is permitted.
// Only pending and confirmed orders may be cancelled.
func (o *Order) CanCancel() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}
