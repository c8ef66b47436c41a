package payments

import (
	"context"
	"sync"
)

// InMemoryStore keeps payments in memory. Used as the fallback when no
// database is configured, and by tests.
type InMemoryStore struct {
	mu      sync.Mutex
	byOrder map[string]Payment
}

// NewInMemoryStore constructs an empty in-memory payment store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byOrder: make(map[string]Payment)}
}

func (s *InMemoryStore) Create(ctx context.Context, p *Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byOrder[p.OrderID]; ok {
		return ErrAlreadyCharged
	}
	s.byOrder[p.OrderID] = *p
	return nil
}

func (s *InMemoryStore) MarkCompleted(ctx context.Context, orderID, transactionID string) error {
	return s.settle(ctx, orderID, StatusCompleted, transactionID, "")
}

func (s *InMemoryStore) MarkFailed(ctx context.Context, orderID, reason string) error {
	return s.settle(ctx, orderID, StatusFailed, "", reason)
}

func (s *InMemoryStore) settle(ctx context.Context, orderID string, status Status, transactionID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byOrder[orderID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.Status = status
	p.TransactionID = transactionID
	p.FailureReason = reason
	s.byOrder[orderID] = p
	return nil
}

func (s *InMemoryStore) GetByOrder(ctx context.Context, orderID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byOrder[orderID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}
