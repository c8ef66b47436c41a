package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps audit records in memory. Used as the fallback when no
// database is configured, and by tests.
type InMemoryStore struct {
	mu    sync.Mutex
	byTxn map[string]Record
}

// NewInMemoryStore constructs an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byTxn: make(map[string]Record)}
}

func (s *InMemoryStore) Insert(ctx context.Context, rec Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byTxn[rec.TransactionID]; ok {
		return false, nil
	}
	s.byTxn[rec.TransactionID] = rec
	return true, nil
}

func (s *InMemoryStore) GetByTransactionID(ctx context.Context, transactionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byTxn[transactionID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// Len reports the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTxn)
}
