package orders

import (
	"context"
	"sort"
	"sync"
)

// InMemoryOrderStore keeps orders in memory. Used as the fallback when no
// database is configured, and by tests.
type InMemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]Order
}

// NewInMemoryOrderStore constructs an empty in-memory store.
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{orders: make(map[string]Order)}
}

func (s *InMemoryOrderStore) Insert(ctx context.Context, o *Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *InMemoryOrderStore) Get(ctx context.Context, id string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (s *InMemoryOrderStore) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *InMemoryOrderStore) UpdateStatus(ctx context.Context, id string, status Status, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if order.Version != version {
		return ErrVersionConflict
	}
	order.Status = status
	order.Version++
	s.orders[id] = order
	return nil
}
