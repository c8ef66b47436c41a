package clients

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"orderflow/internal/cache"
	"orderflow/internal/orders"
)

// CachedCustomerDirectory is a read-through cache over a customer directory.
// Only successful lookups are cached; errors always fall through so an
// outage never pins a stale NOT_FOUND. Product lookups are deliberately not
// cached, since stock freshness drives saga validation.
type CachedCustomerDirectory struct {
	base   orders.CustomerDirectory
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedCustomerDirectory wraps base with a cache.
func NewCachedCustomerDirectory(base orders.CustomerDirectory, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedCustomerDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCustomerDirectory{base: base, cache: c, ttl: ttl, logger: logger}
}

type cachedCustomer struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

func (c *CachedCustomerDirectory) GetCustomer(ctx context.Context, id string) (orders.Customer, error) {
	key := c.cache.Key("customer", id)

	if raw, err := c.cache.Get(ctx, key); err == nil {
		var hit cachedCustomer
		if err := json.Unmarshal(raw, &hit); err == nil {
			return orders.Customer{ID: hit.ID, Active: hit.Active}, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		c.logger.Debug("customer cache read failed", "key", key, "error", err)
	}

	customer, err := c.base.GetCustomer(ctx, id)
	if err != nil {
		return orders.Customer{}, err
	}

	if raw, err := json.Marshal(cachedCustomer{ID: customer.ID, Active: customer.Active}); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Debug("customer cache write failed", "key", key, "error", err)
		}
	}
	return customer, nil
}
