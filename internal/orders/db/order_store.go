package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderflow/internal/orders"
)

// OrderStore persists the order aggregate in Postgres.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the orders table if it does not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			shipping_address TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS orders_customer_created_idx
			ON orders (customer_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Insert writes a new order row.
func (s *OrderStore) Insert(ctx context.Context, o *orders.Order) error {
	if o.ID == "" {
		return fmt.Errorf("order id required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, customer_id, product_id, amount, status, shipping_address, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.CustomerID, o.ProductID, o.Amount, string(o.Status), o.ShippingAddress, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// Get loads a single order by id.
func (s *OrderStore) Get(ctx context.Context, id string) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, customer_id, product_id, amount, status, shipping_address, version, created_at, updated_at
		FROM orders
		WHERE order_id = $1`,
		id,
	)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, orders.ErrNotFound
	}
	return order, err
}

// ListByCustomer returns a page of the customer's orders, newest first,
// along with the total count.
func (s *OrderStore) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]orders.Order, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, customer_id, product_id, amount, status, shipping_address, version, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, order_id DESC
		LIMIT $2 OFFSET $3`,
		customerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []orders.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// UpdateStatus moves the order to status iff the stored version matches.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status orders.Status, version int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, version = version + 1, updated_at = NOW()
		WHERE order_id = $1 AND version = $3`,
		id, string(status), version,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	row := s.db.QueryRowContext(ctx, `SELECT TRUE FROM orders WHERE order_id = $1`, id)
	switch scanErr := row.Scan(&exists); scanErr {
	case nil:
		return orders.ErrVersionConflict
	case sql.ErrNoRows:
		return orders.ErrNotFound
	default:
		return scanErr
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (orders.Order, error) {
	var o orders.Order
	var status string
	if err := row.Scan(&o.ID, &o.CustomerID, &o.ProductID, &o.Amount, &status, &o.ShippingAddress, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	return o, nil
}
