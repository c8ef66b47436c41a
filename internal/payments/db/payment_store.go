package paymentsdb

import (
	"context"
	"database/sql"
	"fmt"

	"orderflow/internal/payments"
)

// PostgresStore persists payment records in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a payment store backed by Postgres.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresStoreWithSchema initializes the schema then returns the store.
func NewPostgresStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	store := NewPostgresStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the payments table if it does not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT PRIMARY KEY,
			order_id TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			transaction_id TEXT,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Create inserts a pending payment. At most one payment exists per order.
func (s *PostgresStore) Create(ctx context.Context, p *payments.Payment) error {
	if p.OrderID == "" {
		return fmt.Errorf("order id required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (payment_id, order_id, customer_id, product_id, amount, method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id) DO NOTHING`,
		p.ID, p.OrderID, p.CustomerID, p.ProductID, p.Amount, p.Method, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return payments.ErrAlreadyCharged
	}

	return nil
}

// MarkCompleted settles a pending payment with its transaction id.
func (s *PostgresStore) MarkCompleted(ctx context.Context, orderID, transactionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, transaction_id = $3, updated_at = NOW()
		WHERE order_id = $1 AND status = $4`,
		orderID, string(payments.StatusCompleted), transactionID, string(payments.StatusPending),
	)
	if err != nil {
		return err
	}
	return s.checkSettled(ctx, orderID, res)
}

// MarkFailed settles a pending payment with a decline reason.
func (s *PostgresStore) MarkFailed(ctx context.Context, orderID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE order_id = $1 AND status = $4`,
		orderID, string(payments.StatusFailed), reason, string(payments.StatusPending),
	)
	if err != nil {
		return err
	}
	return s.checkSettled(ctx, orderID, res)
}

// checkSettled disambiguates a zero-row settle: either the payment does not
// exist or it already left pending.
func (s *PostgresStore) checkSettled(ctx context.Context, orderID string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status string
	row := s.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE order_id = $1`, orderID)
	switch scanErr := row.Scan(&status); scanErr {
	case nil:
		return payments.ErrNotPending
	case sql.ErrNoRows:
		return payments.ErrNotFound
	default:
		return scanErr
	}
}

// GetByOrder loads the payment recorded for an order.
func (s *PostgresStore) GetByOrder(ctx context.Context, orderID string) (payments.Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payment_id, order_id, customer_id, product_id, amount, method, status, COALESCE(transaction_id, ''), COALESCE(failure_reason, ''), created_at, updated_at
		FROM payments
		WHERE order_id = $1`,
		orderID,
	)

	var p payments.Payment
	var status string
	err := row.Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.ProductID, &p.Amount, &p.Method, &status, &p.TransactionID, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return payments.Payment{}, payments.ErrNotFound
	}
	if err != nil {
		return payments.Payment{}, err
	}
	p.Status = payments.Status(status)
	return p, nil
}
