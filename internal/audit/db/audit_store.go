// Package auditdb persists transaction history in Postgres. The unique
// transaction id constraint is what makes queue redelivery harmless.
package auditdb

import (
	"context"
	"database/sql"

	"orderflow/internal/audit"
)

// PostgresStore persists audit records in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs an audit store backed by Postgres.
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

// InitSchema creates the transaction_history table if it does not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transaction_history (
			transaction_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Insert writes the record unless its transaction id is already present.
// Returns false for duplicates.
func (s *PostgresStore) Insert(ctx context.Context, rec audit.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_history (transaction_id, order_id, customer_id, product_id, amount, status, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id) DO NOTHING`,
		rec.TransactionID, rec.OrderID, rec.CustomerID, rec.ProductID, rec.Amount, rec.Status, rec.OccurredAt, rec.RecordedAt,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetByTransactionID loads a record by its transaction id.
func (s *PostgresStore) GetByTransactionID(ctx context.Context, transactionID string) (audit.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, order_id, customer_id, product_id, amount, status, occurred_at, recorded_at
		FROM transaction_history
		WHERE transaction_id = $1`,
		transactionID,
	)

	var rec audit.Record
	err := row.Scan(&rec.TransactionID, &rec.OrderID, &rec.CustomerID, &rec.ProductID, &rec.Amount, &rec.Status, &rec.OccurredAt, &rec.RecordedAt)
	if err == sql.ErrNoRows {
		return audit.Record{}, audit.ErrRecordNotFound
	}
	if err != nil {
		return audit.Record{}, err
	}
	return rec, nil
}
