package paymentsdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"orderflow/internal/payments"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func pendingPayment() *payments.Payment {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &payments.Payment{
		ID: "pay-1", OrderID: "order-1", CustomerID: "CUST_1", ProductID: "PROD_1",
		Amount: 100, Method: "credit_card", Status: payments.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestPostgresStore_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	p := pendingPayment()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs("pay-1", "order-1", "CUST_1", "PROD_1", 100.0, "credit_card", "pending", p.CreatedAt, p.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestPostgresStore_Create_Duplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	p := pendingPayment()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs("pay-1", "order-1", "CUST_1", "PROD_1", 100.0, "credit_card", "pending", p.CreatedAt, p.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if err := store.Create(context.Background(), p); !errors.Is(err, payments.ErrAlreadyCharged) {
		t.Fatalf("expected ErrAlreadyCharged, got %v", err)
	}
}

func TestPostgresStore_MarkCompleted(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payments").
		WithArgs("order-1", "completed", "TXN_1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if err := store.MarkCompleted(context.Background(), "order-1", "TXN_1"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
}

func TestPostgresStore_MarkCompleted_AlreadySettled(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payments").
		WithArgs("order-1", "completed", "TXN_1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM payments").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	err := store.MarkCompleted(context.Background(), "order-1", "TXN_1")
	if !errors.Is(err, payments.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestPostgresStore_MarkFailed_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payments").
		WithArgs("missing", "failed", "card declined", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM payments").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	err := store.MarkFailed(context.Background(), "missing", "card declined")
	if !errors.Is(err, payments.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_GetByOrder(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT payment_id, order_id").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"payment_id", "order_id", "customer_id", "product_id", "amount", "method", "status", "transaction_id", "failure_reason", "created_at", "updated_at",
		}).AddRow("pay-1", "order-1", "CUST_1", "PROD_1", 100.0, "credit_card", "completed", "TXN_1", "", now, now))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	p, err := store.GetByOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	if p.Status != payments.StatusCompleted || p.TransactionID != "TXN_1" {
		t.Fatalf("unexpected payment: %+v", p)
	}
}

func TestPostgresStore_WithSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store, err := NewPostgresStoreWithSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("WithSchema: %v", err)
	}
	if store == nil {
		t.Fatalf("expected store")
	}
}
