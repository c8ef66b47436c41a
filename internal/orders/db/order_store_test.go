package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"orderflow/internal/orders"

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

func orderColumns() []string {
	return []string{"order_id", "customer_id", "product_id", "amount", "status", "shipping_address", "version", "created_at", "updated_at"}
}

func TestOrderStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS orders_customer_created_idx").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestOrderStore_InsertAndGet(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	order := orders.Order{
		ID: "order-1", CustomerID: "CUST_1", ProductID: "PROD_1",
		Amount: 50000, Status: orders.StatusPending, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO orders").
		WithArgs("order-1", "CUST_1", "PROD_1", 50000.0, "pending", "", int64(1), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow("order-1", "CUST_1", "PROD_1", 50000.0, "pending", "", int64(1), now, now))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if err := store.Insert(context.Background(), &order); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Get(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != orders.StatusPending || got.CustomerID != "CUST_1" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestOrderStore_Insert_RequiresID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)
	mock.ExpectClose()

	store := NewOrderStore(db)
	if err := store.Insert(context.Background(), &orders.Order{}); err == nil {
		t.Fatalf("expected error for empty order id")
	}
}

func TestOrderStore_Get_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderColumns()))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderStore_ListByCustomer(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders`).
		WithArgs("CUST_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("CUST_1", 20, 0).
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow("order-2", "CUST_1", "PROD_1", 10.0, "confirmed", "", int64(2), now, now).
			AddRow("order-1", "CUST_1", "PROD_2", 20.0, "cancelled", "", int64(2), now, now))
	mock.ExpectClose()

	store := NewOrderStore(db)
	list, total, err := store.ListByCustomer(context.Background(), "CUST_1", 20, 0)
	if err != nil {
		t.Fatalf("ListByCustomer: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("total=%d len=%d, want 2/2", total, len(list))
	}
	if list[0].ID != "order-2" || list[0].Status != orders.StatusConfirmed {
		t.Fatalf("unexpected first row: %+v", list[0])
	}
}

func TestOrderStore_UpdateStatus_Success(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE orders").
		WithArgs("order-1", "confirmed", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if err := store.UpdateStatus(context.Background(), "order-1", orders.StatusConfirmed, 1); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
}

func TestOrderStore_UpdateStatus_VersionConflict(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE orders").
		WithArgs("order-1", "cancelled", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT TRUE FROM orders").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"true"}).AddRow(true))
	mock.ExpectClose()

	store := NewOrderStore(db)
	err := store.UpdateStatus(context.Background(), "order-1", orders.StatusCancelled, 1)
	if !errors.Is(err, orders.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestOrderStore_UpdateStatus_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE orders").
		WithArgs("missing", "cancelled", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT TRUE FROM orders").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"true"}))
	mock.ExpectClose()

	store := NewOrderStore(db)
	err := store.UpdateStatus(context.Background(), "missing", orders.StatusCancelled, 1)
	if !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderStore_WithSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS orders_customer_created_idx").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store, err := NewOrderStoreWithSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("WithSchema: %v", err)
	}
	if store == nil {
		t.Fatalf("expected store")
	}
}
