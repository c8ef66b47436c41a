package clients

import (
	"context"
	"errors"
	"testing"

	"orderflow/internal/orders"
)

func TestStaticInventory_DecrementStock(t *testing.T) {
	inv := NewStaticInventory(orders.Product{ID: "PROD_1", Price: 10, Stock: 2, Active: true})
	ctx := context.Background()

	if err := inv.DecrementStock(ctx, "PROD_1", 1); err != nil {
		t.Fatalf("DecrementStock: %v", err)
	}
	p, err := inv.GetProduct(ctx, "PROD_1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Stock != 1 {
		t.Fatalf("stock = %d, want 1", p.Stock)
	}

	if err := inv.DecrementStock(ctx, "PROD_1", 5); orders.CodeOf(err) != orders.CodeRejected {
		t.Fatalf("expected REJECTED for insufficient stock, got %v", err)
	}
}

func TestStaticDirectory_GetCustomer(t *testing.T) {
	dir := NewStaticDirectory(orders.Customer{ID: "CUST_1", Active: true})
	ctx := context.Background()

	c, err := dir.GetCustomer(ctx, "CUST_1")
	if err != nil || !c.Active {
		t.Fatalf("unexpected lookup result: %+v %v", c, err)
	}

	_, err = dir.GetCustomer(ctx, "CUST_404")
	if orders.CodeOf(err) != orders.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestStatic_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := DemoDirectory().GetCustomer(ctx, "CUST_1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if err := DemoInventory().DecrementStock(ctx, "PROD_1", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
