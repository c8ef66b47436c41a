package clients

import (
	"context"
	"sync"

	"orderflow/internal/orders"
)

// StaticDirectory is an in-memory customer directory. Used as the fallback
// when no customer service URL is configured, and by tests.
type StaticDirectory struct {
	mu        sync.Mutex
	customers map[string]orders.Customer
}

// NewStaticDirectory seeds the directory.
func NewStaticDirectory(customers ...orders.Customer) *StaticDirectory {
	d := &StaticDirectory{customers: make(map[string]orders.Customer)}
	for _, c := range customers {
		d.customers[c.ID] = c
	}
	return d
}

func (d *StaticDirectory) GetCustomer(ctx context.Context, id string) (orders.Customer, error) {
	if err := ctx.Err(); err != nil {
		return orders.Customer{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.customers[id]
	if !ok {
		return orders.Customer{}, orders.NotFoundf("customer %s not found", id)
	}
	return c, nil
}

// StaticInventory is an in-memory inventory. Used as the fallback when no
// product service URL is configured, and by tests.
type StaticInventory struct {
	mu       sync.Mutex
	products map[string]orders.Product
}

// NewStaticInventory seeds the inventory.
func NewStaticInventory(products ...orders.Product) *StaticInventory {
	i := &StaticInventory{products: make(map[string]orders.Product)}
	for _, p := range products {
		i.products[p.ID] = p
	}
	return i
}

func (i *StaticInventory) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	if err := ctx.Err(); err != nil {
		return orders.Product{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.products[id]
	if !ok {
		return orders.Product{}, orders.NotFoundf("product %s not found", id)
	}
	return p, nil
}

func (i *StaticInventory) DecrementStock(ctx context.Context, id string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.products[id]
	if !ok {
		return orders.NotFoundf("product %s not found", id)
	}
	if p.Stock < quantity {
		return orders.Rejectedf("insufficient stock for product %s", id)
	}
	p.Stock -= quantity
	i.products[id] = p
	return nil
}

// DemoDirectory returns a directory seeded with sample customers.
func DemoDirectory() *StaticDirectory {
	return NewStaticDirectory(
		orders.Customer{ID: "CUST_1", Active: true},
		orders.Customer{ID: "CUST_2", Active: true},
		orders.Customer{ID: "CUST_3", Active: false},
	)
}

// DemoInventory returns an inventory seeded with sample products.
func DemoInventory() *StaticInventory {
	return NewStaticInventory(
		orders.Product{ID: "PROD_1", Price: 49.99, Stock: 100, Active: true},
		orders.Product{ID: "PROD_2", Price: 129.50, Stock: 25, Active: true},
		orders.Product{ID: "PROD_3", Price: 9.99, Stock: 0, Active: true},
		orders.Product{ID: "PROD_4", Price: 19.99, Stock: 10, Active: false},
	)
}
