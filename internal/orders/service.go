package orders

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Customer is the projection of a customer directory entry the saga needs.
type Customer struct {
	ID     string
	Active bool
}

// Product is the projection of an inventory entry the saga needs.
type Product struct {
	ID     string
	Price  float64
	Stock  int
	Active bool
}

// CustomerDirectory looks up customer identity and active status.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (Customer, error)
}

// Inventory looks up products and applies conditional stock decrements.
type Inventory interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	DecrementStock(ctx context.Context, id string, quantity int) error
}

// ChargeRequest is the payment intent handed to the gateway.
type ChargeRequest struct {
	CustomerID string
	OrderID    string
	ProductID  string
	Amount     float64
	Method     string
}

// ChargeResult reports a settled charge.
type ChargeResult struct {
	PaymentID     string
	TransactionID string
	Status        string
}

// PaymentGateway settles a payment intent. A non-nil error means the charge
// did not complete; the error carries the gateway's classification.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// OrderStore persists the order aggregate.
type OrderStore interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, int, error)
	// UpdateStatus moves the order to status iff the stored version matches.
	// Returns ErrNotFound or ErrVersionConflict accordingly.
	UpdateStatus(ctx context.Context, id string, status Status, version int64) error
}

// StatusListener observes committed order status transitions.
type StatusListener func(o Order, from Status)

// ServiceConfig carries saga tuning knobs.
type ServiceConfig struct {
	// LookupTimeout bounds the customer and product validation calls.
	LookupTimeout time.Duration
	// PaymentTimeout bounds the charge call; the gateway intentionally
	// injects settlement latency, so this is looser than LookupTimeout.
	PaymentTimeout time.Duration
	// DefaultPaymentMethod is used when the caller does not name one.
	DefaultPaymentMethod string
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 5 * time.Second
	}
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 10 * time.Second
	}
	if c.DefaultPaymentMethod == "" {
		c.DefaultPaymentMethod = "credit_card"
	}
	return c
}

// Service coordinates the order saga: validate collaborators, persist the
// order, settle payment, compensate on failure, decrement stock best-effort.
type Service struct {
	customers CustomerDirectory
	inventory Inventory
	payments  PaymentGateway
	store     OrderStore
	cfg       ServiceConfig
	logger    *slog.Logger
	listeners []StatusListener

	newID func() string
	now   func() time.Time
}

// NewService constructs the saga coordinator.
func NewService(customers CustomerDirectory, inventory Inventory, payments PaymentGateway, store OrderStore, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		customers: customers,
		inventory: inventory,
		payments:  payments,
		store:     store,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		newID:     func() string { return "order-" + uuid.NewString() },
		now:       time.Now,
	}
}

// OnStatusChange registers a listener for committed status transitions.
// Listeners run synchronously on the saga goroutine and must not block.
func (s *Service) OnStatusChange(l StatusListener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) notify(o Order, from Status) {
	for _, l := range s.listeners {
		l(o, from)
	}
}

// SubmitRequest is the intake for a new order.
type SubmitRequest struct {
	CustomerID      string
	ProductID       string
	Amount          float64
	ShippingAddress string
	PaymentMethod   string
}

// SubmitResult is the projection returned to the caller on saga success.
type SubmitResult struct {
	Order         Order
	PaymentStatus string
	// StockWarning is set when the post-confirmation stock decrement failed.
	// The order is still confirmed; stock and orders may diverge until
	// reconciled out of band.
	StockWarning string
}

// stockQuantity is fixed at one unit per order.
const stockQuantity = 1

// SubmitOrder runs the saga. The sequence is strict: customer validation,
// product validation, order creation in pending, payment, confirmation,
// best-effort stock decrement. Once the pending order is written the saga
// always leaves it in a terminal state (confirmed or cancelled) before
// returning.
func (s *Service) SubmitOrder(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := validateSubmit(req); err != nil {
		return SubmitResult{}, err
	}

	customer, err := s.lookupCustomer(ctx, req.CustomerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !customer.Active {
		return SubmitResult{}, Rejectedf("customer %s is inactive", req.CustomerID)
	}

	product, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !product.Active {
		return SubmitResult{}, Rejectedf("product %s is inactive", req.ProductID)
	}
	if product.Stock < stockQuantity {
		return SubmitResult{}, Rejectedf("insufficient stock for product %s", req.ProductID)
	}

	now := s.now().UTC()
	order := Order{
		ID:              s.newID(),
		CustomerID:      req.CustomerID,
		ProductID:       req.ProductID,
		Amount:          req.Amount,
		Status:          StatusPending,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, &order); err != nil {
		return SubmitResult{}, WrapError(CodeInternal, "failed to create order", err)
	}

	method := req.PaymentMethod
	if method == "" {
		method = s.cfg.DefaultPaymentMethod
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	charge, chargeErr := s.payments.Charge(chargeCtx, ChargeRequest{
		CustomerID: order.CustomerID,
		OrderID:    order.ID,
		ProductID:  order.ProductID,
		Amount:     order.Amount,
		Method:     method,
	})
	cancel()

	if chargeErr != nil {
		s.logger.Warn("payment failed, cancelling order",
			"order_id", order.ID, "error", chargeErr)
		if err := s.settle(ctx, &order, StatusCancelled); err != nil {
			s.logger.Error("failed to cancel order after payment failure",
				"order_id", order.ID, "error", err)
		}
		return SubmitResult{}, chargeErr
	}

	if err := s.settle(ctx, &order, StatusConfirmed); err != nil {
		s.logger.Error("charge settled but order confirmation did not persist",
			"order_id", order.ID, "error", err)
		return SubmitResult{}, err
	}

	result := SubmitResult{Order: order, PaymentStatus: charge.Status}

	if err := s.decrementStock(ctx, order.ProductID); err != nil {
		// Best-effort by contract: the order stays confirmed and the
		// response is still success. Stock reconciliation is out of band.
		s.logger.Warn("stock decrement failed after confirmation",
			"order_id", order.ID, "product_id", order.ProductID, "error", err)
		result.StockWarning = "order confirmed but stock update failed"
	}

	return result, nil
}

// settleTimeout bounds the terminal-state write once the charge has resolved.
const settleTimeout = 5 * time.Second

// settle drives the pending order to its terminal saga state. The caller's
// context may already be cancelled and the terminal state must still land,
// so the write runs on a detached bounded context. Listeners fire only for
// persisted transitions.
func (s *Service) settle(ctx context.Context, order *Order, to Status) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := s.store.UpdateStatus(persistCtx, order.ID, to, order.Version); err != nil {
		return WrapError(CodeInternal, "failed to persist terminal saga state", err)
	}
	from := order.Status
	order.Status = to
	order.Version++
	order.UpdatedAt = s.now().UTC()
	s.notify(*order, from)
	return nil
}

func (s *Service) lookupCustomer(ctx context.Context, id string) (Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	return s.customers.GetCustomer(ctx, id)
}

func (s *Service) lookupProduct(ctx context.Context, id string) (Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	return s.inventory.GetProduct(ctx, id)
}

func (s *Service) decrementStock(ctx context.Context, productID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	return s.inventory.DecrementStock(ctx, productID, stockQuantity)
}

func validateSubmit(req SubmitRequest) error {
	if strings.TrimSpace(req.CustomerID) == "" {
		return Validationf("customerId is required")
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return Validationf("productId is required")
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return Validationf("amount must be a finite number")
	}
	if req.Amount <= 0 {
		return Validationf("amount must be greater than zero")
	}
	return nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	order, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, NotFoundf("order %s not found", id)
		}
		return Order{}, WrapError(CodeInternal, "failed to load order", err)
	}
	return order, nil
}

// Page is a paginated order listing.
type Page struct {
	Orders []Order
	Total  int
	Limit  int
	Offset int
}

// ListByCustomer returns the customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit, offset int) (Page, error) {
	if strings.TrimSpace(customerID) == "" {
		return Page{}, Validationf("customerId is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	list, total, err := s.store.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return Page{}, WrapError(CodeInternal, "failed to list orders", err)
	}
	return Page{Orders: list, Total: total, Limit: limit, Offset: offset}, nil
}

// UpdateStatus moves an order along the lifecycle graph. Transitions outside
// the table are rejected as VALIDATION errors. The read and the guarded write
// are not atomic; a transition committed by another writer in between trips
// the version check and surfaces as REJECTED.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, Validationf("unknown status %q", to)
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if order.Status == to {
		return order, nil
	}
	if !CanTransition(order.Status, to) {
		return Order{}, Validationf("invalid transition from %s to %s", order.Status, to)
	}

	if err := s.applyTransition(ctx, &order, to); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Cancel cancels an order. Permitted only from pending and confirmed;
// anything further along the fulfilment path is an invalid state.
func (s *Service) Cancel(ctx context.Context, id string) (Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !order.CanCancel() {
		return Order{}, Validationf("invalid state: cannot cancel order in status %s", order.Status)
	}

	if err := s.applyTransition(ctx, &order, StatusCancelled); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *Service) applyTransition(ctx context.Context, order *Order, to Status) error {
	if err := s.store.UpdateStatus(ctx, order.ID, to, order.Version); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return NotFoundf("order %s not found", order.ID)
		case errors.Is(err, ErrVersionConflict):
			return Rejectedf("order %s was modified concurrently", order.ID)
		default:
			return WrapError(CodeInternal, "failed to update order status", err)
		}
	}
	from := order.Status
	order.Status = to
	order.Version++
	order.UpdatedAt = s.now().UTC()
	s.notify(*order, from)
	return nil
}
