package payments

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"orderflow/internal/messaging"
	"orderflow/internal/orders"

	"github.com/google/uuid"
)

// Store persists payment records.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	MarkCompleted(ctx context.Context, orderID, transactionID string) error
	MarkFailed(ctx context.Context, orderID, reason string) error
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
}

// Config carries the simulator's business rules and latency envelope.
type Config struct {
	// Ceiling rejects amounts at or above it (amount-exceeds-limit).
	Ceiling float64
	// Floor rejects amounts below it (minimum-not-met).
	Floor float64
	// MinDelay/MaxDelay bound the injected settlement latency.
	MinDelay time.Duration
	MaxDelay time.Duration
	// SuccessRate is the approval probability for in-bounds amounts.
	SuccessRate float64
}

func (c Config) withDefaults() Config {
	if c.Ceiling <= 0 {
		c.Ceiling = 1_000_000
	}
	if c.Floor < 0 {
		c.Floor = 0
	}
	if c.MinDelay <= 0 {
		c.MinDelay = 500 * time.Millisecond
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = 2 * time.Second
	}
	if c.SuccessRate <= 0 || c.SuccessRate > 1 {
		c.SuccessRate = 0.95
	}
	return c
}

// Service is the simulated gateway. It satisfies the saga's PaymentGateway
// contract: persist pending, wait out the settlement latency, settle the
// payment durably, then publish the transaction message best-effort.
type Service struct {
	store     Store
	publisher messaging.TransactionPublisher
	cfg       Config
	decider   Decider
	logger    *slog.Logger

	sleep    func(context.Context, time.Duration) error
	delayFor func() time.Duration
	newID    func() string
	newTxnID func() string
	now      func() time.Time
}

// NewService constructs the simulator. A nil decider gets the configured
// random one; a nil publisher must be replaced with the noop publisher by
// the caller, not here, so the wiring stays explicit.
func NewService(store Store, publisher messaging.TransactionPublisher, cfg Config, decider Decider, logger *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	if decider == nil {
		decider = NewRandomDecider(cfg.SuccessRate, time.Now().UnixNano())
	}
	if logger == nil {
		logger = slog.Default()
	}

	spread := cfg.MaxDelay - cfg.MinDelay
	return &Service{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		decider:   decider,
		logger:    logger,
		sleep:     sleepWithContext,
		delayFor: func() time.Duration {
			if spread <= 0 {
				return cfg.MinDelay
			}
			return cfg.MinDelay + time.Duration(rand.Int63n(int64(spread)))
		},
		newID:    func() string { return "pay-" + uuid.NewString() },
		newTxnID: func() string { return "TXN-" + uuid.NewString() },
		now:      time.Now,
	}
}

// Charge settles a payment intent. The pending record is written before any
// outcome is attempted; the final status is durably written before the queue
// publish, and a failed publish never fails the charge.
func (s *Service) Charge(ctx context.Context, req orders.ChargeRequest) (orders.ChargeResult, error) {
	now := s.now().UTC()
	payment := Payment{
		ID:         s.newID(),
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Amount:     req.Amount,
		Method:     req.Method,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, &payment); err != nil {
		if errors.Is(err, ErrAlreadyCharged) {
			return orders.ChargeResult{}, orders.Rejectedf("order %s already has a payment", req.OrderID)
		}
		return orders.ChargeResult{}, orders.WrapError(orders.CodeInternal, "failed to record payment", err)
	}

	// Settlement latency is part of the gateway contract, not a fault.
	if err := s.sleep(ctx, s.delayFor()); err != nil {
		s.fail(payment.OrderID, "charge timed out")
		return orders.ChargeResult{}, orders.WrapError(orders.CodeUnavailable, "payment gateway timed out", err)
	}

	if reason, ok := s.boundsReason(req.Amount); !ok {
		s.fail(payment.OrderID, reason)
		return orders.ChargeResult{}, orders.NewError(orders.CodeRejected, reason)
	}

	switch outcome := s.decider.Decide(req.Amount); outcome {
	case OutcomeApproved:
		// fall through to settlement below
	case OutcomeInsufficientFunds:
		s.fail(payment.OrderID, "insufficient funds")
		return orders.ChargeResult{}, orders.Rejectedf("insufficient funds")
	default:
		s.fail(payment.OrderID, "card declined")
		return orders.ChargeResult{}, orders.Rejectedf("card declined")
	}

	transactionID := s.newTxnID()
	if err := s.store.MarkCompleted(ctx, payment.OrderID, transactionID); err != nil {
		return orders.ChargeResult{}, orders.WrapError(orders.CodeInternal, "failed to settle payment", err)
	}

	s.publish(ctx, messaging.TransactionMessage{
		CustomerID:    req.CustomerID,
		OrderID:       req.OrderID,
		ProductID:     req.ProductID,
		Amount:        req.Amount,
		TransactionID: transactionID,
		Timestamp:     s.now().UTC(),
	})

	return orders.ChargeResult{
		PaymentID:     payment.ID,
		TransactionID: transactionID,
		Status:        string(StatusCompleted),
	}, nil
}

// boundsReason applies the amount business rules. Returns the decline
// reason and false when the amount is out of bounds.
func (s *Service) boundsReason(amount float64) (string, bool) {
	if amount >= s.cfg.Ceiling {
		return "amount exceeds limit", false
	}
	if amount < s.cfg.Floor {
		return "amount below minimum", false
	}
	return "", true
}

// fail marks the payment failed on a background context; the caller's
// context may already be cancelled and the terminal state must still land.
func (s *Service) fail(orderID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.MarkFailed(ctx, orderID, reason); err != nil {
		s.logger.Error("failed to record payment failure",
			"order_id", orderID, "reason", reason, "error", err)
	}
}

// publish pushes the transaction message to the durable queue. The payment
// is already settled; a publish failure is logged and swallowed, leaving an
// at-least-once boundary rather than a two-phase commit.
func (s *Service) publish(ctx context.Context, msg messaging.TransactionMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransaction(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn("transaction publish failed, charge still settled",
			"order_id", msg.OrderID, "transaction_id", msg.TransactionID, "error", err)
	}
}

// GetByOrder returns the payment recorded for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (Payment, error) {
	return s.store.GetByOrder(ctx, orderID)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
