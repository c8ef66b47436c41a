package orders

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrCircuitOpen indicates the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryPolicy controls retry behavior for outbound lookup calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      func(time.Duration) time.Duration
	Sleep       func(context.Context, time.Duration) error
	ShouldRetry func(error) bool
}

// Do executes the function with retries according to the policy.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		// Only unreachable collaborators are worth retrying. NOT_FOUND and
		// REJECTED answers are authoritative, and an open breaker means the
		// collaborator is already known to be down.
		shouldRetry = func(err error) bool {
			if errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, ErrCircuitOpen) {
				return false
			}
			return CodeOf(err) == CodeUnavailable
		}
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == attempts || !shouldRetry(err) {
			return err
		}

		delay := p.BaseDelay
		if delay > 0 {
			delay = delay << (attempt - 1)
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		delay = jitter(delay)
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	Now          func() time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreaker stops calls after repeated failures.
type CircuitBreaker struct {
	mu         sync.Mutex
	maxFails   int
	resetAfter time.Duration
	now        func() time.Time

	state          circuitState
	failures       int
	openedAt       time.Time
	halfOpenFlight bool
}

// NewCircuitBreaker constructs a circuit breaker with sane defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	maxFails := cfg.MaxFailures
	if maxFails < 1 {
		maxFails = 1
	}
	resetAfter := cfg.ResetTimeout
	if resetAfter <= 0 {
		resetAfter = 2 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		maxFails:   maxFails,
		resetAfter: resetAfter,
		now:        now,
		state:      circuitClosed,
	}
}

// Execute runs the given function while enforcing breaker state.
func (c *CircuitBreaker) Execute(fn func() error) error {
	if c == nil {
		return fn()
	}

	now := c.now()

	c.mu.Lock()
	switch c.state {
	case circuitOpen:
		if now.Sub(c.openedAt) < c.resetAfter {
			c.mu.Unlock()
			return ErrCircuitOpen
		}
		c.state = circuitHalfOpen
	case circuitHalfOpen:
		if c.halfOpenFlight {
			c.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	if c.state == circuitHalfOpen {
		c.halfOpenFlight = true
	}
	c.mu.Unlock()

	err := fn()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == circuitHalfOpen {
		c.halfOpenFlight = false
	}

	if err == nil {
		c.state = circuitClosed
		c.failures = 0
		return nil
	}

	if c.state == circuitHalfOpen {
		c.state = circuitOpen
		c.openedAt = now
		c.failures = 0
		return err
	}

	c.failures++
	if c.failures >= c.maxFails {
		c.state = circuitOpen
		c.openedAt = now
	}
	return err
}

// RateLimiter is a token-bucket limiter smoothing the request rate against a
// collaborator API. A nil limiter admits every call.
type RateLimiter struct {
	mu     sync.Mutex
	refill time.Duration
	burst  int
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	tokens int
	last   time.Time
}

// NewRateLimiter constructs a limiter that restores one token every refill.
func NewRateLimiter(refill time.Duration, burst int) *RateLimiter {
	l := &RateLimiter{
		refill: refill,
		burst:  burst,
		now:    time.Now,
		sleep:  sleepWithContext,
	}
	l.tokens = burst
	l.last = l.now()
	return l
}

// Wait blocks until a token is available or the context ends.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l == nil || l.refill <= 0 || l.burst <= 0 {
		if ctx == nil {
			return nil
		}
		return ctx.Err()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.mu.Lock()
		now := l.now()
		l.restore(now)
		if l.tokens > 0 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := l.refill - now.Sub(l.last)
		l.mu.Unlock()
		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *RateLimiter) restore(now time.Time) {
	elapsed := now.Sub(l.last)
	if elapsed < l.refill {
		return
	}
	add := int(elapsed / l.refill)
	l.tokens += add
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = l.last.Add(time.Duration(add) * l.refill)
}

// ReliableCustomerDirectory wraps a CustomerDirectory with rate limit,
// retry, and breaker controls. Lookup calls are read-only and safe to retry.
type ReliableCustomerDirectory struct {
	base    CustomerDirectory
	limiter *RateLimiter
	breaker *CircuitBreaker
	retry   RetryPolicy
}

// NewReliableCustomerDirectory constructs a reliability-wrapped directory.
func NewReliableCustomerDirectory(base CustomerDirectory, limiter *RateLimiter, breaker *CircuitBreaker, retry RetryPolicy) *ReliableCustomerDirectory {
	return &ReliableCustomerDirectory{base: base, limiter: limiter, breaker: breaker, retry: retry}
}

func (c *ReliableCustomerDirectory) GetCustomer(ctx context.Context, id string) (Customer, error) {
	var customer Customer
	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			var err error
			customer, err = c.base.GetCustomer(ctx, id)
			return err
		})
	})
	if errors.Is(err, ErrCircuitOpen) {
		return Customer{}, WrapError(CodeUnavailable, "customer directory unavailable", err)
	}
	return customer, err
}

// ReliableInventory wraps an Inventory with rate limit, retry, and breaker
// controls. Lookups retry; the stock decrement does not, since it mutates.
type ReliableInventory struct {
	base    Inventory
	limiter *RateLimiter
	breaker *CircuitBreaker
	retry   RetryPolicy
}

// NewReliableInventory constructs a reliability-wrapped inventory.
func NewReliableInventory(base Inventory, limiter *RateLimiter, breaker *CircuitBreaker, retry RetryPolicy) *ReliableInventory {
	return &ReliableInventory{base: base, limiter: limiter, breaker: breaker, retry: retry}
}

func (c *ReliableInventory) GetProduct(ctx context.Context, id string) (Product, error) {
	var product Product
	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			var err error
			product, err = c.base.GetProduct(ctx, id)
			return err
		})
	})
	if errors.Is(err, ErrCircuitOpen) {
		return Product{}, WrapError(CodeUnavailable, "inventory service unavailable", err)
	}
	return product, err
}

func (c *ReliableInventory) DecrementStock(ctx context.Context, id string, quantity int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.breaker.Execute(func() error {
		return c.base.DecrementStock(ctx, id, quantity)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return WrapError(CodeUnavailable, "inventory service unavailable", err)
	}
	return err
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

func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
