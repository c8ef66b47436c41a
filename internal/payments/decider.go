package payments

import (
	"math/rand"
	"sync"
)

// Outcome is a simulated gateway verdict for an in-bounds charge.
type Outcome string

const (
	OutcomeApproved          Outcome = "approved"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomeCardDeclined      Outcome = "card_declined"
)

// Decider decides the outcome of an in-bounds charge. Injectable so tests
// can force outcomes instead of sampling the distribution.
type Decider interface {
	Decide(amount float64) Outcome
}

// RandomDecider approves with a fixed probability and otherwise picks one of
// the two decline reasons at random.
type RandomDecider struct {
	mu          sync.Mutex
	successRate float64
	rng         *rand.Rand
}

// NewRandomDecider constructs a decider with the given approval probability.
func NewRandomDecider(successRate float64, seed int64) *RandomDecider {
	return &RandomDecider{
		successRate: successRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (d *RandomDecider) Decide(amount float64) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rng.Float64() < d.successRate {
		return OutcomeApproved
	}
	if d.rng.Intn(2) == 0 {
		return OutcomeInsufficientFunds
	}
	return OutcomeCardDeclined
}

// FixedDecider always returns the same outcome. Used in tests and to force
// deterministic behavior in development.
type FixedDecider struct {
	Outcome Outcome
}

func (d FixedDecider) Decide(float64) Outcome { return d.Outcome }
