// Package fraud implements the risk gate consulted before biller attempts.
package fraud

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/cascade"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

// Verdict is the outcome of a risk evaluation.
type Verdict string

const (
	Approve Verdict = "approve"
	Deny    Verdict = "deny"
	// Flag lets the attempt proceed but marks it for downstream review.
	Flag Verdict = "flag"
)

// Signals are the request-scoped risk inputs gathered by the boundary layer.
type Signals struct {
	IPAddress     string
	Email         string
	DeviceID      string
	VelocityCount int // purchases seen for this member in the window
}

// Scorer is the external risk-scoring provider. Calls to it are routed
// through the resilient call gate by the orchestrator.
type Scorer interface {
	Score(ctx context.Context, pctx purchase.Context, signals Signals) (float64, error)
}

// Strategy evaluates risk for one payment-type family. Fallback is the
// verdict applied when the evaluation cannot be reached at all (circuit
// open, timeout): Approve for advisory checks, Deny for mandatory ones.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, pctx purchase.Context, signals Signals) (Verdict, error)
	Fallback() Verdict
}

// Factory selects the strategy for a payment type.
type Factory struct {
	strategies map[cascade.PaymentType]Strategy
	catchAll   Strategy
}

// NewFactory creates a factory with the standard strategy per family:
// card purchases get the mandatory scored check, cheque/ACH the advisory
// one, and everything else the permissive catch-all.
func NewFactory(scorer Scorer) *Factory {
	f := &Factory{
		strategies: make(map[cascade.PaymentType]Strategy),
		catchAll:   &permissiveStrategy{},
	}
	f.Register(cascade.PaymentTypeCard, NewCardStrategy(scorer))
	f.Register(cascade.PaymentTypeCheque, NewChequeStrategy(scorer))
	return f
}

// Register sets the strategy for a payment type.
func (f *Factory) Register(pt cascade.PaymentType, s Strategy) {
	f.strategies[pt] = s
}

// ForPaymentType returns the strategy for a payment type, falling back to
// the permissive catch-all for unknown families.
func (f *Factory) ForPaymentType(pt cascade.PaymentType) Strategy {
	if s, ok := f.strategies[pt]; ok {
		return s
	}
	return f.catchAll
}
