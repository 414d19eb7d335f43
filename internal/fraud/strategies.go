package fraud

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

// Score thresholds applied by the scored strategies. Scores are normalized
// to [0, 1] by the provider.
const (
	cardDenyAbove = 0.85
	cardFlagAbove = 0.60
	achFlagAbove  = 0.70
)

// cardStrategy is the mandatory card check: the purchase is denied outright
// above the deny threshold, and denied on fallback when the scorer is
// unreachable.
type cardStrategy struct {
	scorer Scorer
}

// NewCardStrategy creates the card-payment risk strategy.
func NewCardStrategy(scorer Scorer) Strategy {
	return &cardStrategy{scorer: scorer}
}

func (s *cardStrategy) Name() string      { return "fraud-card" }
func (s *cardStrategy) Fallback() Verdict { return Deny }

func (s *cardStrategy) Evaluate(ctx context.Context, pctx purchase.Context, signals Signals) (Verdict, error) {
	score, err := s.scorer.Score(ctx, pctx, signals)
	if err != nil {
		return "", err
	}
	switch {
	case score >= cardDenyAbove:
		return Deny, nil
	case score >= cardFlagAbove:
		return Flag, nil
	default:
		return Approve, nil
	}
}

// chequeStrategy is advisory: cheque/ACH purchases are never blocked by
// scoring alone, only flagged for review.
type chequeStrategy struct {
	scorer Scorer
}

// NewChequeStrategy creates the cheque/ACH risk strategy.
func NewChequeStrategy(scorer Scorer) Strategy {
	return &chequeStrategy{scorer: scorer}
}

func (s *chequeStrategy) Name() string      { return "fraud-cheque" }
func (s *chequeStrategy) Fallback() Verdict { return Approve }

func (s *chequeStrategy) Evaluate(ctx context.Context, pctx purchase.Context, signals Signals) (Verdict, error) {
	score, err := s.scorer.Score(ctx, pctx, signals)
	if err != nil {
		return "", err
	}
	if score >= achFlagAbove {
		return Flag, nil
	}
	return Approve, nil
}

// permissiveStrategy approves everything; used for payment types with no
// dedicated check.
type permissiveStrategy struct{}

func (s *permissiveStrategy) Name() string      { return "fraud-permissive" }
func (s *permissiveStrategy) Fallback() Verdict { return Approve }

func (s *permissiveStrategy) Evaluate(ctx context.Context, pctx purchase.Context, signals Signals) (Verdict, error) {
	return Approve, nil
}
