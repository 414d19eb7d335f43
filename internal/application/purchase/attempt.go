package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/billers"
	"github.com/cassiomorais/checkout/internal/callgate"
	"github.com/cassiomorais/checkout/internal/domain/cascade"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/cassiomorais/checkout/internal/fraud"
)

// AttemptUseCase drives one biller attempt for a session: fraud gate
// first, then the current cascade candidate through the call gate.
type AttemptUseCase struct {
	persister *Persister
	billers   *billers.Registry
	fraud     *fraud.Factory
	gate      *callgate.Gate
	timeouts  GateTimeouts
}

// NewAttemptUseCase creates a new AttemptUseCase.
func NewAttemptUseCase(
	persister *Persister,
	registry *billers.Registry,
	fraudFactory *fraud.Factory,
	gate *callgate.Gate,
	timeouts GateTimeouts,
) *AttemptUseCase {
	return &AttemptUseCase{
		persister: persister,
		billers:   registry,
		fraud:     fraudFactory,
		gate:      gate,
		timeouts:  timeouts,
	}
}

// Execute runs a single attempt. A fraud deny short-circuits to Declined
// without touching any biller; otherwise the current candidate is charged
// and the cascade advances on failure. The mutated process is persisted as
// one unit of work.
func (uc *AttemptUseCase) Execute(ctx context.Context, sessionID string, signals fraud.Signals) (*purchase.Process, error) {
	p, err := uc.persister.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !p.CanAttempt() {
		return nil, domainErrors.NewDomainError(
			"invalid_state",
			"cannot attempt biller in state "+string(p.State),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	verdict := evaluateFraud(ctx, uc.gate, uc.fraud, uc.timeouts.Fraud, p, signals)
	if verdict == fraud.Deny {
		if err := p.Decline("denied by fraud gate"); err != nil {
			return nil, err
		}
		if err := uc.persister.Save(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	flagged := verdict == fraud.Flag

	cand, ok := p.CurrentCandidate()
	if !ok {
		return nil, domainErrors.ErrCascadeExhausted
	}

	if err := uc.attemptCandidate(ctx, p, cand, flagged); err != nil {
		return nil, err
	}

	if err := uc.persister.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (uc *AttemptUseCase) attemptCandidate(ctx context.Context, p *purchase.Process, cand cascade.Candidate, flagged bool) error {
	adapter, err := uc.billers.Get(cand.Biller)
	if err != nil {
		_, rerr := p.RecordFailure(cand, purchase.FailureUnavailable, err.Error(), flagged)
		return rerr
	}

	result, err := callgate.Invoke(uc.gate, ctx, billerDependencyID(cand.Biller), uc.timeouts.Biller, nil,
		func(ctx context.Context) (*billers.ChargeResult, error) {
			return adapter.AttemptCharge(ctx, chargeRequest(p))
		})
	if err != nil {
		_, rerr := p.RecordFailure(cand, classifyFailure(err), err.Error(), flagged)
		return rerr
	}

	return applyChargeResult(p, cand, result, flagged)
}

// --- helpers shared with the 3DS use case ---

func billerDependencyID(biller string) string {
	return fmt.Sprintf("biller:%s", biller)
}

func chargeRequest(p *purchase.Process) billers.ChargeRequest {
	cand, _ := p.CurrentCandidate()
	return billers.ChargeRequest{
		SessionID:     p.SessionID,
		SiteID:        p.SiteID,
		AmountCents:   p.Context.AmountCents,
		Currency:      p.Context.Currency,
		Country:       p.Context.Country,
		PaymentMethod: cand.PaymentMethod,
		CardBIN:       p.Context.CardBIN,
		MemberID:      p.Context.MemberID,
	}
}

// applyChargeResult maps the biller's three-way decision onto the process.
func applyChargeResult(p *purchase.Process, cand cascade.Candidate, result *billers.ChargeResult, flagged bool) error {
	switch result.Outcome {
	case billers.ChargeApproved:
		return p.RecordApproval(cand, flagged)
	case billers.ChargeChallengeRequired:
		if result.ThreeDS == nil {
			_, err := p.RecordFailure(cand, purchase.FailureUnavailable, "challenge required without 3ds parameters", flagged)
			return err
		}
		return p.RecordChallenge(cand, threeDSContextFrom(*result.ThreeDS), flagged)
	default:
		_, err := p.RecordFailure(cand, purchase.FailureDeclined, result.DeclineReason, flagged)
		return err
	}
}

// classifyFailure keeps ambiguous results distinguishable in the audit
// trail: a timeout is not an explicit decline, but both advance the
// cascade.
func classifyFailure(err error) purchase.FailureKind {
	switch {
	case errors.Is(err, domainErrors.ErrDependencyTimeout), errors.Is(err, domainErrors.ErrBillerTimeout):
		return purchase.FailureTimeout
	default:
		return purchase.FailureUnavailable
	}
}

func threeDSContextFrom(params billers.ThreeDSParams) purchase.ThreeDSContext {
	now := time.Now().UTC()
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return purchase.ThreeDSContext{
		PAReq:          params.PAReq,
		ACSURL:         params.ACSURL,
		MD:             params.MD,
		ChallengeToken: params.ChallengeToken,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}

// evaluateFraud runs the payment-type strategy through the call gate with
// the strategy's configured fallback verdict.
func evaluateFraud(ctx context.Context, gate *callgate.Gate, factory *fraud.Factory, timeout time.Duration, p *purchase.Process, signals fraud.Signals) fraud.Verdict {
	strategy := factory.ForPaymentType(p.Context.PaymentType)
	fallback := strategy.Fallback()
	verdict, err := callgate.Invoke(gate, ctx, strategy.Name(), timeout, &fallback,
		func(ctx context.Context) (fraud.Verdict, error) {
			return strategy.Evaluate(ctx, p.Context, signals)
		})
	if err != nil || verdict == "" {
		return fallback
	}
	return verdict
}
