package purchase

import (
	"context"
	"time"

	"github.com/cassiomorais/checkout/internal/billers"
	"github.com/cassiomorais/checkout/internal/callgate"
	"github.com/cassiomorais/checkout/internal/domain/cascade"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

// ThreeDSStep names one step of the 3DS sub-flow.
type ThreeDSStep string

const (
	StepLookup       ThreeDSStep = "lookup"
	StepAuthenticate ThreeDSStep = "authenticate"
	StepComplete     ThreeDSStep = "complete"
)

// ThreeDSInput carries the client-supplied challenge response.
type ThreeDSInput struct {
	MD    string
	PARes string
}

// AdvanceThreeDSUseCase drives the lookup, authenticate, and complete
// steps against the biller that raised the challenge. A failure at any
// step falls back into the cascade instead of aborting the purchase.
type AdvanceThreeDSUseCase struct {
	persister *Persister
	billers   *billers.Registry
	gate      *callgate.Gate
	timeouts  GateTimeouts
}

// NewAdvanceThreeDSUseCase creates a new AdvanceThreeDSUseCase.
func NewAdvanceThreeDSUseCase(
	persister *Persister,
	registry *billers.Registry,
	gate *callgate.Gate,
	timeouts GateTimeouts,
) *AdvanceThreeDSUseCase {
	return &AdvanceThreeDSUseCase{
		persister: persister,
		billers:   registry,
		gate:      gate,
		timeouts:  timeouts,
	}
}

// Execute runs one 3DS step for a session and persists the result.
func (uc *AdvanceThreeDSUseCase) Execute(ctx context.Context, sessionID string, step ThreeDSStep, in ThreeDSInput) (*purchase.Process, error) {
	p, err := uc.persister.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !p.InThreeDS() {
		return nil, domainErrors.NewDomainError(
			"invalid_state",
			"purchase in state "+string(p.State)+" has no pending 3ds challenge",
			domainErrors.ErrThreeDSNotActive,
		)
	}

	cand, ok := p.CurrentCandidate()
	if !ok {
		return nil, domainErrors.ErrCascadeExhausted
	}

	switch step {
	case StepLookup:
		err = uc.lookup(ctx, p, cand)
	case StepAuthenticate:
		err = uc.authenticate(ctx, p, cand, in)
	case StepComplete:
		err = uc.complete(ctx, p, cand)
	default:
		return nil, domainErrors.NewValidationError("step", "unknown 3ds step "+string(step))
	}
	if err != nil {
		return nil, err
	}

	if err := uc.persister.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (uc *AdvanceThreeDSUseCase) lookup(ctx context.Context, p *purchase.Process, cand cascade.Candidate) error {
	if p.State != purchase.StateAwaiting3DSLookup {
		return stepOrderError(p.State, StepLookup)
	}
	if err := p.ThreeDS.Validate("", time.Now().UTC()); err != nil {
		_, rerr := p.RecordFailure(cand, purchase.FailureThreeDSExpired, err.Error(), false)
		return rerr
	}

	adapter, err := uc.billers.Get(cand.Biller)
	if err != nil {
		_, rerr := p.RecordFailure(cand, purchase.FailureUnavailable, err.Error(), false)
		return rerr
	}

	result, err := callgate.Invoke(uc.gate, ctx, billerDependencyID(cand.Biller), uc.timeouts.Biller, nil,
		func(ctx context.Context) (*billers.LookupResult, error) {
			return adapter.Lookup3DS(ctx, billers.LookupRequest{
				SessionID:      p.SessionID,
				MD:             p.ThreeDS.MD,
				ChallengeToken: p.ThreeDS.ChallengeToken,
			})
		})
	if err != nil {
		_, rerr := p.RecordFailure(cand, classifyFailure(err), err.Error(), false)
		return rerr
	}

	if result.Enrolled {
		tds := *p.ThreeDS
		if result.Params != nil {
			tds = threeDSContextFrom(*result.Params)
		}
		return p.AdvanceToAuthenticate(tds)
	}

	// Not enrolled: the biller already decided.
	if result.Decision == nil {
		_, rerr := p.RecordFailure(cand, purchase.FailureUnavailable, "not enrolled without a biller decision", false)
		return rerr
	}
	return applyChargeResult(p, cand, result.Decision, false)
}

func (uc *AdvanceThreeDSUseCase) authenticate(ctx context.Context, p *purchase.Process, cand cascade.Candidate, in ThreeDSInput) error {
	if p.State != purchase.StateAwaiting3DSAuth {
		return stepOrderError(p.State, StepAuthenticate)
	}
	if err := p.ThreeDS.Validate(in.MD, time.Now().UTC()); err != nil {
		_, rerr := p.RecordFailure(cand, purchase.FailureThreeDSExpired, err.Error(), false)
		return rerr
	}

	adapter, err := uc.billers.Get(cand.Biller)
	if err != nil {
		_, rerr := p.RecordFailure(cand, purchase.FailureUnavailable, err.Error(), false)
		return rerr
	}

	result, err := callgate.Invoke(uc.gate, ctx, billerDependencyID(cand.Biller), uc.timeouts.Biller, nil,
		func(ctx context.Context) (*billers.AuthenticateResult, error) {
			return adapter.Authenticate3DS(ctx, billers.AuthenticateRequest{
				SessionID: p.SessionID,
				MD:        p.ThreeDS.MD,
				PARes:     in.PARes,
			})
		})
	if err != nil {
		_, rerr := p.RecordFailure(cand, classifyFailure(err), err.Error(), false)
		return rerr
	}

	if !result.Authenticated {
		_, rerr := p.RecordFailure(cand, purchase.FailureDeclined, result.Reason, false)
		return rerr
	}

	// Authentication passed; finalize with the biller right away.
	if err := p.AdvanceToComplete(); err != nil {
		return err
	}
	return uc.complete(ctx, p, cand)
}

func (uc *AdvanceThreeDSUseCase) complete(ctx context.Context, p *purchase.Process, cand cascade.Candidate) error {
	if p.State != purchase.StateAwaiting3DSComp {
		return stepOrderError(p.State, StepComplete)
	}

	adapter, err := uc.billers.Get(cand.Biller)
	if err != nil {
		_, rerr := p.RecordFailure(cand, purchase.FailureUnavailable, err.Error(), false)
		return rerr
	}

	md, token := p.ThreeDS.MD, p.ThreeDS.ChallengeToken
	result, err := callgate.Invoke(uc.gate, ctx, billerDependencyID(cand.Biller), uc.timeouts.Biller, nil,
		func(ctx context.Context) (*billers.ChargeResult, error) {
			return adapter.Complete3DS(ctx, billers.CompleteRequest{
				SessionID:      p.SessionID,
				MD:             md,
				ChallengeToken: token,
			})
		})
	if err != nil {
		_, rerr := p.RecordFailure(cand, classifyFailure(err), err.Error(), false)
		return rerr
	}

	switch result.Outcome {
	case billers.ChargeApproved:
		return p.RecordApproval(cand, false)
	case billers.ChargeDeclined:
		_, rerr := p.RecordFailure(cand, purchase.FailureDeclined, result.DeclineReason, false)
		return rerr
	default:
		// A second challenge on completion is not part of the contract.
		_, rerr := p.RecordFailure(cand, purchase.FailureUnavailable, "unexpected challenge on 3ds completion", false)
		return rerr
	}
}

func stepOrderError(state purchase.State, step ThreeDSStep) error {
	return domainErrors.NewDomainError(
		"invalid_state",
		"cannot run 3ds "+string(step)+" in state "+string(state),
		domainErrors.ErrInvalidStateTransition,
	)
}
