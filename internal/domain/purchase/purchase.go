package purchase

import (
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cascade"
	"github.com/cassiomorais/checkout/internal/domain/errors"
)

// State represents the purchase position in the orchestration state machine
type State string

const (
	StateInitialized       State = "initialized"
	StateAwaitingBiller    State = "awaiting_biller_attempt"
	StateAwaiting3DSLookup State = "awaiting_3ds_lookup"
	StateAwaiting3DSAuth   State = "awaiting_3ds_authenticate"
	StateAwaiting3DSComp   State = "awaiting_3ds_complete"
	StateApproved          State = "approved"
	StateDeclined          State = "declined"
	StateAborted           State = "aborted"
)

// AttemptOutcome is the three-way result of a biller attempt.
type AttemptOutcome string

const (
	OutcomeApproved          AttemptOutcome = "approved"
	OutcomeChallengeRequired AttemptOutcome = "challenge_required"
	OutcomeFailed            AttemptOutcome = "failed"
)

// FailureKind distinguishes why an attempt failed. Timeouts and explicit
// declines both advance the cascade but stay distinguishable in the audit
// trail.
type FailureKind string

const (
	FailureDeclined      FailureKind = "declined"
	FailureTimeout       FailureKind = "timeout"
	FailureUnavailable   FailureKind = "unavailable"
	FailureThreeDSExpired FailureKind = "threeds_expired"
)

// AttemptRecord is an immutable fact: what was tried, when, and why it
// failed. The sequence on the process is the audit trail.
type AttemptRecord struct {
	Biller        string         `json:"biller"`
	PaymentMethod string         `json:"payment_method"`
	Outcome       AttemptOutcome `json:"outcome"`
	FailureKind   FailureKind    `json:"failure_kind,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	FraudFlagged  bool           `json:"fraud_flagged,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ThreeDSContext holds the challenge parameters between 3DS steps. Present
// on a process only while it sits in an Awaiting3DS* state.
type ThreeDSContext struct {
	Biller         string    `json:"biller"`
	PAReq          string    `json:"pareq"`
	ACSURL         string    `json:"acs_url"`
	MD             string    `json:"md"`
	ChallengeToken string    `json:"challenge_token"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Validate checks the stored context against a client-supplied MD and the
// clock. A mismatch or expiry is treated as a failed attempt by callers.
func (c *ThreeDSContext) Validate(md string, now time.Time) error {
	if c == nil {
		return errors.ErrThreeDSNotActive
	}
	if md != "" && md != c.MD {
		return errors.ErrThreeDSContextExpired
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return errors.ErrThreeDSContextExpired
	}
	return nil
}

// FinalOutcome is set exactly once, on transition into a terminal state.
type FinalOutcome struct {
	Status     string    `json:"status"` // approved, declined, aborted
	Biller     string    `json:"biller,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Context is the immutable purchase context captured at initiation.
type Context struct {
	SessionID       string               `json:"session_id"`
	SiteID          string               `json:"site_id"`
	BusinessGroupID string               `json:"business_group_id"`
	Country         string               `json:"country"`
	PaymentType     cascade.PaymentType  `json:"payment_type"`
	PaymentMethod   string               `json:"payment_method,omitempty"`
	TrafficSource   string               `json:"traffic_source,omitempty"`
	CardBIN         string               `json:"card_bin,omitempty"`
	AmountCents     int64                `json:"amount_cents"`
	Currency        string               `json:"currency"`
	MemberID        string               `json:"member_id,omitempty"`
	PostbackURL     string               `json:"postback_url,omitempty"`
}

// Validate checks the mandatory context fields.
func (c Context) Validate() error {
	if c.SessionID == "" {
		return errors.NewValidationError("session_id", "cannot be empty")
	}
	if c.SiteID == "" {
		return errors.NewValidationError("site_id", "cannot be empty")
	}
	if c.Country == "" {
		return errors.NewValidationError("country", "cannot be empty")
	}
	if c.PaymentType == "" {
		return errors.NewValidationError("payment_type", "cannot be empty")
	}
	if c.AmountCents <= 0 {
		return errors.NewValidationError("amount_cents", "must be greater than 0")
	}
	if len(c.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// Process is the aggregate root for one checkout session.
type Process struct {
	SessionID       string          `json:"session_id"`
	SiteID          string          `json:"site_id"`
	BusinessGroupID string          `json:"business_group_id"`
	Context         Context         `json:"context"`
	State           State           `json:"state"`
	Cascade         cascade.Cascade `json:"cascade"`
	Attempts        []AttemptRecord `json:"attempts"`
	ThreeDS         *ThreeDSContext `json:"three_ds,omitempty"`
	FinalOutcome    *FinalOutcome   `json:"final_outcome,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Version is the persistence row version used for optimistic locking.
	// Managed by the session store, never serialized into the payload body.
	Version int64 `json:"-"`
}

// NewProcess creates a process in state Initialized with the given cascade.
func NewProcess(ctx Context, casc cascade.Cascade) (*Process, error) {
	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidContext, err)
	}
	now := time.Now().UTC()
	return &Process{
		SessionID:       ctx.SessionID,
		SiteID:          ctx.SiteID,
		BusinessGroupID: ctx.BusinessGroupID,
		Context:         ctx,
		State:           StateInitialized,
		Cascade:         casc,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanTransitionTo checks if the process can transition to the given state
func (p *Process) CanTransitionTo(next State) bool {
	transitions := map[State][]State{
		StateInitialized: {
			StateAwaitingBiller,
			StateAwaiting3DSLookup,
			StateApproved,
			StateDeclined,
			StateAborted,
		},
		StateAwaitingBiller: {
			StateAwaiting3DSLookup,
			StateApproved,
			StateDeclined,
			StateAborted,
		},
		StateAwaiting3DSLookup: {
			StateAwaiting3DSAuth,
			StateAwaitingBiller, // lookup failed, cascade continues
			StateApproved,       // not enrolled, biller approved directly
			StateDeclined,
			StateAborted,
		},
		StateAwaiting3DSAuth: {
			StateAwaiting3DSComp,
			StateAwaitingBiller,
			StateApproved,
			StateDeclined,
			StateAborted,
		},
		StateAwaiting3DSComp: {
			StateApproved,
			StateDeclined,
			StateAwaitingBiller,
			StateAborted,
		},
		StateApproved: {}, // Terminal state
		StateDeclined: {}, // Terminal state
		StateAborted:  {}, // Terminal state
	}

	allowed, exists := transitions[p.State]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == next {
			return true
		}
	}
	return false
}

func (p *Process) transitionTo(next State) error {
	if !p.CanTransitionTo(next) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.State)+" to "+string(next),
			errors.ErrInvalidStateTransition,
		)
	}
	p.State = next
	p.UpdatedAt = time.Now().UTC()

	// The 3DS context lives exactly as long as the 3DS states do.
	if !p.InThreeDS() {
		p.ThreeDS = nil
	}
	return nil
}

// InThreeDS reports whether the process sits in one of the 3DS states.
func (p *Process) InThreeDS() bool {
	return p.State == StateAwaiting3DSLookup ||
		p.State == StateAwaiting3DSAuth ||
		p.State == StateAwaiting3DSComp
}

// IsTerminal checks if the process is in a terminal state
func (p *Process) IsTerminal() bool {
	return p.State == StateApproved ||
		p.State == StateDeclined ||
		p.State == StateAborted
}

// CanAttempt reports whether a biller attempt may be started.
func (p *Process) CanAttempt() bool {
	return p.State == StateInitialized || p.State == StateAwaitingBiller
}

// CurrentCandidate returns the cascade candidate the next attempt targets.
func (p *Process) CurrentCandidate() (cascade.Candidate, bool) {
	return p.Cascade.Current()
}

func (p *Process) appendAttempt(rec AttemptRecord) error {
	if p.FinalOutcome != nil {
		return errors.ErrPurchaseFinalized
	}
	rec.Timestamp = time.Now().UTC()
	p.Attempts = append(p.Attempts, rec)
	return nil
}

func (p *Process) finalize(status, biller, reason string) error {
	if p.FinalOutcome != nil {
		return errors.ErrPurchaseFinalized
	}
	p.FinalOutcome = &FinalOutcome{
		Status:     status,
		Biller:     biller,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	return nil
}

// RecordApproval appends an approved attempt and finalizes the purchase.
func (p *Process) RecordApproval(c cascade.Candidate, fraudFlagged bool) error {
	if err := p.appendAttempt(AttemptRecord{
		Biller:        c.Biller,
		PaymentMethod: c.PaymentMethod,
		Outcome:       OutcomeApproved,
		FraudFlagged:  fraudFlagged,
	}); err != nil {
		return err
	}
	if err := p.finalize("approved", c.Biller, ""); err != nil {
		return err
	}
	return p.transitionTo(StateApproved)
}

// RecordChallenge appends a challenge attempt and enters the 3DS lookup
// state with the given context.
func (p *Process) RecordChallenge(c cascade.Candidate, tds ThreeDSContext, fraudFlagged bool) error {
	if err := p.appendAttempt(AttemptRecord{
		Biller:        c.Biller,
		PaymentMethod: c.PaymentMethod,
		Outcome:       OutcomeChallengeRequired,
		FraudFlagged:  fraudFlagged,
	}); err != nil {
		return err
	}
	tds.Biller = c.Biller
	p.ThreeDS = &tds
	return p.transitionTo(StateAwaiting3DSLookup)
}

// RecordFailure appends a failed attempt and advances the cascade. When the
// cascade is exhausted the purchase is declined; otherwise it returns to
// awaiting the next caller-driven attempt. Reports whether the purchase
// reached a terminal state.
func (p *Process) RecordFailure(c cascade.Candidate, kind FailureKind, reason string, fraudFlagged bool) (terminal bool, err error) {
	if err := p.appendAttempt(AttemptRecord{
		Biller:        c.Biller,
		PaymentMethod: c.PaymentMethod,
		Outcome:       OutcomeFailed,
		FailureKind:   kind,
		FailureReason: reason,
		FraudFlagged:  fraudFlagged,
	}); err != nil {
		return false, err
	}

	p.Cascade.Advance()
	if p.Cascade.Exhausted() {
		if err := p.finalize("declined", "", "cascade exhausted"); err != nil {
			return false, err
		}
		return true, p.transitionTo(StateDeclined)
	}

	if p.State == StateAwaitingBiller {
		// Failure between attempts keeps the state; only bump the clock.
		p.UpdatedAt = time.Now().UTC()
		return false, nil
	}
	return false, p.transitionTo(StateAwaitingBiller)
}

// Decline declines the purchase without a biller attempt: a fraud deny or
// an empty cascade at initiation. No attempt record is appended.
func (p *Process) Decline(reason string) error {
	if err := p.finalize("declined", "", reason); err != nil {
		return err
	}
	return p.transitionTo(StateDeclined)
}

// AdvanceToAuthenticate moves the 3DS sub-flow from lookup to authenticate,
// replacing the challenge parameters with the ones the biller returned.
func (p *Process) AdvanceToAuthenticate(tds ThreeDSContext) error {
	if p.State != StateAwaiting3DSLookup {
		return errors.ErrThreeDSNotActive
	}
	if p.ThreeDS != nil {
		tds.Biller = p.ThreeDS.Biller
	}
	p.ThreeDS = &tds
	return p.transitionTo(StateAwaiting3DSAuth)
}

// AdvanceToComplete moves the 3DS sub-flow from authenticate to complete.
func (p *Process) AdvanceToComplete() error {
	if p.State != StateAwaiting3DSAuth {
		return errors.ErrThreeDSNotActive
	}
	return p.transitionTo(StateAwaiting3DSComp)
}

// Abort finalizes the purchase as aborted. Callable from any non-terminal
// state; used for expired sessions and unrecoverable context errors.
func (p *Process) Abort(reason string) error {
	if p.IsTerminal() {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot abort purchase in state "+string(p.State),
			errors.ErrInvalidStateTransition,
		)
	}
	if err := p.finalize("aborted", "", reason); err != nil {
		return err
	}
	return p.transitionTo(StateAborted)
}
