package billers

import (
	"context"
	"time"
)

// ChargeOutcome is the three-way decision a biller returns for a charge.
type ChargeOutcome string

const (
	ChargeApproved          ChargeOutcome = "approved"
	ChargeDeclined          ChargeOutcome = "declined"
	ChargeChallengeRequired ChargeOutcome = "challenge_required"
)

// ThreeDSParams are the challenge parameters a biller hands back when a
// charge needs a 3DS challenge.
type ThreeDSParams struct {
	PAReq          string
	ACSURL         string
	MD             string
	ChallengeToken string
	TTL            time.Duration
}

// ChargeResult is returned by AttemptCharge and Complete3DS.
type ChargeResult struct {
	Outcome       ChargeOutcome
	TransactionID string
	DeclineReason string
	ThreeDS       *ThreeDSParams // set when Outcome is ChargeChallengeRequired
}

// ChargeRequest carries the purchase context a biller needs for a charge.
type ChargeRequest struct {
	SessionID     string
	SiteID        string
	AmountCents   int64
	Currency      string
	Country       string
	PaymentMethod string
	CardBIN       string
	MemberID      string
}

// LookupRequest starts the 3DS sub-flow for a pending challenge.
type LookupRequest struct {
	SessionID      string
	MD             string
	ChallengeToken string
}

// LookupResult either reports the card as not enrolled — in which case the
// biller already made its decision — or carries refreshed challenge
// parameters for the authenticate step.
type LookupResult struct {
	Enrolled bool
	Params   *ThreeDSParams // set when Enrolled
	Decision *ChargeResult  // set when not Enrolled
}

// AuthenticateRequest carries the client challenge response.
type AuthenticateRequest struct {
	SessionID string
	MD        string
	PARes     string
}

// AuthenticateResult reports whether the cardholder passed the challenge.
type AuthenticateResult struct {
	Authenticated bool
	Reason        string
}

// CompleteRequest finalizes an authenticated 3DS charge.
type CompleteRequest struct {
	SessionID      string
	MD             string
	ChallengeToken string
}

// Adapter is the opaque capability set each biller exposes. All calls are
// synchronous and are routed through the resilient call gate by callers.
type Adapter interface {
	// Name returns the biller name.
	Name() string
	// AttemptCharge attempts to charge the purchase.
	AttemptCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// Lookup3DS checks enrollment and fetches challenge parameters.
	Lookup3DS(ctx context.Context, req LookupRequest) (*LookupResult, error)
	// Authenticate3DS verifies the client challenge response.
	Authenticate3DS(ctx context.Context, req AuthenticateRequest) (*AuthenticateResult, error)
	// Complete3DS finalizes the charge after a successful challenge.
	Complete3DS(ctx context.Context, req CompleteRequest) (*ChargeResult, error)
}
