package controller

import (
	"time"

	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, optional fields).
// Controllers convert these to the domain purchase context before calling
// the use cases.

// CreatePurchaseRequest holds the input for initiating a purchase.
type CreatePurchaseRequest struct {
	SessionID       string `json:"session_id,omitempty"`
	SiteID          string `json:"site_id" validate:"required"`
	BusinessGroupID string `json:"business_group_id,omitempty"`
	Country         string `json:"country" validate:"required,len=2"`
	PaymentType     string `json:"payment_type" validate:"required,oneof=cc ach other"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	TrafficSource   string `json:"traffic_source,omitempty"`
	CardBIN         string `json:"card_bin,omitempty" validate:"omitempty,min=6,max=8,numeric"`
	AmountCents     int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency        string `json:"currency" validate:"required,len=3"`
	MemberID        string `json:"member_id,omitempty"`
	PostbackURL     string `json:"postback_url,omitempty" validate:"omitempty,url"`
}

// AttemptRequest carries the fraud signals collected at submit time.
type AttemptRequest struct {
	IPAddress     string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	DeviceID      string `json:"device_id,omitempty"`
	VelocityCount int    `json:"velocity_count,omitempty" validate:"gte=0"`
}

// ThreeDSRequest carries the challenge response from the client.
type ThreeDSRequest struct {
	MD    string `json:"md,omitempty"`
	PARes string `json:"pares,omitempty"`
}

// AbortRequest holds the consumer-supplied abort reason.
type AbortRequest struct {
	Reason string `json:"reason,omitempty"`
}

// --- Response DTOs ---

// AttemptResponse represents one audit-trail entry in API responses.
type AttemptResponse struct {
	Biller        string    `json:"biller"`
	PaymentMethod string    `json:"payment_method"`
	Outcome       string    `json:"outcome"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	FraudFlagged  bool      `json:"fraud_flagged,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ThreeDSResponse exposes the challenge parameters the client needs to
// redirect the cardholder. The challenge token stays server-side.
type ThreeDSResponse struct {
	ACSURL    string    `json:"acs_url"`
	PAReq     string    `json:"pareq"`
	MD        string    `json:"md"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// FinalOutcomeResponse represents the terminal result of a purchase.
type FinalOutcomeResponse struct {
	Status     string    `json:"status"`
	Biller     string    `json:"biller,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PurchaseResponse represents a purchase process in API responses.
type PurchaseResponse struct {
	SessionID           string                `json:"session_id"`
	SiteID              string                `json:"site_id"`
	State               string                `json:"state"`
	PaymentType         string                `json:"payment_type"`
	AmountCents         int64                 `json:"amount_cents"`
	Currency            string                `json:"currency"`
	Attempts            []AttemptResponse     `json:"attempts"`
	RemainingCandidates int                   `json:"remaining_candidates"`
	ThreeDS             *ThreeDSResponse      `json:"three_ds,omitempty"`
	FinalOutcome        *FinalOutcomeResponse `json:"final_outcome,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromProcess converts a domain process to an API response.
func FromProcess(p *purchase.Process) *PurchaseResponse {
	resp := &PurchaseResponse{
		SessionID:           p.SessionID,
		SiteID:              p.SiteID,
		State:               string(p.State),
		PaymentType:         string(p.Context.PaymentType),
		AmountCents:         p.Context.AmountCents,
		Currency:            p.Context.Currency,
		Attempts:            make([]AttemptResponse, 0, len(p.Attempts)),
		RemainingCandidates: p.Cascade.Remaining(),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}

	for _, a := range p.Attempts {
		resp.Attempts = append(resp.Attempts, AttemptResponse{
			Biller:        a.Biller,
			PaymentMethod: a.PaymentMethod,
			Outcome:       string(a.Outcome),
			FailureKind:   string(a.FailureKind),
			FailureReason: a.FailureReason,
			FraudFlagged:  a.FraudFlagged,
			Timestamp:     a.Timestamp,
		})
	}

	if p.ThreeDS != nil && p.InThreeDS() {
		resp.ThreeDS = &ThreeDSResponse{
			ACSURL:    p.ThreeDS.ACSURL,
			PAReq:     p.ThreeDS.PAReq,
			MD:        p.ThreeDS.MD,
			ExpiresAt: p.ThreeDS.ExpiresAt,
		}
	}

	if p.FinalOutcome != nil {
		resp.FinalOutcome = &FinalOutcomeResponse{
			Status:     p.FinalOutcome.Status,
			Biller:     p.FinalOutcome.Biller,
			Reason:     p.FinalOutcome.Reason,
			OccurredAt: p.FinalOutcome.OccurredAt,
		}
	}

	return resp
}
