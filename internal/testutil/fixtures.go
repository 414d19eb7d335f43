package testutil

import (
	"testing"

	"github.com/cassiomorais/checkout/internal/domain/cascade"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/google/uuid"
)

// ValidContext returns a card purchase context that passes validation.
func ValidContext(sessionID string) purchase.Context {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return purchase.Context{
		SessionID:       sessionID,
		SiteID:          "site-1",
		BusinessGroupID: "bg-1",
		Country:         "US",
		PaymentType:     cascade.PaymentTypeCard,
		PaymentMethod:   "visa",
		CardBIN:         "411111",
		AmountCents:     2999,
		Currency:        "USD",
		MemberID:        "member-1",
	}
}

// CascadeOf builds a cascade over the given billers, all using the same
// payment method.
func CascadeOf(method string, billerNames ...string) cascade.Cascade {
	candidates := make([]cascade.Candidate, 0, len(billerNames))
	for _, b := range billerNames {
		candidates = append(candidates, cascade.Candidate{Biller: b, PaymentMethod: method})
	}
	return cascade.Cascade{Candidates: candidates}
}

// NewTestProcess builds a fresh process over the given billers.
func NewTestProcess(t *testing.T, billerNames ...string) *purchase.Process {
	t.Helper()
	if len(billerNames) == 0 {
		billerNames = []string{"netbilling", "epoch"}
	}
	p, err := purchase.NewProcess(ValidContext(""), CascadeOf("visa", billerNames...))
	if err != nil {
		t.Fatalf("build test process: %v", err)
	}
	return p
}

// TestSiteConfig returns a site configuration enabling the given billers
// in order.
func TestSiteConfig(billerNames ...string) cascade.SiteConfig {
	if len(billerNames) == 0 {
		billerNames = []string{"netbilling", "epoch"}
	}
	return cascade.SiteConfig{
		SiteID:         "site-1",
		EnabledBillers: billerNames,
		DefaultPaymentMethods: map[string]string{
			"cc":  "visa",
			"ach": "ach",
		},
	}
}
