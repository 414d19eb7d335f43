package cascade

import (
	"context"
	"fmt"

	"github.com/cassiomorais/checkout/internal/domain/errors"
)

// PaymentType discriminates the payment instrument family.
type PaymentType string

const (
	PaymentTypeCard   PaymentType = "cc"
	PaymentTypeCheque PaymentType = "ach"
	PaymentTypeOther  PaymentType = "other"
)

// Candidate is one (biller, payment method) pair in the fallback order.
type Candidate struct {
	Biller        string `json:"biller"`
	PaymentMethod string `json:"payment_method"`
}

// Cascade is the ordered candidate list plus a cursor into it. The list is
// built once at purchase initiation and never reordered; the cursor only
// moves forward.
type Cascade struct {
	Candidates []Candidate `json:"candidates"`
	Cursor     int         `json:"cursor"`
}

// Current returns the candidate at the cursor, or false when exhausted.
func (c *Cascade) Current() (Candidate, bool) {
	if c.Cursor >= len(c.Candidates) {
		return Candidate{}, false
	}
	return c.Candidates[c.Cursor], true
}

// Advance moves the cursor past the current candidate.
func (c *Cascade) Advance() {
	if c.Cursor < len(c.Candidates) {
		c.Cursor++
	}
}

// Exhausted reports whether every candidate has been consumed.
func (c *Cascade) Exhausted() bool {
	return c.Cursor >= len(c.Candidates)
}

// Remaining returns the number of candidates not yet tried.
func (c *Cascade) Remaining() int {
	return len(c.Candidates) - c.Cursor
}

// SiteConfig is the per-site routing configuration consulted when building
// a cascade.
type SiteConfig struct {
	SiteID                 string
	EnabledBillers         []string          // configured priority order
	DefaultPaymentMethods  map[string]string // payment type -> method
	TrafficSourceOverrides map[string]string // traffic source -> preferred biller
}

// BinResolver looks up card-network-specific candidate ordering for a BIN.
type BinResolver interface {
	ResolveCandidates(ctx context.Context, bin, country string, paymentType PaymentType) ([]Candidate, error)
}

// Input carries everything the selector needs to build a cascade.
type Input struct {
	Country       string
	PaymentType   PaymentType
	PaymentMethod string
	TrafficSource string
	CardBIN       string
	SiteConfig    SiteConfig
}

// Selector builds cascades. Deterministic for identical inputs: the BIN
// resolver supplies network-specific ordering, the site configuration
// supplies the base priority list, and a traffic-source override can
// promote a single biller to the front.
type Selector struct {
	resolver BinResolver
}

// NewSelector creates a cascade selector backed by the given BIN resolver.
func NewSelector(resolver BinResolver) *Selector {
	return &Selector{resolver: resolver}
}

// Build produces the ordered candidate list for a purchase. Returns
// ErrNoEligibleBiller when no candidate survives filtering; callers report
// that as a purchase-level decline, not a system error.
func (s *Selector) Build(ctx context.Context, in Input) (Cascade, error) {
	if in.Country == "" || in.PaymentType == "" {
		return Cascade{}, errors.NewValidationError("cascade", "country and payment type are required")
	}

	method := in.PaymentMethod
	if method == "" {
		method = in.SiteConfig.DefaultPaymentMethods[string(in.PaymentType)]
	}
	if method == "" {
		method = string(in.PaymentType)
	}

	enabled := make(map[string]bool, len(in.SiteConfig.EnabledBillers))
	for _, b := range in.SiteConfig.EnabledBillers {
		enabled[b] = true
	}

	var candidates []Candidate
	seen := make(map[Candidate]bool)
	add := func(c Candidate) {
		if !enabled[c.Biller] || seen[c] {
			return
		}
		seen[c] = true
		candidates = append(candidates, c)
	}

	// Card-network ordering from the BIN mapping service takes precedence.
	// The lookup is advisory: on error the site order below still applies.
	if in.PaymentType == PaymentTypeCard && in.CardBIN != "" && s.resolver != nil {
		resolved, err := s.resolver.ResolveCandidates(ctx, in.CardBIN, in.Country, in.PaymentType)
		if err == nil {
			for _, c := range resolved {
				if c.PaymentMethod == "" {
					c.PaymentMethod = method
				}
				add(c)
			}
		}
	}

	for _, biller := range in.SiteConfig.EnabledBillers {
		add(Candidate{Biller: biller, PaymentMethod: method})
	}

	if len(candidates) == 0 {
		return Cascade{}, fmt.Errorf("site %s, country %s, type %s: %w",
			in.SiteConfig.SiteID, in.Country, in.PaymentType, errors.ErrNoEligibleBiller)
	}

	// A traffic-source override promotes one biller to the front without
	// disturbing the relative order of the rest.
	if preferred, ok := in.SiteConfig.TrafficSourceOverrides[in.TrafficSource]; ok {
		candidates = promote(candidates, preferred)
	}

	return Cascade{Candidates: candidates}, nil
}

func promote(candidates []Candidate, biller string) []Candidate {
	for i, c := range candidates {
		if c.Biller == biller && i > 0 {
			promoted := make([]Candidate, 0, len(candidates))
			promoted = append(promoted, c)
			promoted = append(promoted, candidates[:i]...)
			promoted = append(promoted, candidates[i+1:]...)
			return promoted
		}
	}
	return candidates
}
