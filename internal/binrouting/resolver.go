// Package binrouting resolves card-network-specific biller ordering from a
// card BIN.
package binrouting

import (
	"context"
	"strings"
	"time"

	"github.com/cassiomorais/checkout/internal/callgate"
	"github.com/cassiomorais/checkout/internal/domain/cascade"
)

// DependencyID is the call-gate key for bin-routing lookups.
const DependencyID = "bin-routing"

// StaticResolver maps BIN prefixes to card networks and networks to a
// preferred biller ordering. It stands in for the bin/biller-mapping
// service in local runs and tests.
type StaticResolver struct {
	networks map[string]string              // BIN prefix -> network
	ordering map[string][]cascade.Candidate // network -> ordered candidates
}

// NewStaticResolver creates a resolver with the default network table.
func NewStaticResolver(ordering map[string][]cascade.Candidate) *StaticResolver {
	return &StaticResolver{
		networks: map[string]string{
			"4": "visa",
			"5": "mastercard",
			"3": "amex",
			"6": "discover",
		},
		ordering: ordering,
	}
}

// ResolveCandidates returns the network-specific candidate ordering for a
// BIN, or nil when the network has no configured ordering.
func (r *StaticResolver) ResolveCandidates(ctx context.Context, bin, country string, paymentType cascade.PaymentType) ([]cascade.Candidate, error) {
	if paymentType != cascade.PaymentTypeCard || bin == "" {
		return nil, nil
	}
	for prefix, network := range r.networks {
		if strings.HasPrefix(bin, prefix) {
			return r.ordering[network], nil
		}
	}
	return nil, nil
}

// GatedResolver routes resolver calls through the shared call gate. No
// fallback is configured: the cascade selector treats resolver failures as
// advisory and falls back to the site ordering on its own.
type GatedResolver struct {
	gate    *callgate.Gate
	inner   cascade.BinResolver
	timeout time.Duration
}

// NewGatedResolver wraps a resolver with the call gate.
func NewGatedResolver(gate *callgate.Gate, inner cascade.BinResolver, timeout time.Duration) *GatedResolver {
	return &GatedResolver{gate: gate, inner: inner, timeout: timeout}
}

func (g *GatedResolver) ResolveCandidates(ctx context.Context, bin, country string, paymentType cascade.PaymentType) ([]cascade.Candidate, error) {
	return callgate.Invoke(g.gate, ctx, DependencyID, g.timeout, nil,
		func(ctx context.Context) ([]cascade.Candidate, error) {
			return g.inner.ResolveCandidates(ctx, bin, country, paymentType)
		})
}
