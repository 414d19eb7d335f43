package cascade

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	candidates []Candidate
	err        error
}

func (r *stubResolver) ResolveCandidates(ctx context.Context, bin, country string, pt PaymentType) ([]Candidate, error) {
	return r.candidates, r.err
}

func siteConfig(billers ...string) SiteConfig {
	return SiteConfig{
		SiteID:         "site-1",
		EnabledBillers: billers,
		DefaultPaymentMethods: map[string]string{
			"cc":  "visa",
			"ach": "ach",
		},
	}
}

func cardInput(cfg SiteConfig) Input {
	return Input{
		Country:     "US",
		PaymentType: PaymentTypeCard,
		SiteConfig:  cfg,
	}
}

func billerNames(c Cascade) []string {
	names := make([]string, 0, len(c.Candidates))
	for _, cand := range c.Candidates {
		names = append(names, cand.Biller)
	}
	return names
}

func TestCascade_CursorNeverRetreats(t *testing.T) {
	c := Cascade{Candidates: []Candidate{
		{Biller: "a", PaymentMethod: "visa"},
		{Biller: "b", PaymentMethod: "visa"},
	}}

	first, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "a", first.Biller)
	assert.Equal(t, 2, c.Remaining())

	c.Advance()
	second, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "b", second.Biller)
	assert.Equal(t, 1, c.Remaining())

	c.Advance()
	assert.True(t, c.Exhausted())
	_, ok = c.Current()
	assert.False(t, ok)

	// Advancing past the end stays exhausted.
	c.Advance()
	assert.True(t, c.Exhausted())
	assert.Equal(t, 0, c.Remaining())
}

func TestSelector_Build_SiteOrder(t *testing.T) {
	s := NewSelector(nil)

	c, err := s.Build(context.Background(), cardInput(siteConfig("netbilling", "epoch", "rocketgate")))
	require.NoError(t, err)
	assert.Equal(t, []string{"netbilling", "epoch", "rocketgate"}, billerNames(c))
	assert.Equal(t, "visa", c.Candidates[0].PaymentMethod)
}

func TestSelector_Build_Deterministic(t *testing.T) {
	s := NewSelector(nil)
	in := cardInput(siteConfig("netbilling", "epoch"))

	first, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	second, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSelector_Build_BinOrderingTakesPrecedence(t *testing.T) {
	resolver := &stubResolver{candidates: []Candidate{
		{Biller: "epoch", PaymentMethod: "visa"},
	}}
	s := NewSelector(resolver)

	in := cardInput(siteConfig("netbilling", "epoch"))
	in.CardBIN = "411111"

	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch", "netbilling"}, billerNames(c))
}

func TestSelector_Build_ResolverErrorIsAdvisory(t *testing.T) {
	resolver := &stubResolver{err: errors.New("mapping service down")}
	s := NewSelector(resolver)

	in := cardInput(siteConfig("netbilling", "epoch"))
	in.CardBIN = "411111"

	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"netbilling", "epoch"}, billerNames(c))
}

func TestSelector_Build_ResolverCandidatesFilteredBySite(t *testing.T) {
	resolver := &stubResolver{candidates: []Candidate{
		{Biller: "not-enabled", PaymentMethod: "visa"},
		{Biller: "epoch", PaymentMethod: "visa"},
	}}
	s := NewSelector(resolver)

	in := cardInput(siteConfig("netbilling", "epoch"))
	in.CardBIN = "411111"

	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch", "netbilling"}, billerNames(c))
}

func TestSelector_Build_NoDuplicates(t *testing.T) {
	resolver := &stubResolver{candidates: []Candidate{
		{Biller: "netbilling", PaymentMethod: "visa"},
		{Biller: "netbilling", PaymentMethod: "visa"},
	}}
	s := NewSelector(resolver)

	in := cardInput(siteConfig("netbilling", "epoch"))
	in.CardBIN = "411111"

	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"netbilling", "epoch"}, billerNames(c))
}

func TestSelector_Build_TrafficSourcePromotion(t *testing.T) {
	cfg := siteConfig("netbilling", "epoch", "rocketgate")
	cfg.TrafficSourceOverrides = map[string]string{"affiliate-7": "rocketgate"}
	s := NewSelector(nil)

	in := cardInput(cfg)
	in.TrafficSource = "affiliate-7"

	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"rocketgate", "netbilling", "epoch"}, billerNames(c))
}

func TestSelector_Build_UnknownTrafficSourceIgnored(t *testing.T) {
	cfg := siteConfig("netbilling", "epoch")
	cfg.TrafficSourceOverrides = map[string]string{"affiliate-7": "epoch"}
	s := NewSelector(nil)

	in := cardInput(cfg)
	in.TrafficSource = "organic"

	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"netbilling", "epoch"}, billerNames(c))
}

func TestSelector_Build_DefaultMethodPerPaymentType(t *testing.T) {
	s := NewSelector(nil)

	in := Input{
		Country:     "US",
		PaymentType: PaymentTypeCheque,
		SiteConfig:  siteConfig("netbilling"),
	}
	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "ach", c.Candidates[0].PaymentMethod)
}

func TestSelector_Build_ExplicitMethodWins(t *testing.T) {
	s := NewSelector(nil)

	in := cardInput(siteConfig("netbilling"))
	in.PaymentMethod = "mastercard"

	c, err := s.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "mastercard", c.Candidates[0].PaymentMethod)
}

func TestSelector_Build_EmptyCascade(t *testing.T) {
	s := NewSelector(nil)

	_, err := s.Build(context.Background(), cardInput(siteConfig()))
	assert.ErrorIs(t, err, domainErrors.ErrNoEligibleBiller)
}

func TestSelector_Build_MissingRequiredFields(t *testing.T) {
	s := NewSelector(nil)

	_, err := s.Build(context.Background(), Input{PaymentType: PaymentTypeCard, SiteConfig: siteConfig("netbilling")})
	var validationErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
