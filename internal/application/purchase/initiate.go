package purchase

import (
	"context"
	"errors"

	"github.com/cassiomorais/checkout/internal/domain/cascade"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/google/uuid"
)

// InitiateUseCase creates a purchase process for a new checkout session.
type InitiateUseCase struct {
	selector  *cascade.Selector
	sites     SiteConfigs
	persister *Persister
}

// NewInitiateUseCase creates a new InitiateUseCase.
func NewInitiateUseCase(selector *cascade.Selector, sites SiteConfigs, persister *Persister) *InitiateUseCase {
	return &InitiateUseCase{selector: selector, sites: sites, persister: persister}
}

// Execute builds the cascade for the context and persists a process in
// state Initialized. An empty cascade is a purchase-level decline, not a
// system error: the process is created already declined and the postback
// (if configured) is enqueued.
func (uc *InitiateUseCase) Execute(ctx context.Context, pctx purchase.Context) (*purchase.Process, error) {
	if pctx.SessionID == "" {
		pctx.SessionID = uuid.New().String()
	}

	siteCfg, err := uc.sites.Get(ctx, pctx.SiteID)
	if err != nil {
		return nil, err
	}

	casc, err := uc.selector.Build(ctx, cascade.Input{
		Country:       pctx.Country,
		PaymentType:   pctx.PaymentType,
		PaymentMethod: pctx.PaymentMethod,
		TrafficSource: pctx.TrafficSource,
		CardBIN:       pctx.CardBIN,
		SiteConfig:    siteCfg,
	})
	if err != nil && !errors.Is(err, domainErrors.ErrNoEligibleBiller) {
		return nil, err
	}

	p, perr := purchase.NewProcess(pctx, casc)
	if perr != nil {
		return nil, perr
	}

	if errors.Is(err, domainErrors.ErrNoEligibleBiller) {
		if err := p.Decline("no eligible biller"); err != nil {
			return nil, err
		}
	}

	if err := uc.persister.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
