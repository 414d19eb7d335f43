package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cascade"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/domain/purchase"
	"github.com/cassiomorais/checkout/internal/session"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SiteConfigs resolves the routing configuration for a site.
type SiteConfigs interface {
	Get(ctx context.Context, siteID string) (cascade.SiteConfig, error)
}

// StaticSiteConfigs is a map-backed SiteConfigs implementation.
type StaticSiteConfigs map[string]cascade.SiteConfig

// DefaultSiteKey is the catch-all entry used for sites with no dedicated
// configuration.
const DefaultSiteKey = "default"

func (s StaticSiteConfigs) Get(ctx context.Context, siteID string) (cascade.SiteConfig, error) {
	if cfg, ok := s[siteID]; ok {
		return cfg, nil
	}
	if cfg, ok := s[DefaultSiteKey]; ok {
		cfg.SiteID = siteID
		return cfg, nil
	}
	return cascade.SiteConfig{}, domainErrors.NewValidationError("site_id", "unknown site "+siteID)
}

// PostbackPolicy is attached to every enqueued postback so the worker
// knows the delivery bounds.
type PostbackPolicy struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// GateTimeouts are the per-dependency call timeouts the orchestrator uses.
type GateTimeouts struct {
	Biller     time.Duration
	Fraud      time.Duration
	BinRouting time.Duration
}

// Persister loads and saves processes through the session codec and store,
// and enqueues the postback when a save crosses into a terminal state. It
// is the only unit of work the use cases share.
type Persister struct {
	store      session.Store
	codec      *session.Codec
	txManager  TransactionManager
	outboxRepo outbox.Repository
	postback   PostbackPolicy
}

// NewPersister creates a Persister.
func NewPersister(
	store session.Store,
	codec *session.Codec,
	txManager TransactionManager,
	outboxRepo outbox.Repository,
	postback PostbackPolicy,
) *Persister {
	return &Persister{
		store:      store,
		codec:      codec,
		txManager:  txManager,
		outboxRepo: outboxRepo,
		postback:   postback,
	}
}

// Load rehydrates a process from its stored payload.
func (ps *Persister) Load(ctx context.Context, sessionID string) (*purchase.Process, error) {
	payload, version, err := ps.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	p, err := ps.codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	p.Version = version
	return p, nil
}

// Create inserts a new session. A process already terminal at creation
// (declined at initiation) gets its postback enqueued in the same
// transaction.
func (ps *Persister) Create(ctx context.Context, p *purchase.Process) error {
	payload, err := ps.codec.Encode(p)
	if err != nil {
		return err
	}
	if p.IsTerminal() && p.Context.PostbackURL != "" {
		return ps.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := ps.store.Create(txCtx, p.SessionID, payload); err != nil {
				return err
			}
			p.Version = 1
			return ps.outboxRepo.Insert(txCtx, ps.postbackEntry(p))
		})
	}
	if err := ps.store.Create(ctx, p.SessionID, payload); err != nil {
		return err
	}
	p.Version = 1
	return nil
}

// Save persists the process with an optimistic version check. The load,
// mutate, save cycle is one unit of work per request; a losing concurrent
// writer surfaces ErrConcurrentModification to its caller.
func (ps *Persister) Save(ctx context.Context, p *purchase.Process) error {
	payload, err := ps.codec.Encode(p)
	if err != nil {
		return err
	}
	if p.IsTerminal() && p.Context.PostbackURL != "" {
		return ps.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			version, err := ps.store.Save(txCtx, p.SessionID, payload, p.Version)
			if err != nil {
				return err
			}
			p.Version = version
			return ps.outboxRepo.Insert(txCtx, ps.postbackEntry(p))
		})
	}
	version, err := ps.store.Save(ctx, p.SessionID, payload, p.Version)
	if err != nil {
		return err
	}
	p.Version = version
	return nil
}

// postbackEntry builds the enqueue payload for the final outcome.
func (ps *Persister) postbackEntry(p *purchase.Process) *outbox.Entry {
	outcome := map[string]any{
		"status":      p.FinalOutcome.Status,
		"biller":      p.FinalOutcome.Biller,
		"reason":      p.FinalOutcome.Reason,
		"occurred_at": p.FinalOutcome.OccurredAt.Format(time.RFC3339Nano),
		"attempts":    len(p.Attempts),
	}
	return outbox.NewEntry("purchase", p.SessionID, "purchase.finalized", map[string]any{
		"session_id":     p.SessionID,
		"site_id":        p.SiteID,
		"url":            p.Context.PostbackURL,
		"max_attempts":   ps.postback.MaxAttempts,
		"retry_delay_ms": ps.postback.RetryDelay.Milliseconds(),
		"outcome":        outcome,
	})
}
