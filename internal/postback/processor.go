package postback

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

// StreamSource is the slice of the delivery stream consumer the processor
// drives: read new messages, ack finished ones, and claim messages another
// consumer read but never acked.
type StreamSource interface {
	Read(ctx context.Context) ([]redis.XStream, error)
	Ack(ctx context.Context, messageID string) error
	AutoClaim(ctx context.Context, minIdle time.Duration, start string) ([]redis.XMessage, string, error)
}

// DeadLetterer parks messages the processor cannot make sense of.
type DeadLetterer interface {
	PublishToDLQ(ctx context.Context, sessionID string, reason string, originalData map[string]any) error
}

// Lock serializes delivery work per session across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds the per-session lock for a delivery.
type LockFactory func(sessionID string) Lock

// Processor consumes the delivery stream and runs each message through the
// bounded retry deliverer. A message is acked only after its delivery
// reached a terminal status; anything else stays in the pending list until
// the reclaim loop picks it up again.
type Processor struct {
	source    StreamSource
	dlq       DeadLetterer
	deliverer *Deliverer
	repo      Repository
	locks     LockFactory
	metrics   *observability.Metrics
	logger    zerolog.Logger
	stream    string
}

// ProcessorDeps collects the processor's collaborators.
type ProcessorDeps struct {
	Source    StreamSource
	DLQ       DeadLetterer
	Deliverer *Deliverer
	Repo      Repository
	Locks     LockFactory
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
	Stream    string
}

// NewProcessor creates a Processor.
func NewProcessor(deps ProcessorDeps) *Processor {
	return &Processor{
		source:    deps.Source,
		dlq:       deps.DLQ,
		deliverer: deps.Deliverer,
		repo:      deps.Repo,
		locks:     deps.Locks,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		stream:    deps.Stream,
	}
}

// Run consumes new messages until the context is canceled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := p.source.Read(ctx)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				p.handle(ctx, msg)
			}
		}
	}
}

// Reclaim periodically takes over messages that another consumer read but
// never acked, and runs them through the same handling as fresh reads.
// minIdle must exceed the per-session lock TTL so a consumer that is still
// alive and delivering is never raced.
func (p *Processor) Reclaim(ctx context.Context, interval, minIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		p.reclaimOnce(ctx, minIdle)
	}
}

func (p *Processor) reclaimOnce(ctx context.Context, minIdle time.Duration) {
	start := "0-0"
	for {
		messages, next, err := p.source.AutoClaim(ctx, minIdle, start)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to claim pending messages")
			return
		}
		for _, msg := range messages {
			p.handle(ctx, msg)
		}
		if next == "0-0" {
			return
		}
		start = next
	}
}

func (p *Processor) handle(ctx context.Context, msg redis.XMessage) {
	sessionID, _ := msg.Values["session_id"].(string)
	raw, _ := msg.Values["payload"].(string)

	var pm Message
	if err := json.Unmarshal([]byte(raw), &pm); err != nil || pm.URL == "" {
		p.logger.Error().Str("session_id", sessionID).Msg("Unreadable postback message, parking in DLQ")
		p.dlq.PublishToDLQ(ctx, sessionID, "unreadable postback message", map[string]any{"payload": raw})
		p.source.Ack(ctx, msg.ID)
		return
	}

	lock := p.locks(pm.SessionID)
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		// Another consumer holds this session. The message stays unacked
		// in our pending list; the reclaim loop retries it once the lock
		// TTL has passed.
		p.logger.Warn().Str("session_id", pm.SessionID).Msg("Could not acquire lock, leaving message pending")
		return
	}

	start := time.Now()
	if err := p.process(ctx, pm); err != nil {
		p.logger.Error().Err(err).Str("session_id", pm.SessionID).Msg("Postback delivery interrupted")
		p.metrics.WorkerMessagesProcessed.WithLabelValues(p.stream, "error").Inc()
		lock.Release(ctx)
		return
	}
	p.metrics.WorkerMessagesProcessed.WithLabelValues(p.stream, "success").Inc()
	p.metrics.WorkerProcessingDuration.WithLabelValues(p.stream).Observe(time.Since(start).Seconds())

	lock.Release(ctx)
	p.source.Ack(ctx, msg.ID)
}

func (p *Processor) process(ctx context.Context, pm Message) error {
	// Skip if an earlier consumer already finished this session.
	if existing, err := p.repo.GetBySession(ctx, pm.SessionID); err == nil && existing != nil && existing.Status != StatusPending {
		return nil
	}

	delivery, err := NewDelivery(pm)
	if err != nil {
		return err
	}
	if err := p.repo.Upsert(ctx, delivery); err != nil {
		return err
	}

	if err := p.deliverer.Deliver(ctx, delivery); err != nil {
		// Interrupted mid-retry; the record stays pending and the stream
		// message stays unacked for the reclaim loop.
		p.repo.Upsert(context.WithoutCancel(ctx), delivery)
		return err
	}

	p.metrics.PostbacksTotal.WithLabelValues(string(delivery.Status)).Inc()
	p.metrics.PostbackAttempts.WithLabelValues(string(delivery.Status)).Observe(float64(delivery.Attempts))

	return p.repo.Upsert(ctx, delivery)
}
