package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassiomorais/checkout/internal/postback"
)

// PostbackRepository records every delivery and its terminal status.
type PostbackRepository struct {
	pool *pgxpool.Pool
}

func NewPostbackRepository(pool *pgxpool.Pool) *PostbackRepository {
	return &PostbackRepository{pool: pool}
}

func (r *PostbackRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *PostbackRepository) Upsert(ctx context.Context, d *postback.Delivery) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO postbacks
		 (id, session_id, site_id, url, payload, status, attempts, max_attempts, retry_delay_ms, last_error, created_at, updated_at, delivered_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status,
		     attempts = EXCLUDED.attempts,
		     last_error = EXCLUDED.last_error,
		     updated_at = EXCLUDED.updated_at,
		     delivered_at = EXCLUDED.delivered_at`,
		d.ID, d.SessionID, d.SiteID, d.URL, d.Payload, string(d.Status),
		d.Attempts, d.MaxAttempts, d.RetryDelay.Milliseconds(), d.LastError,
		d.CreatedAt, d.UpdatedAt, d.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert postback: %w", err)
	}
	return nil
}

func (r *PostbackRepository) GetBySession(ctx context.Context, sessionID string) (*postback.Delivery, error) {
	d := &postback.Delivery{}
	var (
		status       string
		retryDelayMS int64
	)
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, session_id, site_id, url, payload, status, attempts, max_attempts, retry_delay_ms, last_error, created_at, updated_at, delivered_at
		 FROM postbacks WHERE session_id = $1
		 ORDER BY created_at DESC LIMIT 1`, sessionID,
	).Scan(
		&d.ID, &d.SessionID, &d.SiteID, &d.URL, &d.Payload, &status,
		&d.Attempts, &d.MaxAttempts, &retryDelayMS, &d.LastError,
		&d.CreatedAt, &d.UpdatedAt, &d.DeliveredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get postback: %w", err)
	}
	d.Status = postback.Status(status)
	d.RetryDelay = time.Duration(retryDelayMS) * time.Millisecond
	return d, nil
}
