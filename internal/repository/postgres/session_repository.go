package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/session"
)

// SessionRepository stores encoded purchase sessions with an optimistic
// version column. It implements session.Store.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *SessionRepository) Load(ctx context.Context, sessionID string) (session.Payload, int64, error) {
	var (
		payload session.Payload
		version int64
	)
	err := r.db(ctx).QueryRow(ctx,
		`SELECT schema_version, body, version FROM purchase_sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&payload.SchemaVersion, &payload.Body, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Payload{}, 0, domainErrors.ErrSessionNotFound
		}
		return session.Payload{}, 0, fmt.Errorf("load session: %w", err)
	}
	return payload, version, nil
}

func (r *SessionRepository) Create(ctx context.Context, sessionID string, payload session.Payload) error {
	now := time.Now().UTC()
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO purchase_sessions (session_id, schema_version, body, version, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, $4, $4)`,
		sessionID, payload.SchemaVersion, []byte(payload.Body), now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.NewDomainError(
				"duplicate_session",
				"session "+sessionID+" already exists",
				domainErrors.ErrConcurrentModification,
			)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Save(ctx context.Context, sessionID string, payload session.Payload, expectedVersion int64) (int64, error) {
	var newVersion int64
	err := r.db(ctx).QueryRow(ctx,
		`UPDATE purchase_sessions
		 SET schema_version = $1, body = $2, version = version + 1, updated_at = $3
		 WHERE session_id = $4 AND version = $5
		 RETURNING version`,
		payload.SchemaVersion, []byte(payload.Body), time.Now().UTC(), sessionID, expectedVersion,
	).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a lost race from a missing row.
			var exists bool
			if probeErr := r.db(ctx).QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM purchase_sessions WHERE session_id = $1)`,
				sessionID,
			).Scan(&exists); probeErr == nil && !exists {
				return 0, domainErrors.ErrSessionNotFound
			}
			return 0, domainErrors.ErrConcurrentModification
		}
		return 0, fmt.Errorf("save session: %w", err)
	}
	return newVersion, nil
}
