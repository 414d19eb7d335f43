package postback

import "context"

// Repository persists delivery records so operators can audit what was
// sent to each merchant and whether it landed.
type Repository interface {
	// Upsert inserts or updates the delivery keyed by its ID.
	Upsert(ctx context.Context, delivery *Delivery) error

	// GetBySession returns the most recent delivery for a session.
	GetBySession(ctx context.Context, sessionID string) (*Delivery, error)
}
