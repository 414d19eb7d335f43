package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the transactional outbox port. The persister inserts the
// postback entry in the same transaction as the terminal session save;
// the worker drains pending entries onto the delivery stream.
type Repository interface {
	// Insert creates a new entry, inside the caller's transaction when
	// one is on the context.
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns up to limit entries awaiting publication.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished records that the entry reached the stream.
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed bumps the retry count, flipping the entry to failed once
	// MaxRetries is reached.
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
