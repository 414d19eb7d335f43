package session

import "context"

// Store is the persistence collaborator for session payloads. Concurrent
// writers for the same session are serialized by the optimistic version
// check: a save with a stale expectedVersion fails with
// ErrConcurrentModification and the caller retries the whole request.
type Store interface {
	// Load returns the payload and its row version.
	Load(ctx context.Context, sessionID string) (Payload, int64, error)
	// Create inserts a new session at version 1.
	Create(ctx context.Context, sessionID string, payload Payload) error
	// Save overwrites the payload if the stored version still matches
	// expectedVersion, returning the new version.
	Save(ctx context.Context, sessionID string, payload Payload, expectedVersion int64) (int64, error)
}
