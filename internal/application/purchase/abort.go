package purchase

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

// AbortUseCase cancels an in-flight purchase on behalf of the consumer.
type AbortUseCase struct {
	persister *Persister
}

// NewAbortUseCase creates a new AbortUseCase.
func NewAbortUseCase(persister *Persister) *AbortUseCase {
	return &AbortUseCase{persister: persister}
}

// Execute moves the process to Aborted and persists it. Aborting a
// purchase that already reached a terminal state fails with
// ErrInvalidStateTransition.
func (uc *AbortUseCase) Execute(ctx context.Context, sessionID, reason string) (*purchase.Process, error) {
	p, err := uc.persister.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := p.Abort(reason); err != nil {
		return nil, err
	}

	if err := uc.persister.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
