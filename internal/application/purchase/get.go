package purchase

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/purchase"
)

// GetUseCase reads back a purchase process for status queries.
type GetUseCase struct {
	persister *Persister
}

// NewGetUseCase creates a new GetUseCase.
func NewGetUseCase(persister *Persister) *GetUseCase {
	return &GetUseCase{persister: persister}
}

func (uc *GetUseCase) Execute(ctx context.Context, sessionID string) (*purchase.Process, error) {
	return uc.persister.Load(ctx, sessionID)
}
