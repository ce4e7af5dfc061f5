package extraction

import (
	"context"

	"github.com/google/uuid"
)

type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Run, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Run, int, error)
}
