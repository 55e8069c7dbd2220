package api

import (
	"context"

	"artboard/internal/models"
)

// Store interfaces live here, on the consumer side: handlers declare
// exactly what they call and the repository implementations satisfy them.
// Handlers never depend on gorm directly.

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type CanvasStore interface {
	Create(ctx context.Context, ownerID, title string) (*models.Canvas, error)
	GetByID(ctx context.Context, id string) (*models.Canvas, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Canvas, error)
	Update(ctx context.Context, id string, patch *models.CanvasUpdate) (*models.Canvas, error)
	Delete(ctx context.Context, id string) error
}

type SnapshotStore interface {
	GetLatest(ctx context.Context, canvasID string) (*models.Snapshot, error)
	Prune(ctx context.Context, canvasID string, keepCount int) error
	DeleteByCanvas(ctx context.Context, canvasID string) error
}

// TokenIssuer signs identity tokens for authenticated users.
type TokenIssuer interface {
	Sign(userID string) (string, error)
}
