package repository

import (
	"context"
	"errors"
	"fmt"

	"artboard/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CanvasRepositoryImpl handles canvas record storage using GORM. Canvas
// records carry ownership and access control; document content lives in
// snapshots.
type CanvasRepositoryImpl struct {
	db *gorm.DB
}

func NewCanvasRepository(db *gorm.DB) *CanvasRepositoryImpl {
	return &CanvasRepositoryImpl{db: db}
}

// Create inserts a new canvas record owned by ownerID. The canvas id is
// generated in the BeforeCreate hook.
func (r *CanvasRepositoryImpl) Create(ctx context.Context, ownerID, title string) (*models.Canvas, error) {
	canvas := &models.Canvas{
		Title:         title,
		Owner:         ownerID,
		Collaborators: []string{},
		Permission:    models.PermissionPrivate,
	}
	if err := r.db.WithContext(ctx).Create(canvas).Error; err != nil {
		return nil, fmt.Errorf("failed to create canvas: %w", err)
	}
	return canvas, nil
}

// GetByID retrieves a canvas record. Returns (nil, nil) when no record
// exists so callers can distinguish absence from store failure.
func (r *CanvasRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Canvas, error) {
	var canvas models.Canvas
	err := r.db.WithContext(ctx).First(&canvas, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canvas: %w", err)
	}
	return &canvas, nil
}

// ListForUser returns canvases the user owns or collaborates on.
func (r *CanvasRepositoryImpl) ListForUser(ctx context.Context, userID string) ([]*models.Canvas, error) {
	var canvases []*models.Canvas
	err := r.db.WithContext(ctx).
		Where("owner = ? OR ? = ANY(collaborators)", userID, userID).
		Order("updated_at DESC").
		Find(&canvases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list canvases: %w", err)
	}
	return canvases, nil
}

// Update applies a partial update to a canvas record.
func (r *CanvasRepositoryImpl) Update(ctx context.Context, id string, patch *models.CanvasUpdate) (*models.Canvas, error) {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Collaborators != nil {
		updates["collaborators"] = pq.StringArray(patch.Collaborators)
	}
	if patch.Permission != nil {
		updates["permission"] = *patch.Permission
	}
	if len(updates) > 0 {
		err := r.db.WithContext(ctx).Model(&models.Canvas{}).Where("id = ?", id).Updates(updates).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update canvas: %w", err)
		}
	}
	return r.GetByID(ctx, id)
}

// Touch bumps the canvas updated_at timestamp. Called by the persistence
// bridge when a new snapshot is written.
func (r *CanvasRepositoryImpl) Touch(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Canvas{}).
		Where("id = ?", id).
		Update("updated_at", gorm.Expr("NOW()")).Error
	if err != nil {
		return fmt.Errorf("failed to touch canvas: %w", err)
	}
	return nil
}

// Delete removes a canvas record.
func (r *CanvasRepositoryImpl) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Canvas{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete canvas: %w", err)
	}
	return nil
}
