package repository

import (
	"context"
	"errors"
	"fmt"

	"artboard/internal/models"

	"gorm.io/gorm"
)

// SnapshotRepositoryImpl handles snapshot storage. Snapshots are
// append-only; the latest row per canvas is authoritative.
type SnapshotRepositoryImpl struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepositoryImpl {
	return &SnapshotRepositoryImpl{db: db}
}

// Create appends a new snapshot row.
func (r *SnapshotRepositoryImpl) Create(ctx context.Context, snapshot *models.Snapshot) error {
	if err := r.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot for a canvas, or (nil, nil)
// when none exists yet.
func (r *SnapshotRepositoryImpl) GetLatest(ctx context.Context, canvasID string) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	err := r.db.WithContext(ctx).
		Where("canvas_id = ?", canvasID).
		Order("created_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// Prune keeps the most recent keepCount snapshots for a canvas and deletes
// the rest. Call periodically to prevent unbounded growth.
func (r *SnapshotRepositoryImpl) Prune(ctx context.Context, canvasID string, keepCount int) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Snapshot{}).
		Where("canvas_id = ?", canvasID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count snapshots: %w", err)
	}
	if count <= int64(keepCount) {
		return nil
	}

	var cutoff models.Snapshot
	if err := r.db.WithContext(ctx).
		Where("canvas_id = ?", canvasID).
		Order("created_at DESC").
		Offset(keepCount - 1).
		First(&cutoff).Error; err != nil {
		return fmt.Errorf("failed to find prune cutoff: %w", err)
	}

	result := r.db.WithContext(ctx).
		Where("canvas_id = ? AND created_at < ?", canvasID, cutoff.CreatedAt).
		Delete(&models.Snapshot{})
	if result.Error != nil {
		return fmt.Errorf("failed to prune snapshots: %w", result.Error)
	}
	return nil
}

// DeleteByCanvas removes all snapshots for a canvas. Used when the canvas
// record itself is deleted.
func (r *SnapshotRepositoryImpl) DeleteByCanvas(ctx context.Context, canvasID string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Snapshot{}, "canvas_id = ?", canvasID).Error; err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}
