package collab

import (
	"context"
	"fmt"
	"log"
	"time"

	"artboard/internal/canvasdoc"
	"artboard/internal/models"
)

// CanvasStore is the canvas-record collaborator consumed by the bridge and
// the authorization gate.
type CanvasStore interface {
	GetByID(ctx context.Context, id string) (*models.Canvas, error)
	Touch(ctx context.Context, id string) error
}

// SnapshotStore is the snapshot collaborator. Consumed only by the bridge.
type SnapshotStore interface {
	GetLatest(ctx context.Context, canvasID string) (*models.Snapshot, error)
	Create(ctx context.Context, snapshot *models.Snapshot) error
}

// PersistenceBridge converts between in-memory canvas documents and durable
// snapshot bytes. The session registry never touches snapshot storage
// directly.
type PersistenceBridge struct {
	canvases  CanvasStore
	snapshots SnapshotStore
}

func NewPersistenceBridge(canvases CanvasStore, snapshots SnapshotStore) *PersistenceBridge {
	return &PersistenceBridge{canvases: canvases, snapshots: snapshots}
}

// Fetch loads the latest snapshot bytes for a canvas. It returns (nil, nil)
// for a malformed id (rejected before any store access) or an absent canvas
// record, a freshly encoded empty document when the canvas exists but has
// no snapshot yet, and an ErrLoad-wrapped error on store read failure.
func (b *PersistenceBridge) Fetch(ctx context.Context, canvasID string) ([]byte, error) {
	if !models.IsValidCanvasID(canvasID) {
		log.Printf("bridge: invalid canvas id format: %q", canvasID)
		return nil, nil
	}

	canvas, err := b.canvases.GetByID(ctx, canvasID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if canvas == nil {
		log.Printf("bridge: canvas not found: %s", canvasID)
		return nil, nil
	}

	snapshot, err := b.snapshots.GetLatest(ctx, canvasID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if snapshot == nil || len(snapshot.Data) == 0 {
		// No snapshot yet: the document is created lazily with defaults.
		return EmptyDocumentState(), nil
	}
	return snapshot.Data, nil
}

// Store appends a new snapshot row for the canvas. Malformed ids and
// missing canvas records are skipped silently (logged, non-fatal to the
// live session); snapshot write failures propagate to the flush scheduler.
func (b *PersistenceBridge) Store(ctx context.Context, canvasID string, data []byte, updatedBy string) error {
	if !models.IsValidCanvasID(canvasID) {
		log.Printf("bridge: invalid canvas id format: %q", canvasID)
		return nil
	}

	canvas, err := b.canvases.GetByID(ctx, canvasID)
	if err != nil {
		return fmt.Errorf("failed to resolve canvas %s: %w", canvasID, err)
	}
	if canvas == nil {
		log.Printf("bridge: canvas not found, dropping snapshot: %s", canvasID)
		return nil
	}

	snapshot := &models.Snapshot{
		CanvasID:  canvasID,
		Data:      data,
		CreatedBy: updatedBy,
		CreatedAt: time.Now(),
	}
	if err := b.snapshots.Create(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", canvasID, err)
	}

	// The snapshot is already durable; a failed timestamp bump is not
	// worth failing the flush over.
	if err := b.canvases.Touch(ctx, canvasID); err != nil {
		log.Printf("bridge: failed to touch canvas %s: %v", canvasID, err)
	}
	return nil
}

// EmptyDocumentState encodes a fresh canvas document with the default
// metadata: 1080x1080, white background, zoom 1, origin pan.
func EmptyDocumentState() []byte {
	doc := canvasdoc.New()
	meta := models.DefaultMetadata()
	doc.SetMeta(models.MetaWidth, meta.Width)
	doc.SetMeta(models.MetaHeight, meta.Height)
	doc.SetMeta(models.MetaBackgroundColor, meta.BackgroundColor)
	doc.SetMeta(models.MetaZoom, meta.Zoom)
	doc.SetMeta(models.MetaPanX, meta.PanX)
	doc.SetMeta(models.MetaPanY, meta.PanY)
	return doc.EncodeState()
}
