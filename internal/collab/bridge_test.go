package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"artboard/internal/canvasdoc"
	"artboard/internal/models"
)

type fakeCanvasStore struct {
	canvases map[string]*models.Canvas
	getErr   error
	touched  []string
	getCalls int
}

func (f *fakeCanvasStore) GetByID(ctx context.Context, id string) (*models.Canvas, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.canvases[id], nil
}

func (f *fakeCanvasStore) Touch(ctx context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeSnapshotStore struct {
	latest    map[string]*models.Snapshot
	created   []*models.Snapshot
	getErr    error
	createErr error
	getCalls  int
}

func (f *fakeSnapshotStore) GetLatest(ctx context.Context, canvasID string) (*models.Snapshot, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.latest[canvasID], nil
}

func (f *fakeSnapshotStore) Create(ctx context.Context, s *models.Snapshot) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, s)
	return nil
}

const testCanvasID = "507f1f77bcf86cd799439011"

func newStores() (*fakeCanvasStore, *fakeSnapshotStore) {
	return &fakeCanvasStore{
			canvases: map[string]*models.Canvas{
				testCanvasID: {ID: testCanvasID, Owner: "owner-1", Collaborators: []string{"collab-1"}},
			},
		}, &fakeSnapshotStore{
			latest: map[string]*models.Snapshot{},
		}
}

func TestFetchRejectsInvalidIDBeforeStoreAccess(t *testing.T) {
	canvases, snapshots := newStores()
	bridge := NewPersistenceBridge(canvases, snapshots)

	for _, id := range []string{"", "short", "not-hexadecimal-at-all!!", "507f1f77bcf86cd79943901"} {
		data, err := bridge.Fetch(context.Background(), id)
		assert.Equal(t, nil, err)
		if data != nil {
			t.Fatalf("expected nil data for id %q", id)
		}
	}
	assert.Equal(t, 0, canvases.getCalls)
	assert.Equal(t, 0, snapshots.getCalls)
}

func TestFetchMissingCanvas(t *testing.T) {
	canvases, snapshots := newStores()
	bridge := NewPersistenceBridge(canvases, snapshots)

	data, err := bridge.Fetch(context.Background(), "aaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Equal(t, nil, err)
	if data != nil {
		t.Fatal("expected nil data for missing canvas")
	}
	assert.Equal(t, 0, snapshots.getCalls)
}

func TestFetchReturnsEmptyDefaultWhenNoSnapshot(t *testing.T) {
	canvases, snapshots := newStores()
	bridge := NewPersistenceBridge(canvases, snapshots)

	data, err := bridge.Fetch(context.Background(), testCanvasID)
	assert.Equal(t, nil, err)

	doc, err := canvasdoc.NewFromState(data)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, doc.Len())
	bg, _ := doc.Meta(models.MetaBackgroundColor)
	assert.Equal(t, "#ffffff", bg)
	width, _ := doc.Meta(models.MetaWidth)
	assert.Equal(t, float64(1080), width)
}

func TestFetchReturnsLatestSnapshotBytes(t *testing.T) {
	canvases, snapshots := newStores()
	want := []byte{1, 2, 3}
	snapshots.latest[testCanvasID] = &models.Snapshot{CanvasID: testCanvasID, Data: want}
	bridge := NewPersistenceBridge(canvases, snapshots)

	data, err := bridge.Fetch(context.Background(), testCanvasID)
	assert.Equal(t, nil, err)
	assert.Equal(t, want, data)
}

func TestFetchWrapsStoreFailure(t *testing.T) {
	canvases, snapshots := newStores()
	snapshots.getErr = errors.New("connection refused")
	bridge := NewPersistenceBridge(canvases, snapshots)

	_, err := bridge.Fetch(context.Background(), testCanvasID)
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestStoreSkipsInvalidAndMissing(t *testing.T) {
	canvases, snapshots := newStores()
	bridge := NewPersistenceBridge(canvases, snapshots)

	assert.Equal(t, nil, bridge.Store(context.Background(), "bogus", []byte{1}, ""))
	assert.Equal(t, 0, canvases.getCalls)

	assert.Equal(t, nil, bridge.Store(context.Background(), "aaaaaaaaaaaaaaaaaaaaaaaa", []byte{1}, ""))
	assert.Equal(t, 0, len(snapshots.created))
}

func TestStoreAppendsSnapshotAndTouchesCanvas(t *testing.T) {
	canvases, snapshots := newStores()
	bridge := NewPersistenceBridge(canvases, snapshots)

	err := bridge.Store(context.Background(), testCanvasID, []byte{9, 9}, "owner-1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(snapshots.created))
	assert.Equal(t, []byte{9, 9}, snapshots.created[0].Data)
	assert.Equal(t, "owner-1", snapshots.created[0].CreatedBy)
	assert.Equal(t, []string{testCanvasID}, canvases.touched)
}

func TestStorePropagatesWriteFailure(t *testing.T) {
	canvases, snapshots := newStores()
	snapshots.createErr = errors.New("disk full")
	bridge := NewPersistenceBridge(canvases, snapshots)

	err := bridge.Store(context.Background(), testCanvasID, []byte{1}, "")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, 0, len(canvases.touched))
}
