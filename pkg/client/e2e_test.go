package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"artboard/internal/auth"
	"artboard/internal/canvasdoc"
	"artboard/internal/collab"
	"artboard/internal/models"
)

const e2eCanvasID = "507f1f77bcf86cd799439011"

type memCanvasStore struct {
	mu       sync.Mutex
	canvases map[string]*models.Canvas
}

func (s *memCanvasStore) GetByID(ctx context.Context, id string) (*models.Canvas, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvases[id], nil
}

func (s *memCanvasStore) Touch(ctx context.Context, id string) error {
	return nil
}

type memSnapshotStore struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
}

func (s *memSnapshotStore) GetLatest(ctx context.Context, canvasID string) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].CanvasID == canvasID {
			return s.snapshots[i], nil
		}
	}
	return nil, nil
}

func (s *memSnapshotStore) Create(ctx context.Context, snapshot *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *memSnapshotStore) latest() *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

type e2eEnv struct {
	server    *httptest.Server
	tokens    *auth.Tokens
	snapshots *memSnapshotStore
	registry  *collab.Registry
}

func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()

	canvases := &memCanvasStore{canvases: map[string]*models.Canvas{
		e2eCanvasID: {
			ID:            e2eCanvasID,
			Title:         "shared board",
			Owner:         "usrA",
			Collaborators: pq.StringArray{"usrB"},
		},
	}}
	snapshots := &memSnapshotStore{}
	tokens := auth.NewTokens("e2e-secret")

	bridge := collab.NewPersistenceBridge(canvases, snapshots)
	registry := collab.NewRegistry(bridge, 60*time.Millisecond, 250*time.Millisecond)
	handler := collab.NewWebSocketHandler(registry, collab.NewGate(tokens, canvases))

	router := mux.NewRouter()
	router.HandleFunc("/ws/canvas/{id}", handler.HandleCanvasConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &e2eEnv{server: srv, tokens: tokens, snapshots: snapshots, registry: registry}
}

func (e *e2eEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/canvas/" + e2eCanvasID
}

func (e *e2eEnv) dial(t *testing.T, userID string) (*Adapter, *Conn) {
	t.Helper()
	token, err := e.tokens.Sign(userID)
	assert.Equal(t, nil, err)

	adapter := New(testUser(userID))
	conn, err := Dial(context.Background(), e.wsURL(), token, adapter)
	assert.Equal(t, nil, err)
	t.Cleanup(func() { conn.Close() })

	waitFor(t, 2*time.Second, adapter.Synced)
	return adapter, conn
}

// Two users share a canvas: A draws a rectangle, B drags it, both replicas
// converge, and the debounced flush persists the final position.
func TestTwoClientCollaborationRoundTrip(t *testing.T) {
	env := newE2EEnv(t)

	alice, _ := env.dial(t, "usrA")
	bob, _ := env.dial(t, "usrB")

	id, err := alice.AddElement(models.Element{
		Type:     models.ElementRect,
		Geometry: models.Geometry{X: 10, Y: 10, Width: 50, Height: 50},
		Style:    models.Style{Fill: "#ff0000", Visible: true, Draggable: true},
	})
	assert.Equal(t, nil, err)

	waitFor(t, 2*time.Second, func() bool { return len(bob.Elements()) == 1 })
	assert.Equal(t, id, bob.Elements()[0].ID)
	assert.Equal(t, 10.0, bob.Elements()[0].Geometry.X)

	x, y := 20.0, 20.0
	ok, err := bob.UpdateElement(id, models.ElementPatch{X: &x, Y: &y})
	assert.Equal(t, nil, err)
	assert.Equal(t, true, ok)

	waitFor(t, 2*time.Second, func() bool {
		els := alice.Elements()
		return len(els) == 1 && els[0].Geometry.X == 20
	})
	// Size survived B's positional patch.
	assert.Equal(t, 50.0, alice.Elements()[0].Geometry.Width)
	assert.Equal(t, "usrB", alice.Metadata().LastModifiedBy)

	// The debounced flush persists the merged state.
	waitFor(t, 3*time.Second, func() bool {
		snap := env.snapshots.latest()
		if snap == nil {
			return false
		}
		doc, err := canvasdoc.NewFromState(snap.Data)
		if err != nil || doc.Len() != 1 {
			return false
		}
		el, _ := doc.Get(0)
		return el.Geometry.X == 20 && el.Geometry.Y == 20
	})
}

func TestPresencePropagatesAndClearsOnDisconnect(t *testing.T) {
	env := newE2EEnv(t)

	alice, _ := env.dial(t, "usrA")
	bob, bobConn := env.dial(t, "usrB")

	assert.Equal(t, nil, bob.SetCursor(42, 17))

	waitFor(t, 2*time.Second, func() bool {
		peers := alice.Peers()
		return len(peers) == 1 && peers[0].User.ID == "usrB"
	})
	assert.Equal(t, 42.0, alice.Peers()[0].Cursor.X)

	bobConn.Close()
	waitFor(t, 2*time.Second, func() bool { return len(alice.Peers()) == 0 })
}

func TestDialRejectedForStranger(t *testing.T) {
	env := newE2EEnv(t)

	token, err := env.tokens.Sign("usrZ")
	assert.Equal(t, nil, err)

	adapter := New(testUser("usrZ"))
	if _, err := Dial(context.Background(), env.wsURL(), token, adapter); err == nil {
		t.Fatal("expected handshake rejection for a user without access")
	}
	assert.Equal(t, 0, env.registry.ActiveSessions())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
