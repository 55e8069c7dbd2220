package client

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"

	"artboard/internal/canvasdoc"
	"artboard/internal/collab"
	"artboard/internal/models"
)

// funcTransport routes outbound frames to test callbacks.
type funcTransport struct {
	document  func([]byte) error
	awareness func([]byte) error
}

func (t *funcTransport) SendDocument(delta []byte) error {
	if t.document == nil {
		return nil
	}
	return t.document(delta)
}

func (t *funcTransport) SendAwareness(payload []byte) error {
	if t.awareness == nil {
		return nil
	}
	return t.awareness(payload)
}

func captureTransport() (*funcTransport, *[][]byte, *[][]byte) {
	var docs, presence [][]byte
	t := &funcTransport{
		document:  func(d []byte) error { docs = append(docs, d); return nil },
		awareness: func(p []byte) error { presence = append(presence, p); return nil },
	}
	return t, &docs, &presence
}

func testUser(id string) models.UserInfo {
	return models.UserInfo{ID: id, Name: "User " + id, Color: "#336699"}
}

func rect(id string, x, y float64) models.Element {
	return models.Element{
		ID:       id,
		Type:     models.ElementRect,
		Geometry: models.Geometry{X: x, Y: y, Width: 50, Height: 50},
		Style:    models.Style{Fill: "#ff0000", Visible: true, Draggable: true},
	}
}

func TestAddElementAssignsIDAndShipsDelta(t *testing.T) {
	a := New(testUser("u1"))
	transport, docs, _ := captureTransport()
	a.BindTransport(transport)

	id, err := a.AddElement(models.Element{Type: models.ElementRect})
	assert.Equal(t, nil, err)
	if id == "" {
		t.Fatal("expected a generated element id")
	}
	assert.Equal(t, 1, len(*docs))
	assert.Equal(t, 1, len(a.Elements()))
	assert.Equal(t, id, a.Elements()[0].ID)
}

func TestUpdateElementAppliesPatchFields(t *testing.T) {
	a := New(testUser("u1"))
	a.BindTransport(&funcTransport{})

	id, _ := a.AddElement(rect("", 10, 10))

	x, y := 20.0, 20.0
	ok, err := a.UpdateElement(id, models.ElementPatch{X: &x, Y: &y})
	assert.Equal(t, nil, err)
	assert.Equal(t, true, ok)

	el := a.Elements()[0]
	assert.Equal(t, 20.0, el.Geometry.X)
	assert.Equal(t, 20.0, el.Geometry.Y)
	// Untouched fields survive the patch.
	assert.Equal(t, 50.0, el.Geometry.Width)
	assert.Equal(t, "#ff0000", el.Style.Fill)

	ok, err = a.UpdateElement("no-such-element", models.ElementPatch{X: &x})
	assert.Equal(t, nil, err)
	assert.Equal(t, false, ok)
}

func TestDeleteElement(t *testing.T) {
	a := New(testUser("u1"))
	a.BindTransport(&funcTransport{})

	id, _ := a.AddElement(rect("", 10, 10))
	a.AddElement(rect("keep", 30, 30))

	ok, err := a.DeleteElement(id)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, ok)
	assert.Equal(t, 1, len(a.Elements()))
	assert.Equal(t, "keep", a.Elements()[0].ID)

	ok, _ = a.DeleteElement(id)
	assert.Equal(t, false, ok)
}

func TestReplaceAllAndClear(t *testing.T) {
	a := New(testUser("u1"))
	a.BindTransport(&funcTransport{})

	a.AddElement(rect("old", 0, 0))
	assert.Equal(t, nil, a.ReplaceAllElements([]models.Element{
		rect("n1", 1, 1),
		rect("n2", 2, 2),
	}))

	els := a.Elements()
	assert.Equal(t, 2, len(els))
	assert.Equal(t, "n1", els[0].ID)
	assert.Equal(t, "n2", els[1].ID)

	assert.Equal(t, nil, a.Clear())
	assert.Equal(t, 0, len(a.Elements()))
}

func TestMetadataDefaultsAndUpdates(t *testing.T) {
	a := New(testUser("u1"))
	a.BindTransport(&funcTransport{})

	meta := a.Metadata()
	assert.Equal(t, 1080.0, meta.Width)
	assert.Equal(t, "#ffffff", meta.BackgroundColor)
	assert.Equal(t, 1.0, meta.Zoom)

	assert.Equal(t, nil, a.UpdateMetadata(map[string]any{
		models.MetaBackgroundColor: "#000000",
		models.MetaZoom:            2.0,
	}))

	meta = a.Metadata()
	assert.Equal(t, "#000000", meta.BackgroundColor)
	assert.Equal(t, 2.0, meta.Zoom)
	assert.Equal(t, 1080.0, meta.Width)
}

func TestEveryLocalMutationStampsLastModified(t *testing.T) {
	a := New(testUser("u7"))
	a.BindTransport(&funcTransport{})

	clock := int64(1000)
	a.now = func() int64 { clock += 10; return clock }

	id, _ := a.AddElement(rect("", 0, 0))
	afterAdd := a.Metadata().LastModified

	x := 5.0
	a.UpdateElement(id, models.ElementPatch{X: &x})
	afterUpdate := a.Metadata().LastModified

	if afterUpdate <= afterAdd {
		t.Fatalf("lastModified not advanced: %d then %d", afterAdd, afterUpdate)
	}
	assert.Equal(t, "u7", a.Metadata().LastModifiedBy)

	a.DeleteElement(id)
	if a.Metadata().LastModified <= afterUpdate {
		t.Fatal("delete did not stamp lastModified")
	}
}

func TestDeltasMergeIntoPeerAdapter(t *testing.T) {
	b := New(testUser("u2"))
	a := New(testUser("u1"))
	// Pipe A's outbound deltas straight into B.
	a.BindTransport(&funcTransport{document: b.HandleDocumentFrame})

	id, err := a.AddElement(rect("", 10, 10))
	assert.Equal(t, nil, err)

	x, y := 20.0, 20.0
	_, err = a.UpdateElement(id, models.ElementPatch{X: &x, Y: &y})
	assert.Equal(t, nil, err)

	assert.Equal(t, 1, len(b.Elements()))
	assert.Equal(t, 20.0, b.Elements()[0].Geometry.X)
	assert.Equal(t, "u1", b.Metadata().LastModifiedBy)
}

func TestHydrationReplacesLocalState(t *testing.T) {
	server := canvasdoc.NewWithClient(9)
	server.InsertAt(0, rect("snapshot-el", 1, 2))
	server.PendingDelta() // drain, state frames carry everything
	state := server.EncodeState()

	a := New(testUser("u1"))
	assert.Equal(t, false, a.Synced())
	assert.Equal(t, nil, a.HandleDocumentFrame(state))
	assert.Equal(t, true, a.Synced())
	assert.Equal(t, 1, len(a.Elements()))
	assert.Equal(t, "snapshot-el", a.Elements()[0].ID)

	// A later delta from the same origin merges into the hydrated replica.
	server.InsertAt(1, rect("after", 3, 4))
	assert.Equal(t, nil, a.HandleDocumentFrame(server.PendingDelta()))
	assert.Equal(t, 2, len(a.Elements()))
}

func TestEditBeforeInitialSyncSurvivesHydration(t *testing.T) {
	server := canvasdoc.New()
	a := New(testUser("u1"))
	transport, docs, _ := captureTransport()
	a.BindTransport(transport)

	// Edit while the initial state frame is still in flight. The delta
	// reaches the server before the (older) state frame reaches us.
	id, err := a.AddElement(rect("", 10, 10))
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(*docs))
	assert.Equal(t, nil, server.ApplyUpdate((*docs)[0]))

	assert.Equal(t, nil, a.HandleDocumentFrame(canvasdoc.New().EncodeState()))
	assert.Equal(t, true, a.Synced())

	// Both replicas still hold the element.
	assert.Equal(t, 1, len(a.Elements()))
	assert.Equal(t, id, a.Elements()[0].ID)
	assert.Equal(t, 1, len(server.Elements()))
	assert.Equal(t, id, server.Elements()[0].ID)
}

func TestPreSyncEditAlreadyInStateFrameIsNotDuplicated(t *testing.T) {
	server := canvasdoc.New()
	a := New(testUser("u1"))
	transport, docs, _ := captureTransport()
	a.BindTransport(transport)

	_, err := a.AddElement(rect("only", 10, 10))
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, server.ApplyUpdate((*docs)[0]))

	// The state frame was encoded after the server applied our delta.
	assert.Equal(t, nil, a.HandleDocumentFrame(server.EncodeState()))
	assert.Equal(t, 1, len(a.Elements()))
	assert.Equal(t, "only", a.Elements()[0].ID)
}

func TestElementObserverSeesEveryChange(t *testing.T) {
	a := New(testUser("u1"))
	a.BindTransport(&funcTransport{})

	var snapshots [][]models.Element
	a.OnElementsChange(func(els []models.Element) {
		snapshots = append(snapshots, els)
	})

	id, _ := a.AddElement(rect("", 0, 0))
	a.DeleteElement(id)

	assert.Equal(t, 2, len(snapshots))
	assert.Equal(t, 1, len(snapshots[0]))
	assert.Equal(t, 0, len(snapshots[1]))
}

func TestAwarenessPublishesCursorAndSelection(t *testing.T) {
	a := New(testUser("u1"))
	transport, _, presence := captureTransport()
	a.BindTransport(transport)

	assert.Equal(t, nil, a.SetCursor(5, 6))
	assert.Equal(t, nil, a.SetSelection([]string{"el-1"}, models.ActionTransforming))

	assert.Equal(t, 2, len(*presence))

	var st models.AwarenessState
	assert.Equal(t, nil, json.Unmarshal((*presence)[1], &st))
	assert.Equal(t, "u1", st.User.ID)
	assert.Equal(t, 5.0, st.Cursor.X)
	assert.Equal(t, models.ActionTransforming, st.Selection.Action)

	assert.Equal(t, nil, a.ClearCursor())
	var cleared models.AwarenessState
	assert.Equal(t, nil, json.Unmarshal((*presence)[2], &cleared))
	if cleared.Cursor != nil {
		t.Fatal("cursor should be gone after ClearCursor")
	}
	assert.Equal(t, models.ActionTransforming, cleared.Selection.Action)
}

func TestPeerRecordsFilterStaleness(t *testing.T) {
	a := New(testUser("u1"))
	now := int64(100_000)
	a.now = func() int64 { return now }

	fresh := awarenessPayload(t, 7, "peer-fresh", now-1000)
	stale := awarenessPayload(t, 8, "peer-stale", now-models.AwarenessStaleAfterMillis-1)
	assert.Equal(t, nil, a.HandleAwarenessFrame(fresh))
	assert.Equal(t, nil, a.HandleAwarenessFrame(stale))

	peers := a.Peers()
	assert.Equal(t, 1, len(peers))
	assert.Equal(t, "peer-fresh", peers[0].User.ID)

	// Removal frame drops the record entirely.
	removal, _ := json.Marshal(collab.AwarenessUpdate{ClientID: 7, State: nil})
	assert.Equal(t, nil, a.HandleAwarenessFrame(removal))
	assert.Equal(t, 0, len(a.Peers()))
}

func awarenessPayload(t *testing.T, clientID uint64, userID string, lastSeen int64) []byte {
	t.Helper()
	payload, err := json.Marshal(collab.AwarenessUpdate{
		ClientID: clientID,
		State: &models.AwarenessState{
			ClientID: clientID,
			User:     &models.UserInfo{ID: userID},
			LastSeen: lastSeen,
		},
	})
	assert.Equal(t, nil, err)
	return payload
}
