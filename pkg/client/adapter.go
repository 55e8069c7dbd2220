// Package client is the application-facing sync adapter. It keeps a local
// document replica, applies local edits optimistically, ships the resulting
// deltas over a transport, and folds remote frames back into a flattened
// view model (element list plus canvas metadata) that a renderer can
// consume directly.
package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"artboard/internal/canvasdoc"
	"artboard/internal/collab"
	"artboard/internal/models"
)

// Transport ships frames to the session the adapter is attached to.
// Implementations must be safe for concurrent use.
type Transport interface {
	SendDocument(delta []byte) error
	SendAwareness(payload []byte) error
}

// Adapter is one client's view of a canvas document. All methods are safe
// for concurrent use.
type Adapter struct {
	mu        sync.Mutex
	doc       *canvasdoc.Doc
	transport Transport
	user      models.UserInfo
	synced    bool

	// preSync holds deltas for local edits made before the initial state
	// frame arrived, so hydration can replay them instead of losing them.
	preSync [][]byte

	cursor    *models.Cursor
	selection *models.Selection
	peers     map[uint64]*models.AwarenessState

	onElements []func([]models.Element)
	onMetadata []func(models.CanvasMetadata)
	onPeers    []func([]models.AwarenessState)
	onControl  []func(collab.ControlMessage)

	now func() int64 // unix millis, swappable for tests
}

// New creates a detached adapter for the given user. Bind a transport (or
// Dial) before mutating, otherwise edits stay local.
func New(user models.UserInfo) *Adapter {
	return &Adapter{
		doc:   canvasdoc.New(),
		user:  user,
		peers: make(map[uint64]*models.AwarenessState),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// BindTransport attaches the outbound frame channel.
func (a *Adapter) BindTransport(t Transport) {
	a.mu.Lock()
	a.transport = t
	a.mu.Unlock()
}

// Synced reports whether the initial document state has arrived.
func (a *Adapter) Synced() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.synced
}

// OnElementsChange registers a callback invoked with the full element list
// after every change, local or remote.
func (a *Adapter) OnElementsChange(fn func([]models.Element)) {
	a.mu.Lock()
	a.onElements = append(a.onElements, fn)
	a.mu.Unlock()
}

// OnMetadataChange registers a callback invoked with the flattened canvas
// metadata after every change.
func (a *Adapter) OnMetadataChange(fn func(models.CanvasMetadata)) {
	a.mu.Lock()
	a.onMetadata = append(a.onMetadata, fn)
	a.mu.Unlock()
}

// OnPeersChange registers a callback invoked with the active peer presence
// records whenever a peer record changes.
func (a *Adapter) OnPeersChange(fn func([]models.AwarenessState)) {
	a.mu.Lock()
	a.onPeers = append(a.onPeers, fn)
	a.mu.Unlock()
}

// OnControl registers a callback for control events from the server.
func (a *Adapter) OnControl(fn func(collab.ControlMessage)) {
	a.mu.Lock()
	a.onControl = append(a.onControl, fn)
	a.mu.Unlock()
}

// Elements returns the current element list in paint order.
func (a *Adapter) Elements() []models.Element {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc.Elements()
}

// Metadata returns the flattened canvas metadata, with defaults filled in
// for keys no document update has touched yet.
func (a *Adapter) Metadata() models.CanvasMetadata {
	a.mu.Lock()
	defer a.mu.Unlock()
	return projectMetadata(a.doc)
}

// AddElement appends an element to the canvas. A missing id is assigned.
// Returns the element's id.
func (a *Adapter) AddElement(el models.Element) (string, error) {
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	a.mu.Lock()
	a.doc.InsertAt(a.doc.Len(), el)
	a.stampLocked()
	err := a.sendLocked()
	notify := a.docSnapshotLocked()
	a.mu.Unlock()
	notify()
	return el.ID, err
}

// UpdateElement applies a partial update to the element with the given id.
// Returns false when no such element exists.
func (a *Adapter) UpdateElement(id string, patch models.ElementPatch) (bool, error) {
	a.mu.Lock()
	i, el, ok := a.findLocked(id)
	if !ok {
		a.mu.Unlock()
		return false, nil
	}
	patch.ApplyTo(&el)
	// Replace in place: the new item lands at the same visible index so
	// paint order survives.
	a.doc.RemoveAt(i, 1)
	a.doc.InsertAt(i, el)
	a.stampLocked()
	err := a.sendLocked()
	notify := a.docSnapshotLocked()
	a.mu.Unlock()
	notify()
	return true, err
}

// DeleteElement removes the element with the given id. Returns false when
// no such element exists.
func (a *Adapter) DeleteElement(id string) (bool, error) {
	a.mu.Lock()
	i, _, ok := a.findLocked(id)
	if !ok {
		a.mu.Unlock()
		return false, nil
	}
	a.doc.RemoveAt(i, 1)
	a.stampLocked()
	err := a.sendLocked()
	notify := a.docSnapshotLocked()
	a.mu.Unlock()
	notify()
	return true, err
}

// UpdateMetadata sets the given metadata keys. Each key is independently
// last-write-wins across replicas.
func (a *Adapter) UpdateMetadata(updates map[string]any) error {
	a.mu.Lock()
	for key, value := range updates {
		a.doc.SetMeta(key, value)
	}
	a.stampLocked()
	err := a.sendLocked()
	notify := a.docSnapshotLocked()
	a.mu.Unlock()
	notify()
	return err
}

// ReplaceAllElements swaps the whole element list, e.g. when loading a
// template.
func (a *Adapter) ReplaceAllElements(els []models.Element) error {
	a.mu.Lock()
	a.doc.RemoveAt(0, a.doc.Len())
	for i, el := range els {
		if el.ID == "" {
			el.ID = uuid.NewString()
		}
		a.doc.InsertAt(i, el)
	}
	a.stampLocked()
	err := a.sendLocked()
	notify := a.docSnapshotLocked()
	a.mu.Unlock()
	notify()
	return err
}

// Clear removes every element. Metadata is untouched.
func (a *Adapter) Clear() error {
	return a.ReplaceAllElements(nil)
}

// SetCursor publishes the local pointer position to peers.
func (a *Adapter) SetCursor(x, y float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cursor = &models.Cursor{X: x, Y: y, Visible: true}
	return a.sendAwarenessLocked()
}

// ClearCursor hides the local pointer.
func (a *Adapter) ClearCursor() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cursor = nil
	return a.sendAwarenessLocked()
}

// SetSelection publishes the local selection and what is being done to it.
func (a *Adapter) SetSelection(elementIDs []string, action models.SelectionAction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selection = &models.Selection{ElementIDs: elementIDs, Action: action}
	return a.sendAwarenessLocked()
}

// ClearSelection drops the published selection.
func (a *Adapter) ClearSelection() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selection = nil
	return a.sendAwarenessLocked()
}

// Peers returns the active presence records of other clients, filtered for
// staleness.
func (a *Adapter) Peers() []models.AwarenessState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activePeersLocked()
}

// HandleDocumentFrame folds a document frame from the server into the
// replica. A full-state frame hydrates the replica from server state with
// any pre-sync local edits replayed on top, so an edit made while the
// initial sync is in flight survives on every replica; a delta frame
// merges into it.
func (a *Adapter) HandleDocumentFrame(payload []byte) error {
	a.mu.Lock()
	if canvasdoc.IsStateFrame(payload) {
		doc, err := canvasdoc.NewFromState(payload)
		if err != nil {
			a.mu.Unlock()
			return fmt.Errorf("hydrate document: %w", err)
		}
		// Ops the server state already includes integrate as no-ops.
		for _, delta := range a.preSync {
			if err := doc.ApplyUpdate(delta); err != nil {
				a.mu.Unlock()
				return fmt.Errorf("replay local edit: %w", err)
			}
		}
		a.preSync = nil
		a.doc = doc
		a.synced = true
	} else if err := a.doc.ApplyUpdate(payload); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("apply remote delta: %w", err)
	}
	notify := a.docSnapshotLocked()
	a.mu.Unlock()
	notify()
	return nil
}

// HandleAwarenessFrame folds a peer presence frame into the peer map. A nil
// state removes the peer.
func (a *Adapter) HandleAwarenessFrame(payload []byte) error {
	var update collab.AwarenessUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("decode awareness frame: %w", err)
	}
	a.mu.Lock()
	if update.State == nil {
		delete(a.peers, update.ClientID)
	} else {
		a.peers[update.ClientID] = update.State
	}
	peers := a.activePeersLocked()
	callbacks := append([]func([]models.AwarenessState){}, a.onPeers...)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(peers)
	}
	return nil
}

// HandleControlFrame dispatches a control event to registered callbacks.
func (a *Adapter) HandleControlFrame(payload []byte) error {
	var msg collab.ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode control frame: %w", err)
	}
	a.mu.Lock()
	callbacks := append([]func(collab.ControlMessage){}, a.onControl...)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(msg)
	}
	return nil
}

func (a *Adapter) findLocked(id string) (int, models.Element, bool) {
	for i, el := range a.doc.Elements() {
		if el.ID == id {
			return i, el, true
		}
	}
	return 0, models.Element{}, false
}

// stampLocked records who touched the document last and when. Runs with
// every local mutation.
func (a *Adapter) stampLocked() {
	a.doc.SetMeta(models.MetaLastModified, a.now())
	if a.user.ID != "" {
		a.doc.SetMeta(models.MetaLastModifiedBy, a.user.ID)
	}
}

func (a *Adapter) sendLocked() error {
	delta := a.doc.PendingDelta()
	if delta == nil {
		return nil
	}
	if !a.synced {
		a.preSync = append(a.preSync, delta)
	}
	if a.transport == nil {
		return nil
	}
	return a.transport.SendDocument(delta)
}

func (a *Adapter) sendAwarenessLocked() error {
	if a.transport == nil {
		return nil
	}
	state := models.AwarenessState{
		User:      &a.user,
		Cursor:    a.cursor,
		Selection: a.selection,
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return a.transport.SendAwareness(payload)
}

func (a *Adapter) activePeersLocked() []models.AwarenessState {
	cutoff := a.now() - models.AwarenessStaleAfterMillis
	out := make([]models.AwarenessState, 0, len(a.peers))
	for _, st := range a.peers {
		if st.LastSeen >= cutoff {
			out = append(out, *st)
		}
	}
	return out
}

// docSnapshotLocked captures the current view model and registered
// callbacks; the returned closure runs the callbacks and must be invoked
// after the adapter lock is released.
func (a *Adapter) docSnapshotLocked() func() {
	elements := a.doc.Elements()
	meta := projectMetadata(a.doc)
	onElements := append([]func([]models.Element){}, a.onElements...)
	onMetadata := append([]func(models.CanvasMetadata){}, a.onMetadata...)
	return func() {
		for _, fn := range onElements {
			fn(elements)
		}
		for _, fn := range onMetadata {
			fn(meta)
		}
	}
}

// projectMetadata flattens the document metadata map over the defaults.
// Numeric values arrive as float64 after a JSON round trip but may be
// native ints when set locally, so both shapes are accepted.
func projectMetadata(doc *canvasdoc.Doc) models.CanvasMetadata {
	meta := models.DefaultMetadata()
	m := doc.MetaMap()
	if v, ok := asFloat(m[models.MetaWidth]); ok {
		meta.Width = v
	}
	if v, ok := asFloat(m[models.MetaHeight]); ok {
		meta.Height = v
	}
	if s, ok := m[models.MetaBackgroundColor].(string); ok {
		meta.BackgroundColor = s
	}
	if v, ok := asFloat(m[models.MetaZoom]); ok {
		meta.Zoom = v
	}
	if v, ok := asFloat(m[models.MetaPanX]); ok {
		meta.PanX = v
	}
	if v, ok := asFloat(m[models.MetaPanY]); ok {
		meta.PanY = v
	}
	if v, ok := asFloat(m[models.MetaLastModified]); ok {
		meta.LastModified = int64(v)
	}
	if s, ok := m[models.MetaLastModifiedBy].(string); ok {
		meta.LastModifiedBy = s
	}
	return meta
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}
