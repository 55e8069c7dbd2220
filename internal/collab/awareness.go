package collab

import (
	"sync"
	"time"

	"artboard/internal/models"
)

// Awareness is the per-session ephemeral presence map, independent of
// document content. Records are keyed by connection-scoped client id; each
// id is written only by its owning connection, so the last write for an id
// always wins. Nothing here is persisted.
//
// Staleness is applied on read: Active filters out records not updated for
// 30 seconds even though they are only removed on disconnect.
type Awareness struct {
	mu        sync.RWMutex
	states    map[uint64]*models.AwarenessState
	listeners []func(AwarenessUpdate)

	// now is swappable for staleness tests.
	now func() int64
}

func NewAwareness() *Awareness {
	return &Awareness{
		states: make(map[uint64]*models.AwarenessState),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// OnChange registers a listener invoked for every applied update or
// removal.
func (a *Awareness) OnChange(fn func(AwarenessUpdate)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Apply merges a record for its owning client id, stamping LastSeen.
func (a *Awareness) Apply(state *models.AwarenessState) {
	a.mu.Lock()
	state.LastSeen = a.now()
	a.states[state.ClientID] = state
	listeners := a.listeners
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(AwarenessUpdate{ClientID: state.ClientID, State: state})
	}
}

// Remove clears the record for a client id on disconnect.
func (a *Awareness) Remove(clientID uint64) {
	a.mu.Lock()
	_, existed := a.states[clientID]
	delete(a.states, clientID)
	listeners := a.listeners
	a.mu.Unlock()

	if !existed {
		return
	}
	for _, fn := range listeners {
		fn(AwarenessUpdate{ClientID: clientID, State: nil})
	}
}

// Get returns the record for a client id, stale or not.
func (a *Awareness) Get(clientID uint64) (*models.AwarenessState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.states[clientID]
	return s, ok
}

// All returns every record except excludeID's, without staleness filtering.
func (a *Awareness) All(excludeID uint64) []*models.AwarenessState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*models.AwarenessState, 0, len(a.states))
	for id, s := range a.states {
		if id == excludeID {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Active returns every record except excludeID's whose LastSeen is within
// the staleness window.
func (a *Awareness) Active(excludeID uint64) []*models.AwarenessState {
	cutoff := a.now() - models.AwarenessStaleAfterMillis
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*models.AwarenessState, 0, len(a.states))
	for id, s := range a.states {
		if id == excludeID || s.LastSeen <= cutoff {
			continue
		}
		out = append(out, s)
	}
	return out
}
