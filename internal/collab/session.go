package collab

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"artboard/internal/canvasdoc"
	"artboard/internal/models"
)

// DocSession is the live, single-writer instance of one canvas document
// shared by all currently connected clients for that canvas id. All
// mutations are serialized through its mutex; broadcast fan-out happens
// under the same lock so every attached connection observes the same total
// order of applied ops.
type DocSession struct {
	CanvasID string

	registry *Registry

	mu        sync.Mutex
	doc       *canvasdoc.Doc
	awareness *Awareness
	conns     map[*Conn]bool

	// Debounced flush state. dirty is set by the first unflushed mutation;
	// the timer fires debounce after the last mutation but never later
	// than maxDebounce after firstDirty.
	dirty      bool
	firstDirty time.Time
	flushTimer *time.Timer

	closed bool

	// ready is closed when loading finishes; loadErr rejects every
	// connection attempt that was waiting on it.
	ready   chan struct{}
	loadErr error
}

func newDocSession(registry *Registry, canvasID string) *DocSession {
	return &DocSession{
		CanvasID:  canvasID,
		registry:  registry,
		awareness: NewAwareness(),
		conns:     make(map[*Conn]bool),
		ready:     make(chan struct{}),
	}
}

// Awareness returns the session's presence channel.
func (s *DocSession) Awareness() *Awareness {
	return s.awareness
}

// attach admits a connection and queues its initial sync: the full
// document state plus the current live awareness records. Queueing happens
// under the session lock so no concurrent broadcast can slip in between
// the state encode and its delivery. Returns false when the session
// already tore down, in which case the caller must start over with a
// fresh session.
func (s *DocSession) attach(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = true
	c.session = s

	c.queue(EncodeFrame(FrameDocument, s.doc.EncodeState()))
	for _, st := range s.awareness.Active(c.ClientID) {
		c.queue(awarenessFrame(AwarenessUpdate{ClientID: st.ClientID, State: st}))
	}
	return true
}

// ApplyDelta applies a document delta from one connection, marks the
// session dirty, and fans the delta out to every other attached connection
// in apply order.
func (s *DocSession) ApplyDelta(from *Conn, payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err := s.doc.ApplyUpdate(payload); err != nil {
		s.mu.Unlock()
		return err
	}
	s.markDirtyLocked()
	frame := EncodeFrame(FrameDocument, payload)
	for c := range s.conns {
		if c != from {
			c.queue(frame)
		}
	}
	s.mu.Unlock()
	return nil
}

// ApplyAwareness merges a presence record from one connection and
// broadcasts it to the others. The record's client id is forced to the
// sending connection's id; a connection only ever writes its own record.
func (s *DocSession) ApplyAwareness(from *Conn, payload []byte) error {
	var state models.AwarenessState
	if err := json.Unmarshal(payload, &state); err != nil {
		return err
	}
	state.ClientID = from.ClientID
	s.awareness.Apply(&state)

	frame := awarenessFrame(AwarenessUpdate{ClientID: state.ClientID, State: &state})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	for c := range s.conns {
		if c != from {
			c.queue(frame)
		}
	}
	s.mu.Unlock()
	return nil
}

// Detach removes a connection. The connection's awareness record is
// cleared and the removal broadcast. When the last connection detaches the
// session cancels any pending flush timer, performs one synchronous
// best-effort flush, and discards the in-memory state; a later connection
// starts over at loading.
func (s *DocSession) Detach(c *Conn) {
	s.mu.Lock()
	if !s.conns[c] {
		s.mu.Unlock()
		return
	}
	delete(s.conns, c)
	close(c.Send)

	s.awareness.Remove(c.ClientID)
	removal := awarenessFrame(AwarenessUpdate{ClientID: c.ClientID, State: nil})
	for other := range s.conns {
		other.queue(removal)
	}

	last := len(s.conns) == 0
	var finalState []byte
	needFlush := false
	if last {
		s.closed = true
		if s.flushTimer != nil {
			s.flushTimer.Stop()
		}
		if s.dirty {
			needFlush = true
			finalState = s.doc.EncodeState()
			s.dirty = false
		}
	}
	s.mu.Unlock()

	if !last {
		return
	}
	s.registry.remove(s)
	if needFlush {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.registry.bridge.Store(ctx, s.CanvasID, finalState, c.UserID); err != nil {
			log.Printf("session %s: final flush failed: %v", s.CanvasID, err)
		}
	}
}

const storeTimeout = 10 * time.Second

// markDirtyLocked (re)arms the coalescing flush timer. Callers hold s.mu.
func (s *DocSession) markDirtyLocked() {
	now := time.Now()
	if !s.dirty {
		s.dirty = true
		s.firstDirty = now
	}
	delay := s.registry.debounce
	if deadline := s.firstDirty.Add(s.registry.maxDebounce); now.Add(delay).After(deadline) {
		delay = deadline.Sub(now)
		if delay < 0 {
			delay = 0
		}
	}
	if s.flushTimer == nil {
		s.flushTimer = time.AfterFunc(delay, s.flush)
	} else {
		s.flushTimer.Stop()
		s.flushTimer.Reset(delay)
	}
}

// flush encodes the document under the session lock, then stores it with
// no lock held so persistence latency never delays edit propagation. A
// failed store leaves the session dirty and retries on the next debounce
// cycle.
func (s *DocSession) flush() {
	s.mu.Lock()
	if s.closed || !s.dirty {
		s.mu.Unlock()
		return
	}
	state := s.doc.EncodeState()
	s.dirty = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.registry.bridge.Store(ctx, s.CanvasID, state, ""); err != nil {
		log.Printf("session %s: flush failed, will retry: %v", s.CanvasID, err)
		s.mu.Lock()
		if !s.closed && !s.dirty {
			s.dirty = true
			s.firstDirty = time.Now()
			s.flushTimer.Reset(s.registry.debounce)
		}
		s.mu.Unlock()
	}
}
