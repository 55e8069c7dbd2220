package collab

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"artboard/internal/canvasdoc"
)

// Bridge is the persistence dependency injected into the registry.
type Bridge interface {
	Fetch(ctx context.Context, canvasID string) ([]byte, error)
	Store(ctx context.Context, canvasID string, data []byte, updatedBy string) error
}

// Registry owns one active document session per canvas id and multiplexes
// client connections onto it. It is an explicit, constructed instance with
// injected dependencies rather than ambient global state, so every test
// can run its own registry.
type Registry struct {
	bridge      Bridge
	debounce    time.Duration
	maxDebounce time.Duration

	mu       sync.Mutex
	sessions map[string]*DocSession

	clientSeq atomic.Uint64
}

// NewRegistry creates a registry. debounce is the quiet period before a
// flush; maxDebounce caps how long a flush can be deferred after the first
// unflushed mutation.
func NewRegistry(bridge Bridge, debounce, maxDebounce time.Duration) *Registry {
	return &Registry{
		bridge:      bridge,
		debounce:    debounce,
		maxDebounce: maxDebounce,
		sessions:    make(map[string]*DocSession),
	}
}

// NextClientID hands out transport-scoped awareness client ids.
func (r *Registry) NextClientID() uint64 {
	return r.clientSeq.Add(1)
}

// Connect admits a connection to the canvas's session, creating and
// loading the session if this is the first connection for the id. The
// caller is suspended until loading completes. A fetch failure rejects
// every waiting connection and leaves no session behind; that is the one
// rejection a client should retry.
//
// Authorization is the caller's concern and must happen before Connect.
func (r *Registry) Connect(ctx context.Context, canvasID string, c *Conn) (*DocSession, error) {
	for {
		s, load := r.acquire(canvasID)
		if load {
			r.load(ctx, s)
		} else {
			select {
			case <-s.ready:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if s.loadErr != nil {
			return nil, s.loadErr
		}
		if s.attach(c) {
			return s, nil
		}
		// The session tore down between lookup and attach; start over.
	}
}

// acquire returns the session for the canvas id, creating it in the
// loading state when absent. The second return is true when this caller
// owns the load.
func (r *Registry) acquire(canvasID string) (*DocSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[canvasID]; ok {
		return s, false
	}
	s := newDocSession(r, canvasID)
	r.sessions[canvasID] = s
	return s, true
}

// load fetches the document via the bridge and hydrates the session.
// Unreadable snapshot bytes are recovered with an empty default document;
// a fetch failure aborts session creation.
func (r *Registry) load(ctx context.Context, s *DocSession) {
	defer close(s.ready)

	data, err := r.bridge.Fetch(ctx, s.CanvasID)
	if err != nil {
		s.loadErr = err
		r.remove(s)
		return
	}
	if data == nil {
		data = EmptyDocumentState()
	}

	doc, err := canvasdoc.NewFromState(data)
	if err != nil {
		// The stored snapshot is unreadable. Recover with an empty
		// default document rather than failing the connection.
		log.Printf("registry: snapshot for %s undecodable, starting empty: %v", s.CanvasID, err)
		doc, _ = canvasdoc.NewFromState(EmptyDocumentState())
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	log.Printf("registry: session for canvas %s active", s.CanvasID)
}

// remove drops a session from the map. No-op when a newer session for the
// same canvas already replaced it.
func (r *Registry) remove(s *DocSession) {
	r.mu.Lock()
	if r.sessions[s.CanvasID] == s {
		delete(r.sessions, s.CanvasID)
	}
	r.mu.Unlock()
	log.Printf("registry: session for canvas %s discarded", s.CanvasID)
}

// ActiveSessions returns the number of live sessions.
func (r *Registry) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown flushes every dirty session and closes all connections.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*DocSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*DocSession)
	r.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		s.closed = true
		if s.flushTimer != nil {
			s.flushTimer.Stop()
		}
		var state []byte
		if s.dirty {
			state = s.doc.EncodeState()
			s.dirty = false
		}
		conns := make([]*Conn, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.conns = make(map[*Conn]bool)
		s.mu.Unlock()

		for _, c := range conns {
			c.queue(controlFrame(EventDisconnect, "server shutting down"))
			close(c.Send)
			c.close()
		}
		if state != nil {
			if err := r.bridge.Store(ctx, s.CanvasID, state, ""); err != nil {
				log.Printf("registry: shutdown flush for %s failed: %v", s.CanvasID, err)
			}
		}
	}
	log.Printf("registry: shutdown complete (%d sessions flushed)", len(sessions))
}
