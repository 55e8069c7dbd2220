package collab

import (
	"log"
	"net/http"

	"artboard/internal/auth"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the configured client origin
		return true
	},
}

// WebSocketHandler upgrades sync connections and admits them to document
// sessions. The authorization gate runs before the upgrade; a connection
// that fails it is terminated with a generic failure and no session side
// effects.
type WebSocketHandler struct {
	registry *Registry
	gate     *Gate
}

func NewWebSocketHandler(registry *Registry, gate *Gate) *WebSocketHandler {
	return &WebSocketHandler{registry: registry, gate: gate}
}

// HandleCanvasConnection serves GET /ws/canvas/{id}.
func (h *WebSocketHandler) HandleCanvasConnection(w http.ResponseWriter, r *http.Request) {
	canvasID := mux.Vars(r)["id"]

	token := auth.TokenFromRequest(r)
	userID, err := h.gate.Authorize(r.Context(), token, canvasID)
	if err != nil {
		// Normalized: the client learns nothing about why.
		log.Printf("ws: rejected connection to %s: %v", canvasID, err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := newConn(ws, userID, h.registry.NextClientID())
	// Queued ahead of Connect so it precedes the initial state frame.
	c.Send <- controlFrame(EventAuthOK, "")

	if _, err := h.registry.Connect(r.Context(), canvasID, c); err != nil {
		// Load failure: tell this client to retry, admit nothing.
		ws.WriteMessage(websocket.BinaryMessage, controlFrame(EventRetry, "canvas load failed"))
		ws.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	log.Printf("ws: conn %s attached to canvas %s (user %s, client %d)",
		c.ID, canvasID, userID, c.ClientID)
}
