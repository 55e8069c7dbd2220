package api

import (
	"net/http"

	"artboard/internal/collab"
	"artboard/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler, tokens middleware.TokenVerifier, ws *collab.WebSocketHandler) *mux.Router {
	r := mux.NewRouter()

	// Ordering matters: tracing first so recovery and handlers report into
	// the request span.
	r.Use(middleware.Tracing)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", h.Signup).Methods("POST")
	api.HandleFunc("/auth/login", h.Login).Methods("POST")
	api.HandleFunc("/auth/logout", h.Logout).Methods("POST")

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.RequireUser(tokens))

	protected.HandleFunc("/users/me", h.Me).Methods("GET")

	protected.HandleFunc("/canvases", h.CreateCanvas).Methods("POST")
	protected.HandleFunc("/canvases", h.ListCanvases).Methods("GET")
	protected.HandleFunc("/canvases/{id}", h.GetCanvas).Methods("GET")
	protected.HandleFunc("/canvases/{id}", h.UpdateCanvas).Methods("PUT", "PATCH")
	protected.HandleFunc("/canvases/{id}", h.DeleteCanvas).Methods("DELETE")

	protected.HandleFunc("/canvases/{id}/snapshot", h.GetLatestSnapshot).Methods("GET")
	protected.HandleFunc("/canvases/{id}/snapshots/prune", h.PruneSnapshots).Methods("POST")

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Sync connections authenticate through their own gate; the websocket
	// handshake can't rely on middleware that writes error bodies.
	r.HandleFunc("/ws/canvas/{id}", ws.HandleCanvasConnection)

	return r
}
