package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"artboard/internal/auth"
	"artboard/internal/middleware"
	"artboard/internal/models"

	"github.com/gorilla/mux"
)

// snapshotKeepDefault bounds how many snapshot rows a prune leaves behind
// when no retention count is configured.
const snapshotKeepDefault = 20

// Handler serves the account and canvas CRUD surface. The live sync path
// never goes through here; it has its own websocket handler.
type Handler struct {
	users        UserStore
	canvases     CanvasStore
	snapshots    SnapshotStore
	tokens       TokenIssuer
	snapshotKeep int
}

// NewHandler builds the CRUD handler. snapshotKeep is the prune retention
// count; zero or negative falls back to the default.
func NewHandler(users UserStore, canvases CanvasStore, snapshots SnapshotStore, tokens TokenIssuer, snapshotKeep int) *Handler {
	if snapshotKeep <= 0 {
		snapshotKeep = snapshotKeepDefault
	}
	return &Handler{
		users:        users,
		canvases:     canvases,
		snapshots:    snapshots,
		tokens:       tokens,
		snapshotKeep: snapshotKeep,
	}
}

// Auth handlers

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.UserSignup
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		http.Error(w, "name, email and a password of at least 8 characters are required", http.StatusBadRequest)
		return
	}

	existing, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	user := &models.User{Name: req.Name, Email: req.Email, PasswordHash: hash}
	if err := h.users.Create(r.Context(), user); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.issueSession(w, user.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLogin
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Same response whether the account is missing or the password is
	// wrong.
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := h.issueSession(w, user.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Canvas handlers

func (h *Handler) CreateCanvas(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		req.Title = "Untitled canvas"
	}

	canvas, err := h.canvases.Create(r.Context(), middleware.UserID(r.Context()), req.Title)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, canvas)
}

func (h *Handler) ListCanvases(w http.ResponseWriter, r *http.Request) {
	canvases, err := h.canvases.ListForUser(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"canvases": canvases})
}

func (h *Handler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	canvas, ok := h.loadCanvas(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, canvas)
}

func (h *Handler) UpdateCanvas(w http.ResponseWriter, r *http.Request) {
	canvas, ok := h.loadCanvas(w, r, true)
	if !ok {
		return
	}

	var patch models.CanvasUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.canvases.Update(r.Context(), canvas.ID, &patch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteCanvas(w http.ResponseWriter, r *http.Request) {
	canvas, ok := h.loadCanvas(w, r, true)
	if !ok {
		return
	}

	// Snapshots first: a canvas row without snapshots is recoverable, the
	// reverse is orphaned data.
	if err := h.snapshots.DeleteByCanvas(r.Context(), canvas.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.canvases.Delete(r.Context(), canvas.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot handlers

func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	canvas, ok := h.loadCanvas(w, r, false)
	if !ok {
		return
	}

	snapshot, err := h.snapshots.GetLatest(r.Context(), canvas.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(snapshot.Data)
}

func (h *Handler) PruneSnapshots(w http.ResponseWriter, r *http.Request) {
	canvas, ok := h.loadCanvas(w, r, true)
	if !ok {
		return
	}

	keep := h.snapshotKeep
	if s := r.URL.Query().Get("keep"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			keep = n
		}
	}

	if err := h.snapshots.Prune(r.Context(), canvas.ID, keep); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kept": keep})
}

// loadCanvas resolves the {id} route var, checks the caller's access, and
// writes the error response itself on failure. ownerOnly restricts the
// operation to the canvas owner.
func (h *Handler) loadCanvas(w http.ResponseWriter, r *http.Request, ownerOnly bool) (*models.Canvas, bool) {
	id := mux.Vars(r)["id"]
	if !models.IsValidCanvasID(id) {
		http.Error(w, "canvas not found", http.StatusNotFound)
		return nil, false
	}

	canvas, err := h.canvases.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if canvas == nil {
		http.Error(w, "canvas not found", http.StatusNotFound)
		return nil, false
	}

	userID := middleware.UserID(r.Context())
	if ownerOnly {
		if canvas.Owner != userID {
			http.Error(w, "owner access required", http.StatusForbidden)
			return nil, false
		}
	} else if !canvas.HasAccess(userID) {
		// Hidden, not forbidden: non-members can't probe for existence.
		http.Error(w, "canvas not found", http.StatusNotFound)
		return nil, false
	}
	return canvas, true
}

func (h *Handler) issueSession(w http.ResponseWriter, userID string) error {
	token, err := h.tokens.Sign(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
