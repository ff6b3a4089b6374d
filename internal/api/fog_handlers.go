package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openvtt/gridveil/internal/fog"
	"github.com/openvtt/gridveil/internal/geometry"
	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
)

// RevealAreaRequest is the request body for revealing a fog polygon.
type RevealAreaRequest struct {
	Area []geometry.Point `json:"area"`
}

// AutoRevealResponse reports how many vision polygons were appended.
type AutoRevealResponse struct {
	Revealed int `json:"revealed"`
}

// FogHandlers holds dependencies for fog-of-war HTTP handlers.
type FogHandlers struct {
	svc  *fog.Service
	gate *session.Gate
}

// NewFogHandlers creates a new FogHandlers instance.
func NewFogHandlers(svc *fog.Service, gate *session.Gate) *FogHandlers {
	return &FogHandlers{svc: svc, gate: gate}
}

// Get handles GET /sessions/{id}/fog - returns the session's fog state.
// A session that has never revealed anything gets an empty state, not a 404.
func (h *FogHandlers) Get(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	state, err := h.svc.Get(r.Context(), sessionID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load fog state", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load fog state")
		return
	}

	writeJSON(w, r, http.StatusOK, state)
}

// Reveal handles POST /sessions/{id}/fog/reveal - appends one revealed polygon.
func (h *FogHandlers) Reveal(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}

	var req RevealAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := h.svc.RevealArea(r.Context(), access, req.Area); err != nil {
		h.writeFogError(w, r, err, sessionID)
		return
	}

	state, err := h.svc.Get(r.Context(), sessionID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to reload fog state", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load fog state")
		return
	}

	writeJSON(w, r, http.StatusOK, state)
}

// Clear handles POST /sessions/{id}/fog/clear - resets the revealed area set.
func (h *FogHandlers) Clear(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}

	if err := h.svc.Clear(r.Context(), access); err != nil {
		h.writeFogError(w, r, err, sessionID)
		return
	}

	state, err := h.svc.Get(r.Context(), sessionID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to reload fog state", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load fog state")
		return
	}

	writeJSON(w, r, http.StatusOK, state)
}

// AutoReveal handles POST /sessions/{id}/fog/auto-reveal - appends every
// vision-bearing token's polygon. Requires a loaded map.
func (h *FogHandlers) AutoReveal(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}

	revealed, err := h.svc.AutoReveal(r.Context(), access)
	if err != nil {
		h.writeFogError(w, r, err, sessionID)
		return
	}

	writeJSON(w, r, http.StatusOK, AutoRevealResponse{Revealed: revealed})
}

// writeFogError maps fog service errors to API error responses.
func (h *FogHandlers) writeFogError(w http.ResponseWriter, r *http.Request, err error, sessionID string) {
	switch {
	case errors.Is(err, fog.ErrNotDM):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the DM can modify fog of war")
	case errors.Is(err, fog.ErrPolygonTooSmall):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Area must be a polygon with at least 3 points")
	case errors.Is(err, fog.ErrNoMap):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePreconditionFailed)
		WriteError(w, ctx, http.StatusPreconditionFailed, ErrCodePreconditionFailed, "No map uploaded for this session")
	default:
		slog.ErrorContext(r.Context(), "fog operation failed", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}
