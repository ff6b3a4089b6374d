package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/openvtt/gridveil/internal/geometry"
	"github.com/openvtt/gridveil/internal/mapstore"
	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
	"github.com/openvtt/gridveil/internal/token"
	"github.com/openvtt/gridveil/internal/tracing"
)

// VisionResponse carries the per-token polygons plus their crude merge.
// Without a map the polygon list is empty and Merged is omitted.
type VisionResponse struct {
	Polygons [][]geometry.Point `json:"polygons"`
	Merged   []geometry.Point   `json:"merged,omitempty"`
}

// VisionHandlers holds dependencies for the vision computation endpoint.
type VisionHandlers struct {
	gate   *session.Gate
	tokens token.Repository
	maps   mapstore.Repository
}

// NewVisionHandlers creates a new VisionHandlers instance.
func NewVisionHandlers(gate *session.Gate, tokens token.Repository, maps mapstore.Repository) *VisionHandlers {
	return &VisionHandlers{gate: gate, tokens: tokens, maps: maps}
}

// Get handles GET /sessions/{id}/vision - computes the visible region for
// the caller. The DM sees every token's vision; players only the polygons of
// tokens they own. A session without a map yields an empty polygon set.
func (h *VisionHandlers) Get(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}

	m, err := h.maps.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, mapstore.ErrMapNotFound) {
			writeJSON(w, r, http.StatusOK, VisionResponse{Polygons: [][]geometry.Point{}})
			return
		}
		slog.ErrorContext(r.Context(), "failed to load map", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load map")
		return
	}

	tokens, err := h.tokens.ListBySession(r.Context(), sessionID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list tokens", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list tokens")
		return
	}

	_, endSpan := tracing.StartSpan(r.Context(), "compute_token_vision")
	polygons := make([][]geometry.Point, 0, len(tokens))
	for _, t := range tokens {
		if t.VisionRadius == nil {
			continue
		}
		if !access.IsDM() && (t.OwnerID == nil || *t.OwnerID != userID) {
			continue
		}

		polygon := geometry.TokenVision(
			geometry.Point{X: t.X, Y: t.Y},
			t.VisionRadius,
			m.Walls,
			float64(m.GridSize),
		)
		if len(polygon) > 0 {
			polygons = append(polygons, polygon)
		}
	}

	merged := geometry.MergePolygons(polygons)
	endSpan(nil)

	writeJSON(w, r, http.StatusOK, VisionResponse{
		Polygons: polygons,
		Merged:   merged,
	})
}
