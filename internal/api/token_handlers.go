package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
	"github.com/openvtt/gridveil/internal/token"
)

// CreateTokenRequest is the request body for placing a token on the map.
type CreateTokenRequest struct {
	Name          string   `json:"name"`
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	Size          int      `json:"size"`
	VisionRadius  *float64 `json:"vision_radius,omitempty"`
	HasDarkvision bool     `json:"has_darkvision"`
	ImageURL      string   `json:"image_url,omitempty"`
	CharacterID   *string  `json:"character_id,omitempty"`
}

// UpdateTokenRequest carries partial token mutations. Absent fields are left
// unchanged.
type UpdateTokenRequest struct {
	Name          *string  `json:"name,omitempty"`
	X             *float64 `json:"x,omitempty"`
	Y             *float64 `json:"y,omitempty"`
	Size          *int     `json:"size,omitempty"`
	VisionRadius  *float64 `json:"vision_radius,omitempty"`
	HasDarkvision *bool    `json:"has_darkvision,omitempty"`
	ImageURL      *string  `json:"image_url,omitempty"`
}

// TokenHandlers holds dependencies for token HTTP handlers.
type TokenHandlers struct {
	gate *session.Gate
	repo token.Repository
}

// NewTokenHandlers creates a new TokenHandlers instance.
func NewTokenHandlers(gate *session.Gate, repo token.Repository) *TokenHandlers {
	return &TokenHandlers{gate: gate, repo: repo}
}

// List handles GET /sessions/{id}/tokens - lists all tokens in the session.
func (h *TokenHandlers) List(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	tokens, err := h.repo.ListBySession(r.Context(), sessionID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list tokens", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list tokens")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"tokens": tokens})
}

// Create handles POST /sessions/{id}/tokens - places a new token.
// Any session member may create tokens; the creator becomes the owner.
func (h *TokenHandlers) Create(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "name is required")
		return
	}
	if req.Size < 1 {
		req.Size = 1
	}

	t := &token.Token{
		SessionID:     sessionID,
		Name:          strings.TrimSpace(req.Name),
		X:             req.X,
		Y:             req.Y,
		Size:          req.Size,
		VisionRadius:  req.VisionRadius,
		HasDarkvision: req.HasDarkvision,
		ImageURL:      req.ImageURL,
		CharacterID:   req.CharacterID,
		OwnerID:       &userID,
	}

	if err := h.repo.Insert(r.Context(), t); err != nil {
		slog.ErrorContext(r.Context(), "failed to create token", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create token")
		return
	}

	writeJSON(w, r, http.StatusCreated, t)
}

// Update handles PATCH /sessions/{id}/tokens/{token_id} - applies a partial
// update. The DM may update any token; players only their own.
func (h *TokenHandlers) Update(w http.ResponseWriter, r *http.Request, sessionID, tokenID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}

	existing, ok := h.loadSessionToken(w, r, sessionID, tokenID)
	if !ok {
		return
	}

	if !access.IsDM() && (existing.OwnerID == nil || *existing.OwnerID != userID) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "You can only update your own tokens")
		return
	}

	var req UpdateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "name cannot be empty")
		return
	}
	if req.Size != nil && *req.Size < 1 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "size must be at least 1")
		return
	}

	updated, err := h.repo.Update(r.Context(), tokenID, token.Update{
		Name:          req.Name,
		X:             req.X,
		Y:             req.Y,
		Size:          req.Size,
		VisionRadius:  req.VisionRadius,
		HasDarkvision: req.HasDarkvision,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeTokenNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeTokenNotFound, "Token not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to update token", "error", err, "token_id", tokenID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update token")
		return
	}

	writeJSON(w, r, http.StatusOK, updated)
}

// Delete handles DELETE /sessions/{id}/tokens/{token_id}. DM only.
func (h *TokenHandlers) Delete(w http.ResponseWriter, r *http.Request, sessionID, tokenID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}

	if _, ok := h.loadSessionToken(w, r, sessionID, tokenID); !ok {
		return
	}

	if !access.IsDM() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the DM can delete tokens")
		return
	}

	if err := h.repo.Delete(r.Context(), tokenID); err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeTokenNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeTokenNotFound, "Token not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to delete token", "error", err, "token_id", tokenID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete token")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// loadSessionToken fetches a token and verifies it belongs to the session.
// Tokens from other sessions read as not found so IDs cannot be probed
// across sessions. Writes the error response and returns false on failure.
func (h *TokenHandlers) loadSessionToken(w http.ResponseWriter, r *http.Request, sessionID, tokenID string) (*token.Token, bool) {
	existing, err := h.repo.GetByID(r.Context(), tokenID)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeTokenNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeTokenNotFound, "Token not found")
			return nil, false
		}
		slog.ErrorContext(r.Context(), "failed to load token", "error", err, "token_id", tokenID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return nil, false
	}
	if existing.SessionID != sessionID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeTokenNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeTokenNotFound, "Token not found")
		return nil, false
	}
	return existing, true
}
