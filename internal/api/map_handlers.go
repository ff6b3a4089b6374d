package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openvtt/gridveil/internal/mapstore"
	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
)

// UploadMapRequest is the request body for setting a session's map.
// VTTData, when present, is the raw content of a Universal VTT export whose
// line-of-sight walls are extracted into the stored map.
type UploadMapRequest struct {
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	GridSize int    `json:"grid_size,omitempty"`
	VTTData  string `json:"vtt_data,omitempty"`
}

// UploadURLRequest is the request body for a pre-signed upload URL.
type UploadURLRequest struct {
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// MapHandlers holds dependencies for map HTTP handlers.
type MapHandlers struct {
	gate     *session.Gate
	repo     mapstore.Repository
	uploader *mapstore.Uploader // nil when blob storage is not configured
}

// NewMapHandlers creates a new MapHandlers instance. uploader may be nil; the
// upload-url endpoint then reports that direct uploads are unavailable.
func NewMapHandlers(gate *session.Gate, repo mapstore.Repository, uploader *mapstore.Uploader) *MapHandlers {
	return &MapHandlers{gate: gate, repo: repo, uploader: uploader}
}

// Get handles GET /sessions/{id}/map - returns the session's current map.
func (h *MapHandlers) Get(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	m, err := h.repo.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, mapstore.ErrMapNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeMapNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeMapNotFound, "No map loaded for this session")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get map", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get map")
		return
	}

	writeJSON(w, r, http.StatusOK, m)
}

// Upload handles POST /sessions/{id}/map - sets or replaces the session's
// map. DM only. Replacing a map keeps existing fog state untouched.
func (h *MapHandlers) Upload(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}
	if !access.IsDM() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the DM can upload maps")
		return
	}

	var req UploadMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Map name is required")
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Map dimensions must be positive")
		return
	}
	if req.GridSize <= 0 {
		req.GridSize = mapstore.DefaultGridSize
	}

	m := &mapstore.Map{
		SessionID: sessionID,
		Name:      req.Name,
		ImageURL:  req.ImageURL,
		Width:     req.Width,
		Height:    req.Height,
		GridSize:  req.GridSize,
	}
	if req.VTTData != "" {
		m.Walls = mapstore.ParseVTT(req.VTTData)
	}

	if err := h.repo.Put(r.Context(), m); err != nil {
		slog.ErrorContext(r.Context(), "failed to store map", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store map")
		return
	}

	writeJSON(w, r, http.StatusOK, m)
}

// UploadURL handles POST /sessions/{id}/map/upload-url - generates a
// pre-signed PUT URL so the DM can upload the map image directly to blob
// storage.
func (h *MapHandlers) UploadURL(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	access, ok := requireAccess(w, r, h.gate, sessionID, userID)
	if !ok {
		return
	}
	if !access.IsDM() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the DM can upload maps")
		return
	}

	if h.uploader == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePreconditionFailed)
		WriteError(w, ctx, http.StatusPreconditionFailed, ErrCodePreconditionFailed, "Map storage is not configured")
		return
	}

	var req UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := mapstore.ValidateContentType(req.ContentType); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType, err.Error())
		return
	}
	if err := h.uploader.ValidateFileSize(req.SizeBytes); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	resp, err := h.uploader.GenerateSignedURL(r.Context(), mapstore.SignedURLRequest{
		SessionID:   sessionID,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate signed URL", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to generate upload URL")
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}
