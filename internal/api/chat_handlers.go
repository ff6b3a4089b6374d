package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/dice"
	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
)

// SendMessageRequest is the request body for posting a chat message.
type SendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// RollRequest is the request body for a dice roll.
type RollRequest struct {
	Notation     string `json:"notation"`
	Advantage    bool   `json:"advantage,omitempty"`
	Disadvantage bool   `json:"disadvantage,omitempty"`
}

// RollResponse is the roll outcome plus the chat message it produced.
type RollResponse struct {
	*dice.Result
	Message *chat.Message `json:"message"`
}

// ChatHandlers holds dependencies for chat and dice HTTP handlers.
type ChatHandlers struct {
	gate   *session.Gate
	repo   chat.Repository
	roller *dice.Roller
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(gate *session.Gate, repo chat.Repository, roller *dice.Roller) *ChatHandlers {
	return &ChatHandlers{gate: gate, repo: repo, roller: roller}
}

// List handles GET /sessions/{id}/messages - returns one page of history.
// Query params: limit (1..100, default 50) and cursor (message ID from a
// previous page's next_cursor).
func (h *ChatHandlers) List(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	limit := chat.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > chat.MaxPageSize {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	page, err := h.repo.ListBySession(r.Context(), sessionID, limit, cursor)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list messages", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list messages")
		return
	}

	writeJSON(w, r, http.StatusOK, page)
}

// Send handles POST /sessions/{id}/messages - posts a chat message.
func (h *ChatHandlers) Send(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.Type == "" {
		req.Type = chat.TypeText
	}

	m := &chat.Message{
		SessionID: sessionID,
		UserID:    userID,
		Content:   req.Content,
		Type:      req.Type,
	}
	if err := m.Validate(); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := h.repo.Insert(r.Context(), m); err != nil {
		slog.ErrorContext(r.Context(), "failed to store message", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store message")
		return
	}

	writeJSON(w, r, http.StatusCreated, m)
}

// Roll handles POST /sessions/{id}/roll - rolls dice and posts the result to
// the session's chat as a DICE_ROLL message.
func (h *ChatHandlers) Roll(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	var req RollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	result, err := h.roller.Roll(req.Notation, req.Advantage, req.Disadvantage)
	if err != nil {
		if errors.Is(err, dice.ErrInvalidNotation) || errors.Is(err, dice.ErrDiceCount) || errors.Is(err, dice.ErrDiceSize) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidNotation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidNotation, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "dice roll failed", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	m := &chat.Message{
		SessionID: sessionID,
		UserID:    userID,
		Content:   result.Describe(),
		Type:      chat.TypeDiceRoll,
	}
	if err := h.repo.Insert(r.Context(), m); err != nil {
		slog.ErrorContext(r.Context(), "failed to store roll message", "error", err, "session_id", sessionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store roll result")
		return
	}

	writeJSON(w, r, http.StatusOK, RollResponse{Result: result, Message: m})
}
