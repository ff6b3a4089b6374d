package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/feed"
	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
	"github.com/openvtt/gridveil/internal/token"
)

// EventsHandlers serves the per-session SSE change feed.
type EventsHandlers struct {
	gate     *session.Gate
	tokens   token.Repository
	messages chat.Repository
	logger   *slog.Logger
	opts     []feed.Option
}

// NewEventsHandlers creates handlers for the SSE change feed. The feed
// options (poll interval, ping interval, metrics) are applied to every
// producer spawned for a connection.
func NewEventsHandlers(gate *session.Gate, tokens token.Repository, messages chat.Repository, logger *slog.Logger, opts ...feed.Option) *EventsHandlers {
	return &EventsHandlers{
		gate:     gate,
		tokens:   tokens,
		messages: messages,
		logger:   logger,
		opts:     opts,
	}
}

// Stream handles GET /sessions/{id}/events. One feed producer runs for the
// lifetime of the connection; the stream starts at connection time, so writes
// that happened before the subscription are never replayed. Teardown happens
// when the client disconnects and the request context is cancelled.
func (h *EventsHandlers) Stream(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if _, ok := requireAccess(w, r, h.gate, sessionID, userID); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	producer := feed.NewProducer(h.tokens, h.messages, sessionID, h.logger, h.opts...)

	emit := func(delta feed.Delta) error {
		payload, err := json.Marshal(delta)
		if err != nil {
			return fmt.Errorf("failed to encode delta: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return fmt.Errorf("failed to write delta: %w", err)
		}
		flusher.Flush()
		return nil
	}

	if err := producer.Run(r.Context(), emit); err != nil {
		// The connection is gone; nothing useful can be written back.
		h.logger.InfoContext(r.Context(), "change feed terminated",
			"error", err,
			"session_id", sessionID,
			"user_id", userID,
		)
	}
}
