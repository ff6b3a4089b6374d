package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
)

// requireUser extracts the authenticated user ID from the request context.
// Writes a 401 response and returns false if the auth middleware did not run
// or the token carried no subject.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return "", false
	}
	return userID, true
}

// requireAccess resolves the caller's role for the session through the gate.
// Session existence is checked before authorization, so an unknown session is
// a 404 even for callers with no access anywhere. Writes the error response
// and returns false on failure.
func requireAccess(w http.ResponseWriter, r *http.Request, gate *session.Gate, sessionID, userID string) (*session.Access, bool) {
	access, err := gate.Check(r.Context(), sessionID, userID)
	if err != nil {
		var ctx context.Context
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			ctx = middleware.SetErrorCode(r.Context(), ErrCodeSessionNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeSessionNotFound, "Session not found")
		case errors.Is(err, session.ErrForbidden):
			ctx = middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "You do not have access to this session")
		default:
			slog.ErrorContext(r.Context(), "failed to resolve session access",
				"error", err,
				"session_id", sessionID,
				"user_id", userID,
			)
			ctx = middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		}
		return nil, false
	}
	return access, true
}
