// Package api provides HTTP API utilities including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openvtt/gridveil/internal/middleware"
)

// Error codes carried in the response envelope. Handlers also stamp them on
// the request context so the logging middleware can record them.
const (
	ErrCodeValidation  = "validation_error"
	ErrCodeAuthFailed  = "auth_failed"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeInternal    = "internal_error"
	ErrCodeForbidden   = "forbidden"
	ErrCodeConflict    = "conflict"
	ErrCodeBadRequest  = "bad_request"

	// ErrCodePreconditionFailed covers a missing prerequisite, such as
	// auto-reveal on a session with no map loaded.
	ErrCodePreconditionFailed = "precondition_failed"

	// ErrCodeUnsupportedType rejects map uploads that are not an accepted
	// image format.
	ErrCodeUnsupportedType = "unsupported_type"

	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeTokenNotFound   = "token_not_found"
	ErrCodeMapNotFound     = "map_not_found"

	// ErrCodeInvalidNotation means the dice notation did not parse.
	ErrCodeInvalidNotation = "invalid_notation"
)

// ErrorResponse is the envelope every API error uses:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes status and the JSON error envelope. Pass a context that
// has been through middleware.SetErrorCode so the access log carries the
// code too:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeSessionNotFound)
//	WriteError(w, ctx, http.StatusNotFound, api.ErrCodeSessionNotFound, "Session not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}
