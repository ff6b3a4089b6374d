package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/openvtt/gridveil/internal/idempotency"
)

// IdempotencyKeyHeader is the client-chosen key identifying one logical
// mutation across retries.
const IdempotencyKeyHeader = "Idempotency-Key"

type idempotencyKeyContextKey struct{}

// SetIdempotencyKey stores the idempotency key on the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey returns the idempotency key from the context, or "".
func GetIdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyContextKey{}).(string)
	return key
}

// replayCaptureWriter records the status and body of a response so a
// successful mutation can be stored for replay.
type replayCaptureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	wrote      bool
}

func (w *replayCaptureWriter) WriteHeader(statusCode int) {
	if !w.wrote {
		w.statusCode = statusCode
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *replayCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func writeIdempotencyError(w http.ResponseWriter, r *http.Request, code, message string) {
	UpdateResponseContext(w, SetErrorCode(r.Context(), code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = io.WriteString(w, `{"error":{"code":"`+code+`","message":"`+message+`"}}`)
}

// IdempotencyMiddleware makes POSTs to the configured routes replay-safe.
// Routes are matched after path normalization, so "/sessions/{id}/roll"
// covers the roll endpoint of every session. A request without an
// Idempotency-Key is rejected; a request whose key already completed gets
// the stored response verbatim, so a retried dice roll can never land
// twice. Only 2xx responses are stored: a failed roll may be retried fresh
// under the same key.
func IdempotencyMiddleware(repo idempotency.Repository, routes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !routes[normalizePath(r.URL.Path)] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				writeIdempotencyError(w, r, "missing_idempotency_key",
					"Idempotency-Key header is required for this request")
				return
			}
			if err := idempotency.ValidateKey(key); err != nil {
				code := "invalid_idempotency_key"
				message := "Invalid Idempotency-Key format"
				if err == idempotency.ErrKeyTooLong {
					code = "idempotency_key_too_long"
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				writeIdempotencyError(w, r, code, message)
				return
			}

			ctx := SetIdempotencyKey(r.Context(), key)
			r = r.WithContext(ctx)

			existing, err := repo.Get(key)
			if err == nil {
				slog.InfoContext(ctx, "replaying stored response for retried request",
					"key", key, "status", existing.StatusCode)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.StatusCode)
				_, _ = io.WriteString(w, existing.ResponseBody)
				return
			}
			if err != idempotency.ErrKeyNotFound {
				// Replay store is unavailable; serve the request without the
				// guarantee rather than failing it.
				slog.ErrorContext(ctx, "idempotency lookup failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &replayCaptureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}
			body := capture.body.String()
			record := &idempotency.Record{
				Key:          key,
				Method:       r.Method,
				Route:        r.URL.Path,
				ResponseHash: idempotency.HashBody(body),
				ResponseBody: body,
				StatusCode:   capture.statusCode,
			}
			if err := repo.Store(record); err != nil {
				// The response is already sent; a lost record only costs the
				// replay guarantee for this key.
				slog.ErrorContext(ctx, "failed to store replay record", "key", key, "error", err)
			}
		})
	}
}
