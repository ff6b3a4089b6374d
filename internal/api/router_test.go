package api

import (
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/dice"
	"github.com/openvtt/gridveil/internal/fog"
	"github.com/openvtt/gridveil/internal/mapstore"
	"github.com/openvtt/gridveil/internal/token"
)

func newTestRouter() *Router {
	gate := newTestGate()
	tokens := token.NewInMemoryRepository()
	messages := chat.NewInMemoryRepository()
	maps := mapstore.NewInMemoryRepository()
	fogSvc := fog.NewService(fog.NewInMemoryRepository(), tokens, maps, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRouter(
		NewEventsHandlers(gate, tokens, messages, logger),
		NewFogHandlers(fogSvc, gate),
		NewVisionHandlers(gate, tokens, maps),
		NewTokenHandlers(gate, tokens),
		NewChatHandlers(gate, messages, dice.NewRoller(rand.New(rand.NewSource(1)))),
		NewMapHandlers(gate, maps, nil),
	)
}

func TestRouter_DispatchesKnownRoutes(t *testing.T) {
	rt := newTestRouter()
	mux := http.NewServeMux()
	rt.Register(mux)

	// Routes that reach their handler respond with something other than the
	// router's own 404/405.
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/sessions/sess-1/fog", http.StatusOK},
		{http.MethodGet, "/sessions/sess-1/vision", http.StatusOK},
		{http.MethodGet, "/sessions/sess-1/tokens", http.StatusOK},
		{http.MethodGet, "/sessions/sess-1/messages", http.StatusOK},
		{http.MethodGet, "/sessions/sess-1/map", http.StatusNotFound},
		{http.MethodPost, "/sessions/sess-1/roll", http.StatusBadRequest},
		{http.MethodPost, "/sessions/sess-1/fog/clear", http.StatusOK},
		{http.MethodDelete, "/sessions/sess-1/tokens/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := authedRequest(tt.method, tt.path, nil, testDMID)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRouter_UnknownResource(t *testing.T) {
	rt := newTestRouter()
	mux := http.NewServeMux()
	rt.Register(mux)

	for _, path := range []string{
		"/sessions/sess-1/treasure",
		"/sessions/sess-1",
		"/sessions/sess-1/fog/unknown",
		"/sessions/sess-1/tokens/t-1/extra",
	} {
		t.Run(path, func(t *testing.T) {
			req := authedRequest(http.MethodGet, path, nil, testDMID)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("expected status 404, got %d", w.Code)
			}
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rt := newTestRouter()
	mux := http.NewServeMux()
	rt.Register(mux)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/sessions/sess-1/fog"},
		{http.MethodPost, "/sessions/sess-1/vision"},
		{http.MethodGet, "/sessions/sess-1/roll"},
		{http.MethodPut, "/sessions/sess-1/tokens"},
		{http.MethodGet, "/sessions/sess-1/tokens/t-1"},
		{http.MethodPatch, "/sessions/sess-1/map"},
		{http.MethodGet, "/sessions/sess-1/map/upload-url"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := authedRequest(tt.method, tt.path, nil, testDMID)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected status 405, got %d", w.Code)
			}
		})
	}
}
