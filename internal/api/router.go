package api

import (
	"net/http"
	"strings"

	"github.com/openvtt/gridveil/internal/middleware"
)

// Router dispatches /sessions/{id}/{resource} requests to the resource
// handlers. Session IDs are opaque path segments; anything after the
// resource name is a sub-action (fog/clear, map/upload-url) or a resource
// ID (tokens/{token_id}).
type Router struct {
	events *EventsHandlers
	fog    *FogHandlers
	vision *VisionHandlers
	tokens *TokenHandlers
	chat   *ChatHandlers
	maps   *MapHandlers
}

// NewRouter creates a Router over the given handler sets.
func NewRouter(events *EventsHandlers, fog *FogHandlers, vision *VisionHandlers, tokens *TokenHandlers, chat *ChatHandlers, maps *MapHandlers) *Router {
	return &Router{events: events, fog: fog, vision: vision, tokens: tokens, chat: chat, maps: maps}
}

// Register attaches the session routes to the mux.
func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sessions/", rt.route)
}

func (rt *Router) route(w http.ResponseWriter, r *http.Request) {
	// Expected: /sessions/{id}/{resource}[/{rest}]
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}
	sessionID := pathParts[0]
	resource := pathParts[1]
	rest := pathParts[2:]

	switch resource {
	case "events":
		rt.routeEvents(w, r, sessionID, rest)
	case "fog":
		rt.routeFog(w, r, sessionID, rest)
	case "vision":
		rt.routeVision(w, r, sessionID, rest)
	case "tokens":
		rt.routeTokens(w, r, sessionID, rest)
	case "messages":
		rt.routeMessages(w, r, sessionID, rest)
	case "roll":
		rt.routeRoll(w, r, sessionID, rest)
	case "map":
		rt.routeMap(w, r, sessionID, rest)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
	}
}

func (rt *Router) routeEvents(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	if len(rest) > 0 {
		writeNotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}
	rt.events.Stream(w, r, sessionID)
}

func (rt *Router) routeFog(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, r)
			return
		}
		rt.fog.Get(w, r, sessionID)
		return
	}
	if len(rest) != 1 {
		writeNotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	switch rest[0] {
	case "reveal":
		rt.fog.Reveal(w, r, sessionID)
	case "clear":
		rt.fog.Clear(w, r, sessionID)
	case "auto-reveal":
		rt.fog.AutoReveal(w, r, sessionID)
	default:
		writeNotFound(w, r)
	}
}

func (rt *Router) routeVision(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	if len(rest) > 0 {
		writeNotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}
	rt.vision.Get(w, r, sessionID)
}

func (rt *Router) routeTokens(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			rt.tokens.List(w, r, sessionID)
		case http.MethodPost:
			rt.tokens.Create(w, r, sessionID)
		default:
			writeMethodNotAllowed(w, r)
		}
	case 1:
		tokenID := rest[0]
		if tokenID == "" {
			writeNotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodPatch:
			rt.tokens.Update(w, r, sessionID, tokenID)
		case http.MethodDelete:
			rt.tokens.Delete(w, r, sessionID, tokenID)
		default:
			writeMethodNotAllowed(w, r)
		}
	default:
		writeNotFound(w, r)
	}
}

func (rt *Router) routeMessages(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	if len(rest) > 0 {
		writeNotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rt.chat.List(w, r, sessionID)
	case http.MethodPost:
		rt.chat.Send(w, r, sessionID)
	default:
		writeMethodNotAllowed(w, r)
	}
}

func (rt *Router) routeRoll(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	if len(rest) > 0 {
		writeNotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	rt.chat.Roll(w, r, sessionID)
}

func (rt *Router) routeMap(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			rt.maps.Get(w, r, sessionID)
		case http.MethodPost:
			rt.maps.Upload(w, r, sessionID)
		default:
			writeMethodNotAllowed(w, r)
		}
	case 1:
		if rest[0] != "upload-url" {
			writeNotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, r)
			return
		}
		rt.maps.UploadURL(w, r, sessionID)
	default:
		writeNotFound(w, r)
	}
}

func writeNotFound(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
	WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
	WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
}
