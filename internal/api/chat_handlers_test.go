package api

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/dice"
)

func newChatHandlers(seed int64) (*ChatHandlers, *chat.InMemoryRepository) {
	repo := chat.NewInMemoryRepository()
	roller := dice.NewRoller(rand.New(rand.NewSource(seed)))
	return NewChatHandlers(newTestGate(), repo, roller), repo
}

func seedMessages(t *testing.T, repo *chat.InMemoryRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		m := &chat.Message{
			SessionID: testSessionID,
			UserID:    testPlayerID,
			Content:   fmt.Sprintf("message %d", i),
			Type:      chat.TypeText,
		}
		if err := repo.Insert(context.Background(), m); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}
}

func TestChatSend_StoresMessage(t *testing.T) {
	h, repo := newChatHandlers(1)

	req := authedRequest(http.MethodPost, "/sessions/sess-1/messages",
		jsonBody(t, map[string]any{"content": "Hello, party"}), testPlayerID)
	w := httptest.NewRecorder()

	h.Send(w, req, testSessionID)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var m chat.Message
	decodeBody(t, w, &m)

	if m.ID == "" {
		t.Error("expected message ID to be assigned")
	}
	if m.Type != chat.TypeText {
		t.Errorf("expected default type %s, got %s", chat.TypeText, m.Type)
	}
	if m.UserID != testPlayerID {
		t.Errorf("expected user %s, got %s", testPlayerID, m.UserID)
	}

	page, err := repo.ListBySession(context.Background(), testSessionID, 10, nil)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(page.Messages))
	}
}

func TestChatSend_RejectsInvalidContent(t *testing.T) {
	h, _ := newChatHandlers(1)

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("a", chat.MaxContentLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(http.MethodPost, "/sessions/sess-1/messages",
				jsonBody(t, map[string]any{"content": tt.content}), testPlayerID)
			w := httptest.NewRecorder()

			h.Send(w, req, testSessionID)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if code := errorCode(t, w); code != ErrCodeValidation {
				t.Errorf("expected error code %s, got %s", ErrCodeValidation, code)
			}
		})
	}
}

func TestChatSend_NoAccess(t *testing.T) {
	h, _ := newChatHandlers(1)

	req := authedRequest(http.MethodPost, "/sessions/sess-1/messages",
		jsonBody(t, map[string]any{"content": "hi"}), testOutsiderID)
	w := httptest.NewRecorder()

	h.Send(w, req, testSessionID)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
}

func TestChatList_DefaultLimit(t *testing.T) {
	h, repo := newChatHandlers(1)
	seedMessages(t, repo, chat.DefaultPageSize+10)

	req := authedRequest(http.MethodGet, "/sessions/sess-1/messages", nil, testPlayerID)
	w := httptest.NewRecorder()

	h.List(w, req, testSessionID)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var page chat.Page
	decodeBody(t, w, &page)

	if len(page.Messages) != chat.DefaultPageSize {
		t.Errorf("expected %d messages, got %d", chat.DefaultPageSize, len(page.Messages))
	}
	if page.NextCursor == nil {
		t.Error("expected a next cursor with more history remaining")
	}
}

func TestChatList_CursorWalksBackward(t *testing.T) {
	h, repo := newChatHandlers(1)
	seedMessages(t, repo, 5)

	req := authedRequest(http.MethodGet, "/sessions/sess-1/messages?limit=3", nil, testPlayerID)
	w := httptest.NewRecorder()

	h.List(w, req, testSessionID)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var first chat.Page
	decodeBody(t, w, &first)
	if len(first.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(first.Messages))
	}
	if first.NextCursor == nil {
		t.Fatal("expected a next cursor")
	}

	req = authedRequest(http.MethodGet, "/sessions/sess-1/messages?limit=3&cursor="+*first.NextCursor, nil, testPlayerID)
	w = httptest.NewRecorder()

	h.List(w, req, testSessionID)

	var second chat.Page
	decodeBody(t, w, &second)
	if len(second.Messages) != 2 {
		t.Errorf("expected 2 remaining messages, got %d", len(second.Messages))
	}
	if second.NextCursor != nil {
		t.Error("expected no cursor on the final page")
	}
}

func TestChatList_RejectsInvalidLimit(t *testing.T) {
	h, _ := newChatHandlers(1)

	for _, limit := range []string{"0", "101", "abc", "-5"} {
		t.Run(limit, func(t *testing.T) {
			req := authedRequest(http.MethodGet, "/sessions/sess-1/messages?limit="+limit, nil, testPlayerID)
			w := httptest.NewRecorder()

			h.List(w, req, testSessionID)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestRoll_ProducesResultAndChatMessage(t *testing.T) {
	h, repo := newChatHandlers(42)

	req := authedRequest(http.MethodPost, "/sessions/sess-1/roll",
		jsonBody(t, map[string]any{"notation": "2d6+3"}), testPlayerID)
	w := httptest.NewRecorder()

	h.Roll(w, req, testSessionID)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Notation string        `json:"notation"`
		Rolls    []int         `json:"rolls"`
		Modifier int           `json:"modifier"`
		Total    int           `json:"total"`
		Message  *chat.Message `json:"message"`
	}
	decodeBody(t, w, &resp)

	if resp.Notation != "2d6+3" {
		t.Errorf("expected notation 2d6+3, got %s", resp.Notation)
	}
	if len(resp.Rolls) != 2 {
		t.Fatalf("expected 2 rolls, got %d", len(resp.Rolls))
	}
	if resp.Modifier != 3 {
		t.Errorf("expected modifier 3, got %d", resp.Modifier)
	}
	wantTotal := resp.Rolls[0] + resp.Rolls[1] + 3
	if resp.Total != wantTotal {
		t.Errorf("expected total %d, got %d", wantTotal, resp.Total)
	}
	if resp.Message == nil {
		t.Fatal("expected a chat message with the roll")
	}
	if resp.Message.Type != chat.TypeDiceRoll {
		t.Errorf("expected message type %s, got %s", chat.TypeDiceRoll, resp.Message.Type)
	}

	page, err := repo.ListBySession(context.Background(), testSessionID, 10, nil)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected the roll to be stored in chat, got %d messages", len(page.Messages))
	}
	if page.Messages[0].Type != chat.TypeDiceRoll {
		t.Errorf("expected stored type %s, got %s", chat.TypeDiceRoll, page.Messages[0].Type)
	}
}

func TestRoll_AdvantageKeepsSingleD20(t *testing.T) {
	h, _ := newChatHandlers(7)

	req := authedRequest(http.MethodPost, "/sessions/sess-1/roll",
		jsonBody(t, map[string]any{"notation": "1d20+5", "advantage": true}), testPlayerID)
	w := httptest.NewRecorder()

	h.Roll(w, req, testSessionID)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Rolls     []int `json:"rolls"`
		Total     int   `json:"total"`
		Advantage bool  `json:"advantage"`
	}
	decodeBody(t, w, &resp)

	if len(resp.Rolls) != 1 {
		t.Fatalf("expected advantage to keep a single roll, got %d", len(resp.Rolls))
	}
	if !resp.Advantage {
		t.Error("expected advantage flag in response")
	}
	if resp.Total != resp.Rolls[0]+5 {
		t.Errorf("expected total %d, got %d", resp.Rolls[0]+5, resp.Total)
	}
}

func TestRoll_InvalidNotation(t *testing.T) {
	h, repo := newChatHandlers(1)

	for _, notation := range []string{"", "banana", "0d6", "2d1", "200d6"} {
		t.Run(notation, func(t *testing.T) {
			req := authedRequest(http.MethodPost, "/sessions/sess-1/roll",
				jsonBody(t, map[string]any{"notation": notation}), testPlayerID)
			w := httptest.NewRecorder()

			h.Roll(w, req, testSessionID)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if code := errorCode(t, w); code != ErrCodeInvalidNotation {
				t.Errorf("expected error code %s, got %s", ErrCodeInvalidNotation, code)
			}
		})
	}

	page, err := repo.ListBySession(context.Background(), testSessionID, 10, nil)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Errorf("expected no chat messages from failed rolls, got %d", len(page.Messages))
	}
}

func TestRoll_Unauthenticated(t *testing.T) {
	h, _ := newChatHandlers(1)

	req := authedRequest(http.MethodPost, "/sessions/sess-1/roll",
		jsonBody(t, map[string]any{"notation": "1d20"}), "")
	w := httptest.NewRecorder()

	h.Roll(w, req, testSessionID)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}
