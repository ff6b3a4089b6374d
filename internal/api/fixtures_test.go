package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openvtt/gridveil/internal/middleware"
	"github.com/openvtt/gridveil/internal/session"
)

// Shared fixture IDs used across handler tests.
const (
	testCampaignID = "camp-1"
	testSessionID  = "sess-1"
	testDMID       = "user-dm"
	testPlayerID   = "user-player"
	testOutsiderID = "user-outsider"
)

// newTestGate builds a gate over an in-memory session repository with one
// campaign, one session, a DM and one participant.
func newTestGate() *session.Gate {
	repo := session.NewInMemoryRepository()
	repo.PutCampaign(&session.Campaign{ID: testCampaignID, Name: "Test Campaign", DMID: testDMID})
	repo.PutSession(&session.Session{ID: testSessionID, CampaignID: testCampaignID, Name: "Session 1"})
	repo.AddParticipant(testSessionID, testPlayerID)
	return session.NewGate(repo)
}

// authedRequest builds a request carrying userID the way the auth middleware
// would have set it. An empty userID leaves the request unauthenticated.
func authedRequest(method, target string, body io.Reader, userID string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if userID != "" {
		req = req.WithContext(middleware.SetUserID(req.Context(), userID))
	}
	return req
}

// jsonBody marshals v into a request body reader.
func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return strings.NewReader(string(data))
}

// decodeBody unmarshals a recorded response body into out.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// errorCode extracts the error code from a recorded error response.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, w, &resp)
	return resp.Error.Code
}
