package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/QV-Systems/rc-unified-crm-extension/auth"
	dbpkg "github.com/QV-Systems/rc-unified-crm-extension/db"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

func testServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	database, err := dbpkg.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	server := NewServer(database)
	return server, server.Handler()
}

func connectedToken(t *testing.T, server *Server) string {
	t.Helper()
	user := &models.User{
		ID:          "rc-100",
		Platform:    models.PlatformAccelerate,
		Hostname:    "api.accelerate.example",
		AuthType:    models.AuthTypeAPIKey,
		AccessToken: "key",
	}
	if err := dbpkg.SaveUser(server.db, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	token, err := auth.GenerateToken("rc-100", models.PlatformAccelerate)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return body
}

func TestMissingTokenRejected(t *testing.T) {
	_, handler := testServer(t)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contact?phoneNumber=%2B441234", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	body := decodeBody(t, w)
	if body["successful"] != false {
		t.Errorf("successful = %v", body["successful"])
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	_, handler := testServer(t)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contact?jwtToken=garbage&phoneNumber=%2B441234", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTokenForDisconnectedUserRejected(t *testing.T) {
	_, handler := testServer(t)

	// Signed token, but no credential row behind it.
	token, err := auth.GenerateToken("rc-999", models.PlatformClio)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contact?jwtToken="+token+"&phoneNumber=%2B441234", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAPIKeyLoginRejectsOAuthPlatform(t *testing.T) {
	_, handler := testServer(t)

	body := strings.NewReader(`{"platform": "clio", "hostname": "app.clio.com", "apiKey": "k"}`)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/apiKeyLogin", body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	resp := decodeBody(t, w)
	if msg, _ := resp["message"].(string); !strings.Contains(msg, "OAuth") {
		t.Errorf("message = %q", msg)
	}
}

func TestAPIKeyLoginUnknownPlatform(t *testing.T) {
	_, handler := testServer(t)

	body := strings.NewReader(`{"platform": "hubspot", "apiKey": "k"}`)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/apiKeyLogin", body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	resp := decodeBody(t, w)
	if msg, _ := resp["message"].(string); !strings.Contains(msg, "hubspot") {
		t.Errorf("message should name the platform, got %q", msg)
	}
}

func TestGetCallLogRequiresSessionID(t *testing.T) {
	server, handler := testServer(t)
	token := connectedToken(t, server)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callLog?jwtToken="+token, nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetCallLogUnloggedSession(t *testing.T) {
	server, handler := testServer(t)
	token := connectedToken(t, server)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callLog?jwtToken="+token+"&sessionId=never-logged", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["successful"] != false {
		t.Errorf("successful = %v", resp["successful"])
	}
	if _, ok := resp["ttl"]; !ok {
		t.Error("error responses carry a toast ttl")
	}
}

func TestCreateCallLogRequiresCallID(t *testing.T) {
	server, handler := testServer(t)
	token := connectedToken(t, server)

	body := strings.NewReader(`{"contact": {"id": "7"}, "call": {}, "note": "x"}`)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/callLog?jwtToken="+token, body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMessageLogRequiresMessages(t *testing.T) {
	server, handler := testServer(t)
	token := connectedToken(t, server)

	body := strings.NewReader(`{"contact": {"id": "7"}, "messages": []}`)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messageLog?jwtToken="+token, body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMethodRouting(t *testing.T) {
	_, handler := testServer(t)

	// DELETE has no route on /callLog.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/callLog", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
