package net

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	server "lorule-online/server"
	"lorule-online/server/internal/auth"
	"lorule-online/server/internal/net/ws"
)

func newTestHandler(t *testing.T) nethttp.Handler {
	t.Helper()

	store, err := auth.LoadStore(filepath.Join(t.TempDir(), "accounts.json"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("load account store: %v", err)
	}
	accounts := auth.NewService(store, auth.NewTokens("test-secret", time.Hour, nil))

	hub := server.NewHub(server.NewRegistry(nil), server.DefaultHubConfig())
	wsHandler := ws.NewHandler(hub, accounts, ws.HandlerConfig{})
	return NewHTTPHandler(hub, accounts, wsHandler, HTTPHandlerConfig{})
}

func postJSON(t *testing.T, handler nethttp.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(nethttp.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(nethttp.MethodGet, "/health", nil))

	if recorder.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if body := recorder.Body.String(); body != "ok" {
		t.Fatalf("expected ok, got %q", body)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(nethttp.MethodGet, "/diagnostics", nil))

	if recorder.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Heartbeat int64  `json:"heartbeatMillis"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("expected ok status, got %q", payload.Status)
	}
	if payload.Heartbeat != server.HeartbeatInterval().Milliseconds() {
		t.Fatalf("unexpected heartbeat interval: %d", payload.Heartbeat)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	recorder := postJSON(t, handler, "/auth/register", credentialsRequest{Name: "alice", Password: "correct horse"})
	if recorder.Code != nethttp.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var created registerResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Name != "alice" || !strings.HasPrefix(created.ID, "u-") {
		t.Fatalf("unexpected response: %+v", created)
	}

	// Duplicate name conflicts.
	recorder = postJSON(t, handler, "/auth/register", credentialsRequest{Name: "alice", Password: "another secret"})
	if recorder.Code != nethttp.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", recorder.Code)
	}

	// Constraint violations are bad requests.
	recorder = postJSON(t, handler, "/auth/register", credentialsRequest{Name: "alice2", Password: "short"})
	if recorder.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400 for a short password, got %d", recorder.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	if code := postJSON(t, handler, "/auth/register", credentialsRequest{Name: "alice", Password: "correct horse"}).Code; code != nethttp.StatusCreated {
		t.Fatalf("register failed with %d", code)
	}

	recorder := postJSON(t, handler, "/auth/login", credentialsRequest{Name: "alice", Password: "correct horse"})
	if recorder.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var login loginResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected a token")
	}
}

func TestLoginFailureIsOpaque(t *testing.T) {
	handler := newTestHandler(t)

	if code := postJSON(t, handler, "/auth/register", credentialsRequest{Name: "alice", Password: "correct horse"}).Code; code != nethttp.StatusCreated {
		t.Fatalf("register failed with %d", code)
	}

	wrongPassword := postJSON(t, handler, "/auth/login", credentialsRequest{Name: "alice", Password: "wrong"})
	unknownName := postJSON(t, handler, "/auth/login", credentialsRequest{Name: "nobody", Password: "correct horse"})

	if wrongPassword.Code != nethttp.StatusUnauthorized || unknownName.Code != nethttp.StatusUnauthorized {
		t.Fatalf("expected 401 for both failures, got %d and %d", wrongPassword.Code, unknownName.Code)
	}
	if wrongPassword.Body.String() != unknownName.Body.String() {
		t.Fatalf("expected identical failure bodies, got %q and %q", wrongPassword.Body.String(), unknownName.Body.String())
	}
}

func TestAuthEndpointsRejectNonPost(t *testing.T) {
	handler := newTestHandler(t)

	for _, path := range []string{"/auth/register", "/auth/login"} {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(nethttp.MethodGet, path, nil))
		if recorder.Code != nethttp.StatusMethodNotAllowed {
			t.Fatalf("expected 405 for GET %s, got %d", path, recorder.Code)
		}
	}
}
