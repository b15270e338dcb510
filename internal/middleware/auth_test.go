package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moontv/gateway/internal/authcookie"
	"github.com/moontv/gateway/internal/logging"
)

const testSecret = "admin-password"

func authCookie(t *testing.T, username, secret string) *http.Cookie {
	t.Helper()
	value, err := authcookie.Encode(authcookie.Build(username, secret, time.Now()))
	if err != nil {
		t.Fatalf("encode cookie: %v", err)
	}
	return &http.Cookie{Name: authcookie.Name, Value: value}
}

func captureUsername(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetUsername(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewAuthMiddleware(t *testing.T) {
	logger := logging.NewDiscard()
	middleware := NewAuthMiddleware(testSecret, logger, []string{"/health", "/metrics"})

	if middleware == nil {
		t.Fatal("NewAuthMiddleware() returned nil")
	}
	if middleware.logger != logger {
		t.Error("logger not set correctly")
	}
	if len(middleware.skipPaths) != 2 {
		t.Errorf("skipPaths length = %d, want 2", len(middleware.skipPaths))
	}
	if !middleware.skipPaths["/health"] {
		t.Error("skipPaths does not contain /health")
	}
}

func TestAuthMiddleware_ValidCookie(t *testing.T) {
	middleware := NewAuthMiddleware(testSecret, logging.NewDiscard(), nil)

	var got string
	req := httptest.NewRequest(http.MethodGet, "/api/server-config", nil)
	req.AddCookie(authCookie(t, "alice", testSecret))
	rr := httptest.NewRecorder()

	middleware.Handler(captureUsername(&got)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got != "alice" {
		t.Errorf("username = %q, want %q", got, "alice")
	}
}

func TestAuthMiddleware_ForgedCookieIsAnonymous(t *testing.T) {
	middleware := NewAuthMiddleware(testSecret, logging.NewDiscard(), nil)

	var got string
	req := httptest.NewRequest(http.MethodGet, "/api/server-config", nil)
	req.AddCookie(authCookie(t, "alice", "wrong-secret"))
	rr := httptest.NewRecorder()

	middleware.Handler(captureUsername(&got)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got != "" {
		t.Errorf("username = %q, want anonymous", got)
	}
}

func TestAuthMiddleware_MalformedCookie(t *testing.T) {
	middleware := NewAuthMiddleware(testSecret, logging.NewDiscard(), nil)

	var got string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: authcookie.Name, Value: "%7Bnot-json"})
	rr := httptest.NewRecorder()

	middleware.Handler(captureUsername(&got)).ServeHTTP(rr, req)

	if got != "" {
		t.Errorf("username = %q, want anonymous", got)
	}
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	middleware := NewAuthMiddleware(testSecret, logging.NewDiscard(), []string{"/health"})

	var got string
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.AddCookie(authCookie(t, "alice", testSecret))
	rr := httptest.NewRecorder()

	middleware.Handler(captureUsername(&got)).ServeHTTP(rr, req)

	if got != "" {
		t.Errorf("username = %q, want skipped", got)
	}
}

func TestAuthMiddleware_EmptySecretNeverAuthenticates(t *testing.T) {
	middleware := NewAuthMiddleware("", logging.NewDiscard(), nil)

	var got string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(authCookie(t, "alice", ""))
	rr := httptest.NewRecorder()

	middleware.Handler(captureUsername(&got)).ServeHTTP(rr, req)

	if got != "" {
		t.Errorf("username = %q, want anonymous", got)
	}
}
