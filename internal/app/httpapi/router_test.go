package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moontv/gateway/internal/authcookie"
	"github.com/moontv/gateway/internal/changelog"
	"github.com/moontv/gateway/internal/config"
	"github.com/moontv/gateway/internal/metrics"
	"github.com/moontv/gateway/internal/middleware"
	"github.com/moontv/gateway/internal/registration"
	"github.com/moontv/gateway/internal/siteconfig"
	"github.com/moontv/gateway/internal/storage"
	"github.com/moontv/gateway/internal/storage/memory"
)

const (
	adminPassword = "super-secret-admin"
	debugKey      = "let-me-in"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type unreachableBackend struct {
	storage.Backend
}

func (unreachableBackend) CheckUserExist(context.Context, string) (bool, error) {
	return false, errors.New("redis: check user: dial tcp 127.0.0.1:6379: connect: connection refused")
}

func (unreachableBackend) Ping(context.Context) error {
	return errors.New("redis: ping: connection refused")
}

type staticVersions struct {
	status changelog.Status
}

func (s staticVersions) Status() changelog.Status { return s.status }

func testConfig(storageType string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.AppEnv = "production"
	cfg.Storage.Type = storageType
	cfg.Storage.RedisURL = "redis://localhost:6379"
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = adminPassword
	cfg.Site.Name = "MoonTV"
	cfg.Site.EnableRegister = true
	cfg.Site.Version = "1.1.0"
	cfg.Site.APIBaseURL = "https://api.example.com"
	cfg.Debug.Key = debugKey
	cfg.Server.AllowedOrigins = "https://tv.example.com"
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, backend storage.Backend) http.Handler {
	t.Helper()
	m := metrics.New()
	loader := siteconfig.NewLoader(backend, siteconfig.Defaults{
		SiteName:       cfg.Site.Name,
		EnableRegister: cfg.Site.EnableRegister,
		AdminUsername:  cfg.Admin.Username,
	}, nil)
	svc := registration.New(registration.Options{
		StorageType:   cfg.Storage.Type,
		Env:           cfg.Env(),
		AdminUsername: cfg.Admin.Username,
		Secret:        cfg.Admin.Password,
		Backend:       backend,
		Loader:        loader,
		Metrics:       m,
		Now:           func() time.Time { return fixedNow },
	})

	return NewRouter(Deps{
		Config:       cfg,
		Metrics:      m,
		Backend:      backend,
		Registration: svc,
		Loader:       loader,
		Versions: staticVersions{status: changelog.Status{
			Current:      "1.1.0",
			Latest:       "1.2.0",
			UpdateStatus: changelog.StatusHasUpdate,
			Entries:      []changelog.Entry{{Version: "1.2.0", Added: []string{"thing"}}},
		}},
		Runtime: func(context.Context) RuntimeInfo {
			return RuntimeInfo{GoVersion: "go1.test", OS: "linux"}
		},
		Now: func() time.Time { return fixedNow },
	})
}

func register(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestRegister_EndToEndCookie(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), memory.New())

	rr := register(router, `{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decodeBody(t, rr)["ok"])

	resp := rr.Result()
	var auth *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == authcookie.Name {
			auth = c
		}
	}
	require.NotNil(t, auth, "auth cookie not set")
	assert.Equal(t, "/", auth.Path)
	assert.Equal(t, http.SameSiteLaxMode, auth.SameSite)
	assert.False(t, auth.HttpOnly)
	assert.False(t, auth.Secure)
	assert.WithinDuration(t, fixedNow.Add(7*24*time.Hour), auth.Expires, time.Second)

	payload, err := authcookie.Decode(auth.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.Username)
	assert.Equal(t, authcookie.Sign("alice", adminPassword), payload.Signature)
	assert.Equal(t, fixedNow.UnixMilli(), payload.Timestamp)
}

func TestRegister_ErrorResponses(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), memory.New())

	rr := register(router, `{"username":"admin","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "user already exists", decodeBody(t, rr)["error"])

	rr = register(router, `{"username":"bob","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = register(router, `{"username":"bob","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "user already exists", decodeBody(t, rr)["error"])

	rr = register(router, `{"username":"carol"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "password is required", decodeBody(t, rr)["error"])

	rr = register(router, `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "malformed request", decodeBody(t, rr)["error"])
}

func TestRegister_ConfigurationError(t *testing.T) {
	cfg := testConfig("upstash")
	router := newTestRouter(t, cfg, memory.New())

	rr := register(router, `{"username":"alice","password":"secret1"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "server configuration error", body["error"])
	assert.ElementsMatch(t, []interface{}{
		"missing required environment variable: UPSTASH_URL",
		"missing required environment variable: UPSTASH_TOKEN",
	}, body["details"])
}

func TestRegister_LocalStorageMode(t *testing.T) {
	router := newTestRouter(t, testConfig("localstorage"), memory.New())

	rr := register(router, `{"username":"alice","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "not supported")
}

func TestRegister_BackendFailureIsClassified(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), unreachableBackend{Backend: memory.New()})

	rr := register(router, `{"username":"alice","password":"secret1"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	msg := decodeBody(t, rr)["error"].(string)
	assert.Contains(t, msg, "Upstash Redis connection failed")
	assert.NotContains(t, msg, "127.0.0.1")
}

func TestRegister_RateLimited(t *testing.T) {
	cfg := testConfig("redis")
	backend := memory.New()
	m := metrics.New()
	loader := siteconfig.NewLoader(backend, siteconfig.Defaults{EnableRegister: true}, nil)
	router := NewRouter(Deps{
		Config:          cfg,
		Metrics:         m,
		Backend:         backend,
		Loader:          loader,
		Registration:    registration.New(registration.Options{StorageType: "redis", Env: cfg.Env(), Secret: adminPassword, Backend: backend, Loader: loader}),
		RegisterLimiter: middleware.NewRateLimiter(1, 1, nil),
	})

	first := register(router, `{"username":"u1","password":"secret1"}`)
	second := register(router, `{"username":"u2","password":"secret1"}`)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestDebugEnv_Gate(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), memory.New())

	for _, target := range []string{"/api/debug/env", "/api/debug/env?key=wrong"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusForbidden, rr.Code, target)
		assert.Equal(t, "access denied", decodeBody(t, rr)["error"])
	}

	cfg := testConfig("redis")
	cfg.Debug.Key = ""
	router = newTestRouter(t, cfg, memory.New())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/debug/env?key=", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code, "empty DEBUG_KEY must not match an empty key")

	cfg.Server.AppEnv = "development"
	router = newTestRouter(t, cfg, memory.New())
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/debug/env", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDebugEnv_Report(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), memory.New())

	req := httptest.NewRequest(http.MethodGet, "/api/debug/env?key="+debugKey, nil)
	req.Header.Set("User-Agent", "probe/1.0")
	req.Header.Set("CF-Ray", "abc123-SJC")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rr.Header().Get("Pragma"))
	assert.Equal(t, "0", rr.Header().Get("Expires"))
	assert.NotContains(t, rr.Body.String(), adminPassword)
	assert.NotContains(t, rr.Body.String(), "redis://localhost")

	body := decodeBody(t, rr)
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), body["timestamp"])

	validation := body["validation"].(map[string]interface{})
	assert.Equal(t, true, validation["valid"])

	env := body["environment"].(map[string]interface{})
	assert.Equal(t, "redis", env["storageType"])
	assert.Equal(t, true, env["hasPassword"])
	assert.Equal(t, "connected", env["backendStatus"])

	headers := body["headers"].(map[string]interface{})
	assert.Equal(t, "probe/1.0", headers["userAgent"])
	assert.Equal(t, "abc123-SJC", headers["cfRay"])

	cf := body["cloudflareDetection"].(map[string]interface{})
	assert.Equal(t, true, cf["cfRayHeader"])
	assert.Len(t, cf["hints"], 1)

	rt := body["runtime"].(map[string]interface{})
	assert.Equal(t, "go1.test", rt["goVersion"])
}

func TestDebugEnv_BackendStatus(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), unreachableBackend{Backend: memory.New()})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/debug/env?key="+debugKey, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	env := decodeBody(t, rr)["environment"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(env["backendStatus"].(string), "connection_failed: "))

	router = newTestRouter(t, testConfig("localstorage"), memory.New())
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/debug/env?key="+debugKey, nil))
	env = decodeBody(t, rr)["environment"].(map[string]interface{})
	assert.Equal(t, "unknown", env["backendStatus"])
}

func TestServerConfig(t *testing.T) {
	backend := memory.New()
	router := newTestRouter(t, testConfig("redis"), backend)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/server-config", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "MoonTV", body["SiteName"])
	assert.Equal(t, "redis", body["StorageType"])
	assert.Equal(t, true, body["EnableRegister"])
	assert.Equal(t, "https://api.example.com", body["ApiBaseUrl"])

	stored := &storage.AdminConfig{}
	stored.SiteConfig.SiteName = "Stored Name"
	require.NoError(t, backend.SaveAdminConfig(context.Background(), stored))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/server-config", nil))
	body = decodeBody(t, rr)
	assert.Equal(t, "Stored Name", body["SiteName"])
	assert.Equal(t, false, body["EnableRegister"])
}

func TestVersion(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), memory.New())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "1.1.0", body["current"])
	assert.Equal(t, "1.2.0", body["latest"])
	assert.Equal(t, "has_update", body["updateStatus"])
	assert.Len(t, body["changelog"], 1)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), memory.New())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))

	register(router, `{"username":"alice","password":"secret1"}`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `moontv_registration_attempts_total{outcome="success"} 1`)
	assert.Contains(t, rr.Body.String(), `path="/api/register"`)

	router = newTestRouter(t, testConfig("redis"), unreachableBackend{Backend: memory.New()})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", decodeBody(t, rr)["status"])
}

func TestCORSPreflightOnRegister(t *testing.T) {
	router := newTestRouter(t, testConfig("redis"), memory.New())

	req := httptest.NewRequest(http.MethodOptions, "/api/register", nil)
	req.Header.Set("Origin", "https://tv.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://tv.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
