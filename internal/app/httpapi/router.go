// Package httpapi exposes the gateway's HTTP endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/moontv/gateway/internal/changelog"
	"github.com/moontv/gateway/internal/config"
	"github.com/moontv/gateway/internal/logging"
	"github.com/moontv/gateway/internal/metrics"
	"github.com/moontv/gateway/internal/middleware"
	"github.com/moontv/gateway/internal/registration"
	"github.com/moontv/gateway/internal/siteconfig"
	"github.com/moontv/gateway/internal/storage"
)

// ServiceName labels logs and metrics.
const ServiceName = "gateway"

// VersionSource reports the cached version check.
type VersionSource interface {
	Status() changelog.Status
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Config       *config.Config
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	Backend      storage.Backend
	Registration *registration.Service
	Loader       *siteconfig.Loader
	Versions     VersionSource
	// RegisterLimiter throttles POST /api/register. Nil disables throttling.
	RegisterLimiter *middleware.RateLimiter
	// Runtime overrides the host probe used by the debug endpoint.
	Runtime func(ctx context.Context) RuntimeInfo
	Now     func() time.Time
}

type handler struct {
	Deps
}

// NewRouter builds the routed, instrumented handler.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logging.NewDiscard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Runtime == nil {
		d.Runtime = probeRuntime
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handler{Deps: d}

	r := mux.NewRouter()
	r.Use(middleware.NewTracingMiddleware(d.Logger).Handler)
	r.Use(middleware.MetricsMiddleware(ServiceName, d.Metrics))
	r.Use(middleware.NewCORSMiddleware(d.Config.AllowedOrigins()).Handler)
	r.Use(middleware.NewAuthMiddleware(d.Config.Admin.Password, d.Logger, []string{"/health", "/metrics"}).Handler)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	var register http.Handler = http.HandlerFunc(h.register)
	if d.RegisterLimiter != nil {
		register = d.RegisterLimiter.Handler(register)
	}
	api.Handle("/register", register).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/debug/env", h.debugEnv).Methods(http.MethodGet)
	api.HandleFunc("/server-config", h.serverConfig).Methods(http.MethodGet)
	api.HandleFunc("/version", h.version).Methods(http.MethodGet)

	return r
}
