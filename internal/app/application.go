package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/moontv/gateway/internal/app/httpapi"
	"github.com/moontv/gateway/internal/changelog"
	"github.com/moontv/gateway/internal/config"
	"github.com/moontv/gateway/internal/envcheck"
	"github.com/moontv/gateway/internal/logging"
	"github.com/moontv/gateway/internal/metrics"
	"github.com/moontv/gateway/internal/middleware"
	"github.com/moontv/gateway/internal/registration"
	"github.com/moontv/gateway/internal/siteconfig"
	"github.com/moontv/gateway/internal/storage"
)

const (
	shutdownTimeout = 10 * time.Second
	limiterIdle     = 10 * time.Minute
)

// Application wires the gateway together and manages the HTTP server
// lifecycle.
type Application struct {
	cfg       *config.Config
	log       *logging.Logger
	metrics   *metrics.Metrics
	backend   storage.Backend
	changelog *changelog.Checker
	limiter   *middleware.RateLimiter
	handler   http.Handler
	server    *http.Server
	stop      chan struct{}
	stopOnce  sync.Once
}

// New builds the application. A backend that cannot be opened does not stop
// startup: requests that need it fail and are reported through the usual
// error classification.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New(httpapi.ServiceName, cfg.Logging.Level, cfg.Logging.Format)
	}
	m := metrics.New()

	envcheck.Report(log, cfg.Storage.Type, envcheck.Validate(cfg.Storage.Type, cfg.Env()))

	var seed *siteconfig.Seed
	if cfg.Site.SeedFile != "" {
		s, err := siteconfig.LoadSeed(cfg.Site.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("load seed config: %w", err)
		}
		seed = s
	}

	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		log.WithContext(ctx).WithError(err).WithField("storage_type", cfg.Storage.Type).Error("storage backend unavailable")
		backend = newUnavailable(cfg.Storage.Type, err)
	}
	backend = storage.Instrument(backend, cfg.Storage.Type, m)

	loader := siteconfig.NewLoader(backend, siteconfig.Defaults{
		SiteName:       cfg.Site.Name,
		EnableRegister: cfg.Site.EnableRegister,
		AdminUsername:  cfg.Admin.Username,
	}, seed)

	svc := registration.New(registration.Options{
		StorageType:   cfg.Storage.Type,
		Env:           cfg.Env(),
		AdminUsername: cfg.Admin.Username,
		Secret:        cfg.Admin.Password,
		Backend:       backend,
		Loader:        loader,
		Logger:        log,
		Metrics:       m,
	})

	checker := changelog.NewChecker(changelog.CheckerOptions{
		URL:            cfg.Changelog.URL,
		CurrentVersion: cfg.Site.Version,
		Timeout:        cfg.Changelog.Timeout,
		Logger:         log,
		Metrics:        m,
	})

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RegisterPerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RegisterPerSecond, cfg.RateLimit.RegisterBurst, log).
			TrustProxyHeaders(cfg.RateLimit.TrustProxyHeaders)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Config:          cfg,
		Logger:          log,
		Metrics:         m,
		Backend:         backend,
		Registration:    svc,
		Loader:          loader,
		Versions:        checker,
		RegisterLimiter: limiter,
	})

	return &Application{
		cfg:       cfg,
		log:       log,
		metrics:   m,
		backend:   backend,
		changelog: checker,
		limiter:   limiter,
		handler:   handler,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

// Handler returns the routed HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run starts background jobs and the HTTP server, and blocks until ctx is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Changelog.URL != "" {
		if err := a.changelog.Start(a.cfg.Changelog.Schedule); err != nil {
			a.log.WithError(err).Warn("changelog refresh disabled")
		}
	}
	if a.limiter != nil {
		a.limiter.StartCleanup(limiterIdle, a.stop)
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", ln.Addr().String()).WithField("storage_type", a.cfg.Storage.Type).Info("HTTP server listening")
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the server, background jobs and the backend.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	a.stopOnce.Do(func() { close(a.stop) })
	a.changelog.Stop()

	err := a.server.Shutdown(shutdownCtx)

	if cerr := a.backend.Close(); cerr != nil {
		a.log.WithError(cerr).Warn("error closing storage backend")
	}
	return err
}
