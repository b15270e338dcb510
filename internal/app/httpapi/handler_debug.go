package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/moontv/gateway/internal/envcheck"
	"github.com/moontv/gateway/internal/errors"
	"github.com/moontv/gateway/internal/httputil"
	"github.com/moontv/gateway/internal/registration"
)

const (
	probeUsername = "__test_user__"
	probeTimeout  = 5 * time.Second
)

type debugEnvironment struct {
	envcheck.Summary
	BackendStatus string `json:"backendStatus"`
}

type debugHeaders struct {
	UserAgent      string `json:"userAgent"`
	CFRay          string `json:"cfRay"`
	CFConnectingIP string `json:"cfConnectingIp"`
	XForwardedFor  string `json:"xForwardedFor"`
}

type cloudflareDetection struct {
	CFRayHeader          bool     `json:"cfRayHeader"`
	CFConnectingIPHeader bool     `json:"cfConnectingIpHeader"`
	Hints                []string `json:"hints"`
}

// RuntimeInfo describes the host the gateway runs on.
type RuntimeInfo struct {
	GoVersion       string  `json:"goVersion"`
	Goroutines      int     `json:"goroutines"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform,omitempty"`
	PlatformVersion string  `json:"platformVersion,omitempty"`
	KernelVersion   string  `json:"kernelVersion,omitempty"`
	UptimeSeconds   uint64  `json:"uptimeSeconds,omitempty"`
	MemoryTotal     uint64  `json:"memoryTotal,omitempty"`
	MemoryUsedPct   float64 `json:"memoryUsedPercent,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type debugResponse struct {
	Timestamp   string              `json:"timestamp"`
	Validation  envcheck.Result     `json:"validation"`
	Environment debugEnvironment    `json:"environment"`
	Headers     debugHeaders        `json:"headers"`
	Cloudflare  cloudflareDetection `json:"cloudflareDetection"`
	Runtime     RuntimeInfo         `json:"runtime"`
}

func (h *handler) debugAllowed(r *http.Request) bool {
	if h.Config.IsDevelopment() {
		return true
	}
	key := h.Config.Debug.Key
	provided := r.URL.Query().Get("key")
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(provided)) == 1
}

func (h *handler) debugEnv(w http.ResponseWriter, r *http.Request) {
	setNoCache(w)

	if !h.debugAllowed(r) {
		h.Logger.LogSecurityEvent(r.Context(), "debug_access_denied", map[string]interface{}{
			"path": r.URL.Path,
		})
		httputil.WriteServiceError(w, errors.Forbidden("access denied"))
		return
	}

	env := h.Config.Env()
	storageType := h.Config.Storage.Type
	validation := envcheck.Validate(storageType, env)
	envcheck.Report(h.Logger, storageType, validation)

	cfRay := r.Header.Get("CF-Ray")
	cfIP := r.Header.Get("CF-Connecting-IP")

	resp := debugResponse{
		Timestamp:  h.Now().UTC().Format(time.RFC3339Nano),
		Validation: validation,
		Environment: debugEnvironment{
			Summary:       envcheck.Summarize(env),
			BackendStatus: h.probeBackend(r.Context(), storageType),
		},
		Headers: debugHeaders{
			UserAgent:      r.UserAgent(),
			CFRay:          cfRay,
			CFConnectingIP: cfIP,
			XForwardedFor:  r.Header.Get("X-Forwarded-For"),
		},
		Cloudflare: cloudflareDetection{
			CFRayHeader:          cfRay != "",
			CFConnectingIPHeader: cfIP != "",
			Hints:                envcheck.RuntimeHints(storageType, cfRay != ""),
		},
		Runtime: h.Runtime(r.Context()),
	}

	h.Logger.WithContext(r.Context()).WithField("valid", validation.Valid).Info("environment debug report served")
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// probeBackend exercises a server-side backend with a harmless lookup.
func (h *handler) probeBackend(ctx context.Context, storageType string) string {
	if !registration.SupportsRegistration(storageType) || h.Backend == nil {
		return "unknown"
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if _, err := h.Backend.CheckUserExist(ctx, probeUsername); err != nil {
		return "connection_failed: " + err.Error()
	}
	return "connected"
}

func probeRuntime(ctx context.Context) RuntimeInfo {
	info := RuntimeInfo{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		OS:         runtime.GOOS,
	}

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Platform = hi.Platform
	info.PlatformVersion = hi.PlatformVersion
	info.KernelVersion = hi.KernelVersion
	info.UptimeSeconds = hi.Uptime

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsedPct = vm.UsedPercent
	}
	return info
}

func setNoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
