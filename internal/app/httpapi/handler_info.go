package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/moontv/gateway/internal/changelog"
	"github.com/moontv/gateway/internal/httputil"
)

type serverConfigResponse struct {
	SiteName       string `json:"SiteName"`
	StorageType    string `json:"StorageType"`
	EnableRegister bool   `json:"EnableRegister"`
	Announcement   string `json:"Announcement,omitempty"`
	APIBaseURL     string `json:"ApiBaseUrl"`
	Version        string `json:"Version"`
}

func (h *handler) serverConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Loader.Load(r.Context())
	if err != nil {
		h.Logger.WithContext(r.Context()).WithError(err).Warn("admin config unavailable, serving defaults")
		cfg = h.Loader.Default()
	}

	httputil.WriteJSON(w, http.StatusOK, serverConfigResponse{
		SiteName:       cfg.SiteConfig.SiteName,
		StorageType:    h.Config.Storage.Type,
		EnableRegister: cfg.UserConfig.AllowRegister,
		Announcement:   cfg.SiteConfig.Announcement,
		APIBaseURL:     h.Config.Site.APIBaseURL,
		Version:        h.Config.Site.Version,
	})
}

func (h *handler) version(w http.ResponseWriter, r *http.Request) {
	if h.Versions == nil {
		httputil.WriteJSON(w, http.StatusOK, changelog.Status{
			Current:      h.Config.Site.Version,
			UpdateStatus: changelog.StatusFetchFailed,
			Entries:      []changelog.Entry{},
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.Versions.Status())
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "ok",
		"storage":   h.Config.Storage.Type,
		"timestamp": h.Now().UTC().Format(time.RFC3339),
	}

	if h.Backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Backend.Ping(ctx); err != nil {
			h.Logger.WithContext(r.Context()).WithError(err).Warn("storage backend unhealthy")
			resp["status"] = "degraded"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
