package httpapi

import (
	"net/http"

	"github.com/moontv/gateway/internal/httputil"
)

const maxRegisterBody = 16 << 10

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRegisterBody)

	res, err := h.Registration.Register(r.Context(), r.Body)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	http.SetCookie(w, res.Cookie)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
