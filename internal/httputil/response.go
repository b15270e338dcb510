package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/moontv/gateway/internal/errors"
)

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// WriteError writes {"error": message} with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorBody{Error: message})
}

// WriteServiceError renders err. Service errors expose their message and,
// for configuration errors, the list of problems. Anything else becomes a
// generic 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("server error", err)
	}

	body := errorBody{Error: se.Message}
	if problems, ok := se.Details["errors"]; ok {
		body.Details = problems
	}
	WriteJSON(w, se.HTTPStatus, body)
}
