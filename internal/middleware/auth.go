// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"context"
	"net/http"

	"github.com/moontv/gateway/internal/authcookie"
	"github.com/moontv/gateway/internal/logging"
)

// AuthMiddleware resolves the caller from the auth cookie. It never rejects a
// request: a missing or forged cookie leaves the request anonymous.
type AuthMiddleware struct {
	secret    string
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new cookie authentication middleware
func NewAuthMiddleware(secret string, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:    secret,
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		payload, err := authcookie.FromRequest(r)
		if err == http.ErrNoCookie {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil || m.secret == "" || !authcookie.Verify(payload, m.secret) {
			m.logger.LogSecurityEvent(r.Context(), "invalid_auth_cookie", map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
			})
			next.ServeHTTP(w, r)
			return
		}

		ctx := logging.WithUsername(r.Context(), payload.Username)
		m.logger.WithContext(ctx).Debug("Authenticated from cookie")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUsername returns the authenticated username, or "" for anonymous requests.
func GetUsername(ctx context.Context) string {
	return logging.GetUsername(ctx)
}
