package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/moontv/gateway/internal/errors"
	"github.com/moontv/gateway/internal/httputil"
	"github.com/moontv/gateway/internal/logging"
)

const maxTraceIDLength = 128

// TracingMiddleware adds trace ID to all requests, logs them, and turns a
// panicking handler into a 500.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" || len(traceID) > maxTraceIDLength {
			traceID = logging.NewTraceID()
		}

		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				m.logger.WithContext(ctx).WithField("panic", fmt.Sprint(rec)).Error("handler panicked")
				if !rw.written {
					httputil.WriteServiceError(rw, errors.Internal("server error", nil))
				}
			}
			m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}
