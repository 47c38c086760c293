// Package middleware provides HTTP middleware for the web server.
package middleware

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/eddb-ingest/internal/core"
	"github.com/JonMunkholm/eddb-ingest/internal/logging"
)

// Logger is an HTTP middleware that logs one line per request.
//
// Log fields:
//   - method, path, status
//   - duration_ms: time until the handler returned; for /all this spans the
//     whole bulk run
//   - ip: client IP as resolved by TrustedRealIP
//   - principal: authenticated user, when BasicAuth ran
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		// BasicAuth runs further down the chain and attaches the principal to
		// its own request copy, so it is read back through the holder.
		holder := &principalHolder{}
		r = r.WithContext(withPrincipalHolder(r.Context(), holder))

		next.ServeHTTP(ww, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if holder.set {
			args = append(args, "principal", holder.p.Name)
		}

		logging.FromContext(r.Context()).Info("request", args...)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap provides access to the underlying ResponseWriter for
// http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type principalHolder struct {
	p   core.Principal
	set bool
}
