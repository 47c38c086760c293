package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/eddb-ingest/internal/core"
)

// maxAuditPage caps ?limit on /audit.
const maxAuditPage = 1000

// handleListJobs returns recent jobs, the last bulk run and limiter usage.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	status, err := s.service.Jobs(p)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	writeJSON(w, status)
}

// handleJob returns one tracked job.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	snap, err := s.service.Job(p, chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	writeJSON(w, snap)
}

// handleAuditLog returns the newest audit entries, ?limit=n of them.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	entries, err := s.service.AuditLog(r.Context(), p, parseIntParam(r, "limit", core.DefaultAuditLimit, maxAuditPage))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// parseIntParam parses a positive integer query parameter, falling back to
// defaultVal and clamping to maxVal.
func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return min(i, maxVal)
}
