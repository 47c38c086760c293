package web

import (
	"net/http"

	"github.com/JonMunkholm/eddb-ingest/internal/core"
)

// downloadStartedResponse is returned once the remote source has answered.
type downloadStartedResponse struct {
	JobID      string        `json:"job_id"`
	Kind       core.Kind     `json:"kind"`
	State      core.JobState `json:"state"`
	StatusCode int           `json:"status_code"`
}

// bulkResponse is returned when every stage of a bulk run is done.
type bulkResponse struct {
	Response string             `json:"response"`
	RunID    string             `json:"run_id"`
	Stages   []core.StageStatus `json:"stages"`
}

// handleDownload starts a download of kind and answers once the remote fetch
// has begun, echoing the remote status code. Ingestion continues after the
// response is written.
func (s *Server) handleDownload(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		ctx := withRequestMetadata(r.Context(), r)

		job, err := s.service.Download(ctx, p, kind)
		if err != nil {
			respondError(w, r, err, nil)
			return
		}

		snap, err := job.AwaitStart(ctx)
		if err != nil {
			respondError(w, r, err, nil)
			return
		}

		// A tiny dump may already be done; the trigger still reports the start.
		writeJSON(w, downloadStartedResponse{
			JobID:      snap.ID,
			Kind:       snap.Kind,
			State:      core.StateStarted,
			StatusCode: snap.StatusCode,
		})
	}
}

// handleRunAll runs a bulk download, optionally resuming at ?from=kind, and
// answers when the run is terminal.
func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	ctx := withRequestMetadata(r.Context(), r)

	from := core.BulkOrder[0]
	if v := r.URL.Query().Get("from"); v != "" {
		k, err := core.ParseKind(v)
		if err != nil {
			respondError(w, r, err, nil)
			return
		}
		from = k
	}

	run, err := s.service.RunAll(ctx, p, from)
	if err != nil {
		respondError(w, r, err, run)
		return
	}

	writeJSON(w, bulkResponse{
		Response: "all downloads started",
		RunID:    run.ID,
		Stages:   run.Stages,
	})
}
