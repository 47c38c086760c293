package web

// errors.go provides unified error response handling for the web layer.
//
// Every service error is logged server-side with the request id and mapped
// through core.MapError. Denials always get the same fixed 403 body. Any
// ingestion failure is a 500 whatever its cause: callers treat it as
// "ingestion failed, state possibly partial".

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/eddb-ingest/internal/core"
	"github.com/JonMunkholm/eddb-ingest/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// Set for bulk runs so callers can resume from the failed stage.
	RunID  string             `json:"run_id,omitempty"`
	Stages []core.StageStatus `json:"stages,omitempty"`
}

// deniedResponse is the fixed body of every 403.
type deniedResponse struct {
	Error string `json:"Error"`
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrAlreadyRunning), errors.Is(err, core.ErrBulkRunning):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrUnknownKind), errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped response. run is attached to
// the body when the failure happened inside a bulk run.
func respondError(w http.ResponseWriter, r *http.Request, err error, run *core.BulkRun) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status", status),
		slog.String("code", userMsg.Code),
		slog.Any("error", err),
	)

	if status == http.StatusForbidden {
		writeJSONStatus(w, status, deniedResponse{Error: userMsg.Message})
		return
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	if run != nil {
		resp.RunID = run.ID
		resp.Stages = run.Stages
	}
	writeJSONStatus(w, status, resp)
}
