package core

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/eddb-ingest/internal/dump"
)

var (
	// ErrPermissionDenied is returned by the access gate.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyRunning is returned when a download of the same kind is in flight.
	ErrAlreadyRunning = errors.New("download already running")

	// ErrBulkRunning is returned when a bulk run is already in progress.
	ErrBulkRunning = errors.New("bulk run already running")

	ErrUnknownKind = errors.New("unknown resource kind")
	ErrJobNotFound = errors.New("job not found")
)

// ParseError reports a malformed dump. Index is the zero-based record
// position, or -1 when the failure is not tied to a record.
type ParseError = dump.ParseError

// FetchError reports a failed remote fetch: a transport error or a non-2xx
// response. StatusCode is 0 for transport errors.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s: status %d", e.Kind, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError reports a record that could not be normalized or
// committed. Records before Index stay committed.
type PersistenceError struct {
	Kind  Kind
	Index int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s record %d: %v", e.Kind, e.Index, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// errorType classifies err for metrics labels.
func errorType(err error) string {
	var (
		fe *FetchError
		pe *ParseError
		se *PersistenceError
	)
	switch {
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &se):
		return "persistence"
	default:
		return "internal"
	}
}
