package core

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one resource dataset.
type Kind string

const (
	KindBody            Kind = "body"
	KindCommodity       Kind = "commodity"
	KindFaction         Kind = "faction"
	KindStation         Kind = "station"
	KindPopulatedSystem Kind = "populatedsystem"
	KindSystem          Kind = "system"
)

// BulkOrder is the fixed order of a bulk run.
var BulkOrder = []Kind{
	KindBody,
	KindCommodity,
	KindFaction,
	KindStation,
	KindPopulatedSystem,
	KindSystem,
}

// ParseKind validates a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range BulkOrder {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// JobState is the lifecycle state of a download job or bulk stage.
type JobState string

const (
	StateIdle    JobState = "idle"
	StateStarted JobState = "started"
	StateDone    JobState = "done"
	StateError   JobState = "error"

	// StateSkipped marks a bulk stage that was never started.
	StateSkipped JobState = "skipped"
)

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == StateDone || s == StateError || s == StateSkipped
}

// Event is one lifecycle transition of a job: Started carries the remote
// status code, Done the committed record count and bytes read, Error the cause.
type Event struct {
	JobID      string
	Kind       Kind
	State      JobState
	StatusCode int
	Records    int64
	Bytes      int64
	Duration   time.Duration
	Err        error

	// Started is set on terminal events of jobs that got past the fetch.
	Started bool
}

// EventObserver receives every event of every job, in order per job.
// It runs on the job's goroutine and must not block.
type EventObserver func(Event)

// JobSnapshot is a point-in-time copy of a job, safe to serialize.
type JobSnapshot struct {
	ID         string     `json:"job_id"`
	Kind       Kind       `json:"kind"`
	State      JobState   `json:"state"`
	StatusCode int        `json:"status_code,omitempty"`
	Records    int64      `json:"records"`
	Bytes      int64      `json:"bytes"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StageStatus is the outcome of one stage of a bulk run.
type StageStatus struct {
	Kind       Kind     `json:"kind"`
	JobID      string   `json:"job_id,omitempty"`
	State      JobState `json:"state"`
	StatusCode int      `json:"status_code,omitempty"`
	Records    int64    `json:"records"`
	Error      string   `json:"error,omitempty"`
}

// BulkRun is a snapshot of one bulk run. Stages are in BulkOrder.
type BulkRun struct {
	ID         string        `json:"run_id"`
	State      JobState      `json:"state"`
	From       Kind          `json:"from"`
	Stages     []StageStatus `json:"stages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

func (r BulkRun) clone() BulkRun {
	r.Stages = append([]StageStatus(nil), r.Stages...)
	return r
}
