package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one execution of a Downloader. A Job is never reused: once it
// reaches StateDone or StateError it stays there.
type Job struct {
	id       string
	kind     Kind
	observer EventObserver

	startedCh chan struct{} // closed on leaving StateIdle
	doneCh    chan struct{} // closed on reaching a terminal state

	mu         sync.Mutex
	state      JobState
	statusCode int
	records    int64
	bytes      int64
	err        error
	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time
}

func newJob(kind Kind, observer EventObserver) *Job {
	return &Job{
		id:        uuid.NewString(),
		kind:      kind,
		observer:  observer,
		startedCh: make(chan struct{}),
		doneCh:    make(chan struct{}),
		state:     StateIdle,
		createdAt: time.Now().UTC(),
	}
}

func (j *Job) ID() string { return j.id }

func (j *Job) Kind() Kind { return j.kind }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.doneCh }

// Err returns the cause of a failed job, or nil.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := JobSnapshot{
		ID:         j.id,
		Kind:       j.kind,
		State:      j.state,
		StatusCode: j.statusCode,
		Records:    j.records,
		Bytes:      j.bytes,
		CreatedAt:  j.createdAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// AwaitStart blocks until the remote source has answered. It returns the
// job's error if the fetch failed before the job could start.
func (j *Job) AwaitStart(ctx context.Context) (JobSnapshot, error) {
	select {
	case <-j.startedCh:
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
	snap := j.Snapshot()
	if snap.State == StateError {
		return snap, j.Err()
	}
	return snap, nil
}

// Wait blocks until the job is terminal and returns its final state and
// error. Cancelling ctx stops the wait, not the job.
func (j *Job) Wait(ctx context.Context) (JobSnapshot, error) {
	select {
	case <-j.doneCh:
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
	return j.Snapshot(), j.Err()
}

func (j *Job) start(statusCode int) {
	j.mu.Lock()
	if j.state != StateIdle {
		j.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	j.state = StateStarted
	j.statusCode = statusCode
	j.startedAt = &now
	j.mu.Unlock()

	// Observers see the event before any waiter wakes.
	j.emit(Event{State: StateStarted, StatusCode: statusCode})
	close(j.startedCh)
}

func (j *Job) addRecord() {
	j.mu.Lock()
	j.records++
	j.mu.Unlock()
}

func (j *Job) setBytes(n int64) {
	j.mu.Lock()
	j.bytes = n
	j.mu.Unlock()
}

func (j *Job) finish() {
	j.terminate(StateDone, nil)
}

func (j *Job) fail(err error) {
	j.terminate(StateError, err)
}

func (j *Job) terminate(state JobState, err error) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	wasIdle := j.state == StateIdle
	now := time.Now().UTC()
	j.state = state
	j.err = err
	j.finishedAt = &now

	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		j.statusCode = fe.StatusCode
	}
	ev := Event{
		State:      state,
		StatusCode: j.statusCode,
		Records:    j.records,
		Bytes:      j.bytes,
		Duration:   now.Sub(j.createdAt),
		Err:        err,
		Started:    !wasIdle,
	}
	j.mu.Unlock()

	j.emit(ev)
	if wasIdle {
		close(j.startedCh)
	}
	close(j.doneCh)
}

func (j *Job) emit(ev Event) {
	if j.observer == nil {
		return
	}
	ev.JobID = j.id
	ev.Kind = j.kind
	j.observer(ev)
}
