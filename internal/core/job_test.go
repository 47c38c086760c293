package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Lifecycle(t *testing.T) {
	events := &eventLog{}
	job := newJob(KindBody, events.observe)

	snap := job.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.NotEmpty(t, snap.ID)

	job.start(200)
	job.start(201) // ignored
	job.addRecord()
	job.addRecord()
	job.finish()
	job.fail(errors.New("late")) // terminal states are final

	snap, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, 200, snap.StatusCode)
	assert.Equal(t, int64(2), snap.Records)
	assert.NotNil(t, snap.StartedAt)
	assert.NotNil(t, snap.FinishedAt)
	assert.Equal(t, []JobState{StateStarted, StateDone}, events.states(job.ID()))
}

func TestJob_FailBeforeStartReleasesAwaitStart(t *testing.T) {
	job := newJob(KindFaction, nil)
	cause := &FetchError{Kind: KindFaction, URL: "u", StatusCode: 503}

	go job.fail(cause)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	snap, err := job.AwaitStart(ctx)
	require.ErrorIs(t, err, error(cause))
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, 503, snap.StatusCode)
	assert.Contains(t, snap.Error, "status 503")
}

func TestJob_WaitHonorsContext(t *testing.T) {
	job := newJob(KindSystem, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	snap, err := job.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateIdle, snap.State, "the job itself is unaffected")
}

func TestJob_TerminalEventMarksStarted(t *testing.T) {
	events := &eventLog{}

	early := newJob(KindBody, events.observe)
	early.fail(errors.New("dial"))

	late := newJob(KindBody, events.observe)
	late.start(200)
	late.fail(errors.New("parse"))

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.events, 3)
	assert.False(t, events.events[0].Started)
	assert.True(t, events.events[2].Started)
}

func TestTracker_EvictsOnlyFinishedJobs(t *testing.T) {
	tr := NewTracker(2)

	running := newJob(KindBody, nil)
	tr.track(running)

	for i := 0; i < 3; i++ {
		j := newJob(KindCommodity, nil)
		j.finish()
		tr.track(j)
	}

	jobs := tr.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, running.ID(), jobs[len(jobs)-1].ID, "the running job is kept")

	_, err := tr.Job(running.ID())
	require.NoError(t, err)
	_, err = tr.Job("nope")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestAccessGate(t *testing.T) {
	var gate AccessGate
	assert.NoError(t, gate.Authorize(Principal{Name: "root", Clearance: 0}))
	assert.ErrorIs(t, gate.Authorize(Principal{Name: "pilot", Clearance: 1}), ErrPermissionDenied)
	assert.ErrorIs(t, gate.Authorize(Principal{Name: "odd", Clearance: -1}), ErrPermissionDenied)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Station ")
	require.NoError(t, err)
	assert.Equal(t, KindStation, k)

	_, err = ParseKind("ship")
	require.ErrorIs(t, err, ErrUnknownKind)
}
