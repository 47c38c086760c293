package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/eddb-ingest/internal/lock"
)

const stationsDump = `{"id":1,"name":"Jameson Memorial","updated_at":1500000000,"government":"Democracy","economies":["Refinery","Industrial"]}
{"id":2,"name":"Abraham Lincoln","updated_at":0,"government":"Federation"}
{"id":3,"name":"Galileo","government":"Corporate","name_lower":"bogus"}
`

func waitJob(t *testing.T, job *Job) (JobSnapshot, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := job.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "job did not finish")
	return snap, err
}

func TestDownloader_CommitsNormalizedRecords(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("stations.jsonl", stationsDump)
	st, _ := newTestStore()
	events := &eventLog{}

	d := newTestDownloader(t, srv, st, KindStation, Deps{Observer: events.observe})
	ctx := context.Background()

	job, err := d.Download(ctx)
	require.NoError(t, err)

	started, err := job.AwaitStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, started.StatusCode)

	snap, err := waitJob(t, job)
	require.NoError(t, err)
	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, int64(3), snap.Records)
	assert.Positive(t, snap.Bytes)
	assert.Equal(t, []JobState{StateStarted, StateDone}, events.states(job.ID()))

	got, ok, err := st.Get(ctx, "station", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1500000000000), got["updated_at"])
	assert.Equal(t, "Jameson Memorial", got["name_lower"])
	assert.Equal(t, "democracy", got["government"])
	assert.Equal(t, []any{"refinery", "industrial"}, got["economies"])

	zero, _, err := st.Get(ctx, "station", 2)
	require.NoError(t, err)
	assert.Equal(t, json.Number("0"), zero["updated_at"], "zero timestamps are not converted")

	galileo, _, err := st.Get(ctx, "station", 3)
	require.NoError(t, err)
	assert.Equal(t, "Galileo", galileo["name_lower"], "caller-supplied name_lower is replaced")
	_, hasUpdated := galileo["updated_at"]
	assert.False(t, hasUpdated, "absent timestamps stay absent")
}

func TestDownloader_EmptyDump(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("stations.jsonl", "")
	st, _ := newTestStore()

	job, err := newTestDownloader(t, srv, st, KindStation, Deps{}).Download(context.Background())
	require.NoError(t, err)

	snap, err := waitJob(t, job)
	require.NoError(t, err)
	assert.Equal(t, StateDone, snap.State)
	assert.Zero(t, snap.Records)
}

func TestDownloader_RemoteFailure(t *testing.T) {
	srv := newDumpServer(t)
	srv.fail("stations.jsonl", http.StatusInternalServerError)
	st, _ := newTestStore()
	events := &eventLog{}

	job, err := newTestDownloader(t, srv, st, KindStation, Deps{Observer: events.observe}).Download(context.Background())
	require.NoError(t, err, "fetch failures are reported on the job, not by Download")

	_, err = job.AwaitStart(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)

	snap, err := waitJob(t, job)
	require.Error(t, err)
	assert.Equal(t, StateError, snap.State)
	assert.Nil(t, snap.StartedAt, "a failed fetch never enters started")
	assert.Equal(t, http.StatusInternalServerError, snap.StatusCode)
	assert.Equal(t, []JobState{StateError}, events.states(job.ID()))

	n, err := st.Count(context.Background(), "station")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDownloader_MalformedDumpKeepsEarlierRecords(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("factions.jsonl", "{\"id\":1,\"name\":\"A\"}\n{\"id\":2,\"name\":\"B\"}\n{\"id\":3,\"name\":\n")
	st, _ := newTestStore()

	job, err := newTestDownloader(t, srv, st, KindFaction, Deps{}).Download(context.Background())
	require.NoError(t, err)

	snap, err := waitJob(t, job)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Index)
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, int64(2), snap.Records)

	n, err := st.Count(context.Background(), "faction")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "records before the failure stay committed")
}

func TestDownloader_PersistenceFailureAborts(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("stations.jsonl", stationsDump)
	st, mem := newTestStore()
	boom := errors.New("disk full")
	mem.FailOn = func(_ string, id int64) error {
		if id == 2 {
			return boom
		}
		return nil
	}

	job, err := newTestDownloader(t, srv, st, KindStation, Deps{}).Download(context.Background())
	require.NoError(t, err)

	_, err = waitJob(t, job)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Index)
	assert.ErrorIs(t, err, boom)

	_, ok, _ := st.Get(context.Background(), "station", 1)
	assert.True(t, ok)
	_, ok, _ = st.Get(context.Background(), "station", 3)
	assert.False(t, ok, "no record after the failure is written")
}

func TestDownloader_RecordWithoutIDIsPersistenceError(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("commodities.json", `[{"id":1,"name":"Gold"},{"name":"Nameless"}]`)
	st, _ := newTestStore()

	job, err := newTestDownloader(t, srv, st, KindCommodity, Deps{}).Download(context.Background())
	require.NoError(t, err)

	_, err = waitJob(t, job)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Index)
}

func TestDownloader_RejectsReentry(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("stations.jsonl", stationsDump)
	release := srv.block("stations.jsonl")
	st, _ := newTestStore()
	guard := lock.NewMemory()

	d := newTestDownloader(t, srv, st, KindStation, Deps{Guard: guard})
	ctx := context.Background()

	first, err := d.Download(ctx)
	require.NoError(t, err)

	_, err = d.Download(ctx)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	_, err = waitJob(t, first)
	require.NoError(t, err)

	assert.False(t, guard.Held(string(KindStation)))

	second, err := d.Download(ctx)
	require.NoError(t, err, "a finished job frees the kind")
	_, err = waitJob(t, second)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID(), "jobs are never reused")
}

func TestDownloader_IdempotentLastWriteWins(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("systems_recently.csv", "id,name,population\n17,Sol,22780919531\n18,Achenar,\n")
	st, _ := newTestStore()
	d := newTestDownloader(t, srv, st, KindSystem, Deps{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		job, err := d.Download(ctx)
		require.NoError(t, err)
		_, err = waitJob(t, job)
		require.NoError(t, err)
	}

	n, err := st.Count(ctx, "system")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	srv.set("systems_recently.csv", "id,name,population\n17,Sol,1\n")
	job, err := d.Download(ctx)
	require.NoError(t, err)
	_, err = waitJob(t, job)
	require.NoError(t, err)

	sol, _, err := st.Get(ctx, "system", 17)
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), sol["population"])
	n, _ = st.Count(ctx, "system")
	assert.Equal(t, int64(2), n, "records absent from the new dump are kept")
}

func TestDownloader_IgnoresCallerCancellation(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("stations.jsonl", stationsDump)
	release := srv.block("stations.jsonl")
	st, _ := newTestStore()

	ctx, cancel := context.WithCancel(context.Background())
	job, err := newTestDownloader(t, srv, st, KindStation, Deps{}).Download(ctx)
	require.NoError(t, err)

	cancel()
	close(release)

	snap, err := waitJob(t, job)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Records)
}

func TestDownloader_LimiterFull(t *testing.T) {
	srv := newDumpServer(t)
	srv.set("stations.jsonl", stationsDump)
	st, _ := newTestStore()
	limiter := NewJobLimiter(1, 50*time.Millisecond)
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	guard := lock.NewMemory()
	d := newTestDownloader(t, srv, st, KindStation, Deps{Limiter: limiter, Guard: guard})

	_, err := d.Download(context.Background())
	require.ErrorIs(t, err, ErrTooManyJobs)
	assert.False(t, guard.Held(string(KindStation)), "guard is released when no slot is free")
	assert.Empty(t, srv.requests())
}
