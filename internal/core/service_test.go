package core_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/eddb-ingest/internal/core"
	_ "github.com/JonMunkholm/eddb-ingest/internal/core/resources"
	"github.com/JonMunkholm/eddb-ingest/internal/store"
)

func newService(t *testing.T, handler http.HandlerFunc) (*core.Service, *core.MemoryAudit) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	audit := core.NewMemoryAudit(10)
	svc, err := core.NewService(core.Deps{
		BaseURL: srv.URL,
		Client:  srv.Client(),
		Store:   store.New(store.NewMemory(), core.Collections()...),
		Audit:   audit,
	})
	require.NoError(t, err)
	return svc, audit
}

func TestService_NonAdminStationIsDeniedWithoutFetch(t *testing.T) {
	var hits atomic.Int32
	svc, audit := newService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	job, err := svc.Download(context.Background(), core.Principal{Name: "pilot", Clearance: 2}, core.KindStation)
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.Nil(t, job)
	assert.Zero(t, hits.Load())

	entries, err := audit.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "denied requests leave no trace")
}

func TestService_DownloadIsAudited(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Gold"}]`))
	})
	admin := core.Principal{Name: "admin", Clearance: core.AdminClearance}
	ctx := core.ContextWithIPAddress(context.Background(), "10.0.0.1")

	job, err := svc.Download(ctx, admin, core.KindCommodity)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := job.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Records)

	entries, err := svc.AuditLog(context.Background(), admin, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.ActionDownload, entries[0].Action)
	assert.Equal(t, core.KindCommodity, entries[0].Kind)
	assert.Equal(t, "10.0.0.1", entries[0].IPAddress)
	assert.Equal(t, job.ID(), entries[0].JobID)
	assert.Equal(t, "started", entries[0].Outcome)
}

func TestService_RunAllAndJobs(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {})
	admin := core.Principal{Name: "admin", Clearance: core.AdminClearance}

	run, err := svc.RunAll(context.Background(), admin, "")
	require.NoError(t, err)
	assert.Equal(t, core.StateDone, run.State)

	status, err := svc.Jobs(admin)
	require.NoError(t, err)
	assert.Len(t, status.Jobs, 6)
	require.NotNil(t, status.Bulk)
	assert.Equal(t, run.ID, status.Bulk.ID)

	snap, err := svc.Job(admin, run.Stages[3].JobID)
	require.NoError(t, err)
	assert.Equal(t, core.KindStation, snap.Kind)

	_, err = svc.Jobs(core.Principal{Clearance: 1})
	require.ErrorIs(t, err, core.ErrPermissionDenied)
}

func TestService_Kinds(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(t, core.BulkOrder, svc.Kinds())
}

func TestService_SchedulerRunsBulkRefresh(t *testing.T) {
	var hits atomic.Int32
	svc, audit := newService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.StartScheduler(ctx, core.ScheduleConfig{Interval: 20 * time.Millisecond, From: core.KindSystem}, slog.Default())
	}()

	require.Eventually(t, func() bool {
		entries, _ := audit.List(context.Background(), 0)
		return len(entries) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	entries, err := audit.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, core.ActionBulkRun, entries[0].Action)
	assert.Equal(t, core.SchedulerPrincipal.Name, entries[0].Principal)
	assert.Equal(t, core.KindSystem, entries[0].Kind)
	assert.GreaterOrEqual(t, hits.Load(), int32(1))
}

func TestService_SchedulerDisabled(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {})

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.StartScheduler(context.Background(), core.ScheduleConfig{}, slog.Default())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero interval should return immediately")
	}
}
