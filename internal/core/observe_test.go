package core

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/eddb-ingest/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestMetricsObserver_BalancesActiveJobs(t *testing.T) {
	// A kind label no other test uses keeps the global collectors isolated.
	kind := Kind("observer-test")
	obs := MetricsObserver()

	active := metrics.JobsActive.WithLabelValues(string(kind))
	records := metrics.RecordsCommitted.WithLabelValues(string(kind))
	ok200 := metrics.FetchResponses.WithLabelValues(string(kind), "200")
	bad502 := metrics.FetchResponses.WithLabelValues(string(kind), "502")
	fetchErrs := metrics.ErrorsTotal.WithLabelValues(string(kind), "fetch")

	obs(Event{Kind: kind, State: StateStarted, StatusCode: 200})
	assert.Equal(t, 1.0, gaugeValue(t, active))

	obs(Event{Kind: kind, State: StateDone, StatusCode: 200, Records: 3, Started: true, Duration: time.Second})
	assert.Equal(t, 0.0, gaugeValue(t, active))
	assert.Equal(t, 3.0, counterValue(t, records))
	assert.Equal(t, 1.0, counterValue(t, ok200))

	// Rejected before start: the gauge is untouched, the response still counts.
	obs(Event{Kind: kind, State: StateError, StatusCode: 502, Err: &FetchError{Kind: kind, StatusCode: 502, Err: errors.New("bad gateway")}})
	assert.Equal(t, 0.0, gaugeValue(t, active))
	assert.Equal(t, 1.0, counterValue(t, bad502))
	assert.Equal(t, 1.0, counterValue(t, fetchErrs))
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	obs := Observers(nil, LogObserver(log))

	obs(Event{JobID: "j1", Kind: KindFaction, State: StateStarted, StatusCode: 200})
	obs(Event{JobID: "j1", Kind: KindFaction, State: StateError, Err: &ParseError{Index: 4, Err: errors.New("bad json")}})

	out := buf.String()
	assert.Contains(t, out, "Download started")
	assert.Contains(t, out, "Download failed")
	assert.Contains(t, out, "type=parse")
	assert.Contains(t, out, "job_id=j1")
}
