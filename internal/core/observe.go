package core

import (
	"log/slog"
	"strconv"

	"github.com/JonMunkholm/eddb-ingest/internal/metrics"
)

// Observers fans one event out to several observers in order.
func Observers(obs ...EventObserver) EventObserver {
	return func(ev Event) {
		for _, o := range obs {
			if o != nil {
				o(ev)
			}
		}
	}
}

// MetricsObserver records job events in the prometheus collectors.
func MetricsObserver() EventObserver {
	return func(ev Event) {
		kind := string(ev.Kind)

		switch ev.State {
		case StateStarted:
			metrics.JobsActive.WithLabelValues(kind).Inc()
			metrics.FetchResponses.WithLabelValues(kind, strconv.Itoa(ev.StatusCode)).Inc()

		case StateDone, StateError:
			if ev.Started {
				metrics.JobsActive.WithLabelValues(kind).Dec()
			} else if ev.StatusCode != 0 {
				// Non-2xx answer: the job never started, count the response here
				metrics.FetchResponses.WithLabelValues(kind, strconv.Itoa(ev.StatusCode)).Inc()
			}
			metrics.JobsTotal.WithLabelValues(kind, string(ev.State)).Inc()
			metrics.JobDuration.WithLabelValues(kind, string(ev.State)).Observe(ev.Duration.Seconds())
			metrics.RecordsCommitted.WithLabelValues(kind).Add(float64(ev.Records))
			metrics.BytesFetched.WithLabelValues(kind).Add(float64(ev.Bytes))
			if ev.Err != nil {
				metrics.ErrorsTotal.WithLabelValues(kind, errorType(ev.Err)).Inc()
			}
		}
	}
}

// LogObserver writes one line per job event.
func LogObserver(log *slog.Logger) EventObserver {
	return func(ev Event) {
		attrs := []any{
			slog.String("job_id", ev.JobID),
			slog.String("kind", string(ev.Kind)),
		}

		switch ev.State {
		case StateStarted:
			log.Info("Download started", append(attrs, slog.Int("status", ev.StatusCode))...)
		case StateDone:
			log.Info("Download finished", append(attrs,
				slog.Int64("records", ev.Records),
				slog.Int64("bytes", ev.Bytes),
				slog.Duration("duration", ev.Duration),
			)...)
		case StateError:
			log.Error("Download failed", append(attrs,
				slog.Int64("records", ev.Records),
				slog.String("type", errorType(ev.Err)),
				slog.Any("error", ev.Err),
			)...)
		}
	}
}
