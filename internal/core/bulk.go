package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/eddb-ingest/internal/metrics"
)

// JobStarter starts one download job. *Downloader satisfies it.
type JobStarter interface {
	Kind() Kind
	Download(ctx context.Context) (*Job, error)
}

// BulkOrchestrator runs every downloader in BulkOrder. A stage starts only
// after the previous stage's job is terminal, and the first failure ends the
// run with the remaining stages skipped.
type BulkOrchestrator struct {
	gate    AccessGate
	stages  map[Kind]JobStarter
	tracker *Tracker
	log     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewBulkOrchestrator creates an orchestrator over one starter per kind.
func NewBulkOrchestrator(starters []JobStarter, tracker *Tracker, log *slog.Logger) *BulkOrchestrator {
	stages := make(map[Kind]JobStarter, len(starters))
	for _, s := range starters {
		stages[s.Kind()] = s
	}
	if tracker == nil {
		tracker = NewTracker(DefaultTrackerSize)
	}
	return &BulkOrchestrator{
		stages:  stages,
		tracker: tracker,
		log:     log.With(slog.String("item", "BulkOrchestrator")),
	}
}

// Run executes the stages from `from` (KindBody when empty) to the end of
// BulkOrder and returns when the run is terminal. On failure the returned
// run carries the failed stage and the error names it. Cancelling ctx does
// not stop the run.
func (o *BulkOrchestrator) Run(ctx context.Context, p Principal, from Kind) (*BulkRun, error) {
	if err := o.gate.Authorize(p); err != nil {
		return nil, err
	}

	kinds, err := bulkStages(from)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrBulkRunning
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	ctx = context.WithoutCancel(ctx)
	run := &BulkRun{
		ID:        uuid.NewString(),
		State:     StateStarted,
		From:      kinds[0],
		Stages:    make([]StageStatus, len(kinds)),
		StartedAt: time.Now().UTC(),
	}
	for i, k := range kinds {
		run.Stages[i] = StageStatus{Kind: k, State: StateIdle}
	}
	o.tracker.setBulkRun(*run)

	log := o.log.With(slog.String("run_id", run.ID), slog.String("principal", p.Name))
	log.Info("Bulk run started", slog.String("from", string(run.From)))

	for i := range run.Stages {
		stage := &run.Stages[i]

		if err := o.runStage(ctx, p, run, stage); err != nil {
			o.finish(run, StateError, i+1)
			log.Error("Bulk run failed",
				slog.String("stage", string(stage.Kind)),
				slog.Any("error", err),
			)
			return run, fmt.Errorf("bulk stage %s: %w", stage.Kind, err)
		}
	}

	o.finish(run, StateDone, len(run.Stages))
	log.Info("Bulk run finished")
	return run, nil
}

// runStage starts one stage and waits for its job to be terminal. The gate
// is checked again before each stage.
func (o *BulkOrchestrator) runStage(ctx context.Context, p Principal, run *BulkRun, stage *StageStatus) error {
	fail := func(err error) error {
		stage.State = StateError
		stage.Error = err.Error()
		return err
	}

	if err := o.gate.Authorize(p); err != nil {
		return fail(err)
	}

	starter, ok := o.stages[stage.Kind]
	if !ok {
		return fail(fmt.Errorf("%w: no downloader for %s", ErrUnknownKind, stage.Kind))
	}

	job, err := starter.Download(ctx)
	if err != nil {
		return fail(err)
	}
	stage.JobID = job.ID()
	stage.State = StateStarted
	o.tracker.setBulkRun(*run)

	snap, err := job.Wait(ctx)
	stage.StatusCode = snap.StatusCode
	stage.Records = snap.Records
	if err != nil {
		return fail(err)
	}
	stage.State = StateDone
	o.tracker.setBulkRun(*run)
	return nil
}

// finish marks stages from `next` on as skipped and closes the run.
func (o *BulkOrchestrator) finish(run *BulkRun, state JobState, next int) {
	for i := next; i < len(run.Stages); i++ {
		run.Stages[i].State = StateSkipped
	}
	now := time.Now().UTC()
	run.State = state
	run.FinishedAt = &now
	o.tracker.setBulkRun(*run)
	metrics.BulkRunsTotal.WithLabelValues(string(state)).Inc()
}

// Running reports whether a bulk run is in progress.
func (o *BulkOrchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func bulkStages(from Kind) ([]Kind, error) {
	if from == "" {
		return BulkOrder, nil
	}
	k, err := ParseKind(string(from))
	if err != nil {
		return nil, err
	}
	for i, known := range BulkOrder {
		if known == k {
			return BulkOrder[i:], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, from)
}
