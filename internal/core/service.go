package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Service is the entry point for every ingestion operation. It owns one
// Downloader per registered kind and the bulk orchestrator, and checks the
// access gate before anything else happens.
type Service struct {
	gate        AccessGate
	downloaders map[Kind]*Downloader
	bulk        *BulkOrchestrator
	tracker     *Tracker
	limiter     *JobLimiter
	audit       AuditSink
	log         *slog.Logger
}

// JobsStatus is the payload of the job listing.
type JobsStatus struct {
	Jobs    []JobSnapshot    `json:"jobs"`
	Bulk    *BulkRun         `json:"bulk,omitempty"`
	Limiter JobLimiterStatus `json:"limiter"`
}

// NewService builds a downloader for every registered kind. Import
// internal/core/resources to register the EDDB kinds.
func NewService(deps Deps) (*Service, error) {
	defs := All()
	if len(defs) == 0 {
		return nil, errors.New("no resources registered")
	}

	if deps.Limiter == nil {
		deps.Limiter = NewJobLimiter(DefaultMaxConcurrentJobs, DefaultMaxWaitTime)
	}
	if deps.Tracker == nil {
		deps.Tracker = NewTracker(DefaultTrackerSize)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = NewMemoryAudit(DefaultAuditLimit)
	}

	s := &Service{
		downloaders: make(map[Kind]*Downloader, len(defs)),
		tracker:     deps.Tracker,
		limiter:     deps.Limiter,
		audit:       deps.Audit,
		log:         deps.Logger,
	}

	starters := make([]JobStarter, 0, len(defs))
	for _, def := range defs {
		d, err := NewDownloader(def, deps)
		if err != nil {
			return nil, err
		}
		s.downloaders[def.Kind] = d
		starters = append(starters, d)
	}
	s.bulk = NewBulkOrchestrator(starters, deps.Tracker, deps.Logger)

	return s, nil
}

// Download starts a job for kind on behalf of p. The gate is checked before
// the downloader is touched, so a denied call has no side effects.
func (s *Service) Download(ctx context.Context, p Principal, kind Kind) (*Job, error) {
	if err := s.gate.Authorize(p); err != nil {
		return nil, err
	}

	d, ok := s.downloaders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	job, err := d.Download(ctx)

	entry := newAuditEntry(ctx, ActionDownload, p)
	entry.Kind = kind
	if err != nil {
		entry.Outcome = MapError(err).Code
	} else {
		entry.JobID = job.ID()
		entry.Outcome = string(StateStarted)
	}
	s.record(ctx, entry)

	return job, err
}

// RunAll runs a bulk download starting at from and blocks until it is
// terminal.
func (s *Service) RunAll(ctx context.Context, p Principal, from Kind) (*BulkRun, error) {
	if err := s.gate.Authorize(p); err != nil {
		return nil, err
	}

	run, err := s.bulk.Run(ctx, p, from)

	entry := newAuditEntry(ctx, ActionBulkRun, p)
	entry.Kind = from
	switch {
	case run != nil:
		entry.RunID = run.ID
		entry.Outcome = string(run.State)
	case err != nil:
		entry.Outcome = MapError(err).Code
	}
	s.record(ctx, entry)

	return run, err
}

// AuditLog returns the newest audit entries.
func (s *Service) AuditLog(ctx context.Context, p Principal, limit int) ([]AuditEntry, error) {
	if err := s.gate.Authorize(p); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, limit)
}

// record stores an audit entry. A failing sink never fails the request.
func (s *Service) record(ctx context.Context, e AuditEntry) {
	if err := s.audit.Record(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("Cannot record audit entry",
			slog.String("action", string(e.Action)),
			slog.Any("error", err),
		)
	}
}

// Job returns one tracked job.
func (s *Service) Job(p Principal, id string) (JobSnapshot, error) {
	if err := s.gate.Authorize(p); err != nil {
		return JobSnapshot{}, err
	}
	return s.tracker.Job(id)
}

// Jobs returns recent jobs, the last bulk run and limiter usage.
func (s *Service) Jobs(p Principal) (JobsStatus, error) {
	if err := s.gate.Authorize(p); err != nil {
		return JobsStatus{}, err
	}

	status := JobsStatus{
		Jobs:    s.tracker.Jobs(),
		Limiter: s.limiter.Status(),
	}
	if run, ok := s.tracker.LastBulkRun(); ok {
		status.Bulk = &run
	}
	return status, nil
}

// Kinds returns the kinds this service can download, in bulk order.
func (s *Service) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.downloaders))
	for _, k := range BulkOrder {
		if _, ok := s.downloaders[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Drain blocks until every running job has finished or ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
