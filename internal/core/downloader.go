package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/JonMunkholm/eddb-ingest/internal/dump"
	"github.com/JonMunkholm/eddb-ingest/internal/lock"
	"github.com/JonMunkholm/eddb-ingest/internal/record"
)

// HTTPDoer performs the remote fetch. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RecordWriter persists one raw record. *store.Store satisfies it; the store
// applies the Normalizer, so downloaders never normalize themselves.
type RecordWriter interface {
	Upsert(ctx context.Context, kind string, raw record.Record) error
}

// Deps are the collaborators shared by every Downloader.
type Deps struct {
	BaseURL  string
	Client   HTTPDoer
	Store    RecordWriter
	Guard    lock.Guard
	Limiter  *JobLimiter
	Tracker  *Tracker
	Observer EventObserver
	Logger   *slog.Logger

	// Audit receives one entry per accepted request. Used by Service only.
	Audit AuditSink
}

// Downloader fetches one resource dump and upserts every record in it.
type Downloader struct {
	def  ResourceDefinition
	url  string
	deps Deps
	log  *slog.Logger
}

// NewDownloader creates the downloader for def. Nil collaborators other than
// Store get in-process defaults.
func NewDownloader(def ResourceDefinition, deps Deps) (*Downloader, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("downloader %s: no store", def.Kind)
	}
	u, err := url.JoinPath(deps.BaseURL, def.File)
	if err != nil {
		return nil, fmt.Errorf("downloader %s: source url: %w", def.Kind, err)
	}

	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	if deps.Guard == nil {
		deps.Guard = lock.NewMemory()
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

	return &Downloader{
		def:  def,
		url:  u,
		deps: deps,
		log:  deps.Logger.With(slog.String("kind", string(def.Kind))),
	}, nil
}

// Kind returns the resource kind this downloader ingests.
func (d *Downloader) Kind() Kind { return d.def.Kind }

// Download starts a job and returns without waiting for the fetch. A second
// call while a job of the same kind is in flight returns ErrAlreadyRunning.
// The job ignores cancellation of ctx.
func (d *Downloader) Download(ctx context.Context) (*Job, error) {
	release, err := d.deps.Guard.TryAcquire(ctx, string(d.def.Kind))
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, fmt.Errorf("%s: %w", d.def.Kind, ErrAlreadyRunning)
		}
		return nil, fmt.Errorf("guard %s: %w", d.def.Kind, err)
	}

	if err := d.deps.Limiter.Acquire(ctx); err != nil {
		release()
		return nil, err
	}

	job := newJob(d.def.Kind, d.deps.Observer)
	d.deps.Tracker.track(job)

	go d.run(context.WithoutCancel(ctx), job, release)
	return job, nil
}

func (d *Downloader) run(ctx context.Context, job *Job, release func()) {
	err := d.ingestSafely(ctx, job)

	// The kind is free again before anyone waiting on the job wakes.
	release()
	d.deps.Limiter.Release()

	if err != nil {
		job.fail(err)
		return
	}
	job.finish()
}

func (d *Downloader) ingestSafely(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Download panicked",
				slog.String("job_id", job.ID()),
				slog.Any("panic", r),
			)
			err = fmt.Errorf("download %s panicked: %v", d.def.Kind, r)
		}
	}()
	return d.ingest(ctx, job)
}

// ingest runs one fetch-decode-upsert pass. Records committed before a
// failure stay committed.
func (d *Downloader) ingest(ctx context.Context, job *Job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return &FetchError{Kind: d.def.Kind, URL: d.url, Err: err}
	}

	resp, err := d.deps.Client.Do(req)
	if err != nil {
		return &FetchError{Kind: d.def.Kind, URL: d.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{
			Kind:       d.def.Kind,
			URL:        d.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	job.start(resp.StatusCode)

	counter := dump.NewCountingReader(resp.Body)
	defer func() { job.setBytes(counter.BytesRead()) }()

	body, closer, err := dump.Open(counter, d.def.File)
	if err != nil {
		return err
	}
	defer closer.Close()

	dec, err := dump.NewDecoder(body, d.def.Format)
	if err != nil {
		return err
	}

	for i := 0; ; i++ {
		rec, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) {
				err = &ParseError{Index: i, Err: err}
			}
			return err
		}

		if err := d.deps.Store.Upsert(ctx, string(d.def.Kind), rec); err != nil {
			return &PersistenceError{Kind: d.def.Kind, Index: i, Err: err}
		}
		job.addRecord()
	}
}
