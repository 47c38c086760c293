package core

import "sync"

// DefaultTrackerSize is how many jobs the tracker remembers.
const DefaultTrackerSize = 50

// Tracker keeps the most recent jobs and the last bulk run for status
// queries. Running jobs are never evicted.
type Tracker struct {
	mu    sync.RWMutex
	limit int
	jobs  map[string]*Job
	order []string // oldest first
	bulk  *BulkRun
}

// NewTracker creates a tracker holding up to limit finished jobs.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultTrackerSize
	}
	return &Tracker{
		limit: limit,
		jobs:  make(map[string]*Job),
	}
}

func (t *Tracker) track(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobs[j.ID()] = j
	t.order = append(t.order, j.ID())

	for i := 0; len(t.order) > t.limit && i < len(t.order); {
		old := t.jobs[t.order[i]]
		select {
		case <-old.Done():
			delete(t.jobs, t.order[i])
			t.order = append(t.order[:i], t.order[i+1:]...)
		default:
			i++
		}
	}
}

// Job returns the snapshot of a tracked job.
func (t *Tracker) Job(id string) (JobSnapshot, error) {
	t.mu.RLock()
	j, ok := t.jobs[id]
	t.mu.RUnlock()

	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	return j.Snapshot(), nil
}

// Jobs returns snapshots of all tracked jobs, newest first.
func (t *Tracker) Jobs() []JobSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]JobSnapshot, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		out = append(out, t.jobs[t.order[i]].Snapshot())
	}
	return out
}

// LastBulkRun returns the most recent bulk run, finished or not.
func (t *Tracker) LastBulkRun() (BulkRun, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.bulk == nil {
		return BulkRun{}, false
	}
	return t.bulk.clone(), true
}

func (t *Tracker) setBulkRun(r BulkRun) {
	r = r.clone()

	t.mu.Lock()
	t.bulk = &r
	t.mu.Unlock()
}
