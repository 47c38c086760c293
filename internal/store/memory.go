package store

import (
	"context"
	"sync"

	"github.com/JonMunkholm/eddb-ingest/internal/record"
)

// Memory keeps records in process memory. Used by tests and by
// STORE_DRIVER=memory for local runs without Postgres.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[int64]record.Record

	// FailOn, when set, is consulted before every commit and its error is
	// returned instead of writing.
	FailOn func(table string, id int64) error
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[int64]record.Record)}
}

func (m *Memory) commit(_ context.Context, col Collection, id int64, rec record.Record) error {
	if m.FailOn != nil {
		if err := m.FailOn(col.Table, id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[col.Table]
	if !ok {
		t = make(map[int64]record.Record)
		m.tables[col.Table] = t
	}
	t[id] = rec
	return nil
}

func (m *Memory) get(_ context.Context, table string, id int64) (record.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *Memory) count(_ context.Context, table string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.tables[table])), nil
}
