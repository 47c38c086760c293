// Package store persists ingested records, one collection per resource kind.
//
// The only write operation is Store.Upsert, which normalizes the raw record
// and commits it by external id. Backends implement unexported methods, so no
// code outside this package can commit a record without normalization.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/eddb-ingest/internal/record"
)

// ErrUnknownCollection is returned for a kind that was not registered.
var ErrUnknownCollection = errors.New("unknown collection")

// Collection describes where one resource kind is stored and how its records
// are normalized.
type Collection struct {
	Kind       string
	Table      string
	Normalizer record.Normalizer

	// RefColumns are integer fields that reference other resources by
	// external id. Backends that support it keep them as indexed columns.
	RefColumns []string
}

// Backend is a storage engine. Its methods are unexported; use NewPostgres or
// NewMemory to obtain one.
type Backend interface {
	commit(ctx context.Context, col Collection, id int64, rec record.Record) error
	get(ctx context.Context, table string, id int64) (record.Record, bool, error)
	count(ctx context.Context, table string) (int64, error)
}

// Store owns all collections. Collections are fixed at construction, so a
// Store is safe for concurrent use when its backend is.
type Store struct {
	backend     Backend
	collections map[string]Collection
}

// New creates a Store over backend with the given collections.
func New(backend Backend, cols ...Collection) *Store {
	s := &Store{
		backend:     backend,
		collections: make(map[string]Collection, len(cols)),
	}
	for _, c := range cols {
		s.collections[c.Kind] = c
	}
	return s
}

// Upsert normalizes raw and inserts or fully replaces the record with the
// same id. raw is not modified.
func (s *Store) Upsert(ctx context.Context, kind string, raw record.Record) error {
	col, err := s.collection(kind)
	if err != nil {
		return err
	}

	id, err := raw.ID()
	if err != nil {
		return err
	}

	rec, err := col.Normalizer.Apply(raw)
	if err != nil {
		return fmt.Errorf("normalize %s %d: %w", kind, id, err)
	}

	if err := s.backend.commit(ctx, col, id, rec); err != nil {
		return fmt.Errorf("commit %s %d: %w", kind, id, err)
	}
	return nil
}

// Get returns the committed record for id.
func (s *Store) Get(ctx context.Context, kind string, id int64) (record.Record, bool, error) {
	col, err := s.collection(kind)
	if err != nil {
		return nil, false, err
	}
	return s.backend.get(ctx, col.Table, id)
}

// Count returns the number of records stored for kind.
func (s *Store) Count(ctx context.Context, kind string) (int64, error) {
	col, err := s.collection(kind)
	if err != nil {
		return 0, err
	}
	return s.backend.count(ctx, col.Table)
}

func (s *Store) collection(kind string) (Collection, error) {
	col, ok := s.collections[kind]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, kind)
	}
	return col, nil
}
