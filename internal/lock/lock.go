// Package lock provides the in-flight guards that keep a resource from being
// downloaded twice at the same time.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned by TryAcquire when the key is already held.
var ErrHeld = errors.New("lock is held")

// Guard hands out exclusive, non-blocking leases by key.
type Guard interface {
	// TryAcquire takes the lease for key or fails with ErrHeld. The returned
	// release func must be called exactly once.
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// Memory is a process-local Guard.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an empty process-local guard.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryAcquire(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrHeld
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently leased.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
