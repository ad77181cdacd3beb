package store

import (
	"context"
	"sync"
	"time"

	"diagflow/internal/domain"
)

// MemoryStore is the in-process Repository. Each session carries its
// own mutex, held across the whole read-modify-write of an Update, so
// transitions on one session serialize while distinct sessions proceed
// in parallel. The outer mutex guards only the map itself.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memEntry
}

type memEntry struct {
	mu      sync.Mutex
	session *domain.DiagnosticSession
	deleted bool
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memEntry),
	}
}

// Create stores a fully-formed session.
func (m *MemoryStore) Create(_ context.Context, s *domain.DiagnosticSession) error {
	if len(s.Steps) == 0 {
		return ErrEmptyPlan
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return ErrAlreadyExists
	}
	m.sessions[s.ID] = &memEntry{session: s.Clone()}
	return nil
}

func (m *MemoryStore) entry(id string) (*memEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	return e, ok
}

// Get returns a copy of the session.
func (m *MemoryStore) Get(_ context.Context, id string) (*domain.DiagnosticSession, error) {
	e, ok := m.entry(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}
	return e.session.Clone(), nil
}

// Update applies mutate under the session's lock. The mutation runs on
// a clone; a failed mutation leaves the stored session untouched.
func (m *MemoryStore) Update(_ context.Context, id string, mutate func(*domain.DiagnosticSession) error) (*domain.DiagnosticSession, error) {
	e, ok := m.entry(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}

	next := e.session.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	e.session = next
	return next.Clone(), nil
}

// Delete removes a session. It takes the per-session lock first so an
// eviction never interleaves with an in-flight Update.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	e, ok := m.entry(id)
	if !ok {
		return nil
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// ExpiredSessionIDs returns ids idle longer than ttl.
func (m *MemoryStore) ExpiredSessionIDs(_ context.Context, ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, e := range m.sessions {
		e.mu.Lock()
		idle := !e.deleted && e.session.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close discards all sessions.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*memEntry)
	return nil
}

var _ Repository = (*MemoryStore)(nil)
