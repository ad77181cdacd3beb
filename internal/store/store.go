// Package store provides session persistence interfaces and
// implementations.
package store

import (
	"context"
	"errors"
	"time"

	"diagflow/internal/domain"
)

var (
	// ErrNotFound is returned when a session id is absent or has been
	// evicted. Callers treat this as a client error, not a retryable
	// fault.
	ErrNotFound = errors.New("session not found")
	// ErrEmptyPlan is returned when a session is created with no
	// diagnostic steps.
	ErrEmptyPlan = errors.New("diagnostic step plan is empty")
	// ErrAlreadyExists is returned when a session id collides.
	ErrAlreadyExists = errors.New("session already exists")
)

// Repository owns the id -> DiagnosticSession mapping. Implementations
// must serialize Update calls per session id: the read-modify-write is
// atomic with respect to other updates and deletes of the same session,
// while operations on distinct sessions proceed in parallel.
type Repository interface {
	// Create stores a fully-formed session. Rejects empty step plans.
	Create(ctx context.Context, s *domain.DiagnosticSession) error

	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.DiagnosticSession, error)

	// Update applies mutate to the session under the per-session lock
	// and persists the result. If mutate returns an error nothing is
	// persisted and the error is returned as-is. On success the
	// updated snapshot is returned.
	Update(ctx context.Context, id string, mutate func(*domain.DiagnosticSession) error) (*domain.DiagnosticSession, error)

	// Delete removes a session. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// ExpiredSessionIDs returns ids of sessions idle longer than ttl.
	ExpiredSessionIDs(ctx context.Context, ttl time.Duration) ([]string, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
