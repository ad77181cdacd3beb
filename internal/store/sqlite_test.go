package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"diagflow/internal/domain"
	"diagflow/internal/workflow"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close sqlite store: %v", err)
		}
	})
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Create(ctx, testSession("a", 3)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.DTCCode != "P0420" || got.Vehicle.Make != "Toyota" || len(got.Steps) != 3 {
		t.Fatalf("round trip lost data: %+v", got)
	}
	if got.Status != domain.StatusActive || got.CurrentStepIndex != 0 {
		t.Fatalf("unexpected initial state: %q / %d", got.Status, got.CurrentStepIndex)
	}
}

func TestSQLiteNotFound(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Update(ctx, "missing", func(*domain.DiagnosticSession) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete of absent id should succeed, got %v", err)
	}
}

func TestSQLiteDuplicateCreate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Create(ctx, testSession("a", 2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.Create(ctx, testSession("a", 2)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestSQLiteUpdatePersistsTransition(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Create(ctx, testSession("a", 2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := s.Update(ctx, "a", func(sess *domain.DiagnosticSession) error {
		workflow.RecordTurn(sess, domain.RoleUser, "measured 11.8V at the battery")
		return workflow.Advance(sess, workflow.StepOutcome{
			Findings:    "battery voltage low",
			TestResults: "11.8V",
			Confidence:  60,
		})
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.CurrentStepIndex != 1 {
		t.Fatalf("cursor = %d, want 1", updated.CurrentStepIndex)
	}

	// Re-read from disk through a fresh Get.
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CurrentStepIndex != 1 || len(got.StepHistory) != 1 {
		t.Fatalf("transition not persisted: cursor %d, history %d", got.CurrentStepIndex, len(got.StepHistory))
	}
	if got.Findings["step_1"] != "battery voltage low" {
		t.Fatalf("findings not persisted: %v", got.Findings)
	}
	if len(got.Conversation) != 1 || got.Conversation[0].StepIndex != 0 {
		t.Fatalf("conversation not persisted: %+v", got.Conversation)
	}
}

func TestSQLiteFailedMutationPersistsNothing(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Create(ctx, testSession("a", 2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	boom := errors.New("mutation failed")
	_, err := s.Update(ctx, "a", func(sess *domain.DiagnosticSession) error {
		sess.CurrentStepIndex = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error back, got %v", err)
	}

	got, _ := s.Get(ctx, "a")
	if got.CurrentStepIndex != 0 {
		t.Fatal("failed mutation was persisted")
	}
}

func TestSQLiteExpiredSessionIDs(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	stale := testSession("stale", 2)
	stale.UpdatedAt = time.Now().Add(-3 * time.Hour)
	if err := s.Create(ctx, stale); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.Create(ctx, testSession("fresh", 2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ids, err := s.ExpiredSessionIDs(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("expiredSessionIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "stale" {
		t.Fatalf("expected [stale], got %v", ids)
	}

	if err := s.Delete(ctx, "stale"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after eviction, got %v", err)
	}
}
