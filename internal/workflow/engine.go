// Package workflow implements the state machine that drives a
// diagnostic session through its step plan, and the ledger that
// accumulates findings and conversation context.
package workflow

import (
	"errors"
	"time"

	"diagflow/internal/domain"
)

var (
	// ErrInvalidTransition is returned when advance is attempted on a
	// completed session.
	ErrInvalidTransition = errors.New("invalid step transition")
	// ErrInvalidArgument is returned when a reset target is outside
	// [0, currentStepIndex].
	ErrInvalidArgument = errors.New("invalid step index")
)

// StepOutcome is the technician-supplied result committed when a step
// completes.
type StepOutcome struct {
	Findings    string
	TestResults string
	Notes       string
	Confidence  int
}

// Advance commits the outcome for the current step and moves the cursor
// forward. It is the only operation that increases CurrentStepIndex.
// When the cursor reaches the end of the plan the session transitions
// to completed and CompletedAt is stamped.
func Advance(s *domain.DiagnosticSession, out StepOutcome) error {
	if s.Status != domain.StatusActive || s.CurrentStepIndex >= len(s.Steps) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	idx := s.CurrentStepIndex

	s.StepHistory = append(s.StepHistory, domain.StepRecord{
		StepIndex:   idx,
		Findings:    out.Findings,
		TestResults: out.TestResults,
		Notes:       out.Notes,
		Confidence:  out.Confidence,
		CompletedAt: now,
	})
	s.Findings[domain.StepKey(idx+1)] = out.Findings
	s.CurrentStepIndex = idx + 1
	s.Confidence = out.Confidence
	s.PendingFindings = ""
	s.PendingTestResults = ""
	s.UpdatedAt = now

	if s.CurrentStepIndex == len(s.Steps) {
		s.Status = domain.StatusCompleted
		s.CompletedAt = &now
	}

	return nil
}

// Reset rolls the session back so that targetIndex becomes the current
// step: history is truncated, findings for steps beyond the target are
// removed, conversation turns from the target step onward are dropped,
// and the session is forced back to active. Reset to the current index
// is a no-op.
func Reset(s *domain.DiagnosticSession, targetIndex int) error {
	if targetIndex < 0 || targetIndex > s.CurrentStepIndex {
		return ErrInvalidArgument
	}
	if targetIndex == s.CurrentStepIndex {
		return nil
	}

	s.StepHistory = s.StepHistory[:targetIndex]

	for n := targetIndex + 1; n <= len(s.Steps); n++ {
		delete(s.Findings, domain.StepKey(n))
	}

	kept := s.Conversation[:0]
	for _, turn := range s.Conversation {
		if turn.StepIndex < targetIndex {
			kept = append(kept, turn)
		}
	}
	s.Conversation = kept

	s.CurrentStepIndex = targetIndex
	s.Status = domain.StatusActive
	s.CompletedAt = nil
	s.FinalDiagnosis = ""
	s.PendingFindings = ""
	s.PendingTestResults = ""
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// CurrentStep returns the definition at the cursor. The second return
// value is false when the session is completed.
func CurrentStep(s *domain.DiagnosticSession) (domain.StepDefinition, bool) {
	if s.Status == domain.StatusCompleted || s.CurrentStepIndex >= len(s.Steps) {
		return domain.StepDefinition{}, false
	}
	return s.Steps[s.CurrentStepIndex], true
}
