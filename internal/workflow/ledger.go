package workflow

import (
	"encoding/json"
	"time"

	"diagflow/internal/domain"
)

// DefaultContextWindow is the number of trailing conversation turns
// exposed to the reasoning collaborator when no window is configured.
const DefaultContextWindow = 10

// Context is the bounded snapshot of session state handed to the
// reasoning collaborator. It is a pure projection: building it never
// mutates the session, and it is the only channel through which the
// collaborator observes session state.
type Context struct {
	DTCCode  string
	Vehicle  domain.VehicleInfo
	Research json.RawMessage

	CurrentStepIndex int
	TotalSteps       int
	// CurrentStep is nil once the session is completed.
	CurrentStep *domain.StepDefinition

	// History holds the committed outcomes for every step below the
	// cursor, in order.
	History         []domain.StepRecord
	PendingFindings string
	RecentTurns     []domain.Turn

	Confidence int
	Status     domain.Status

	// UserMessage is the chat message being interpreted, when the
	// snapshot is built for an interpreter call.
	UserMessage string
}

// RecordTurn appends a conversation turn at the session's current step.
// Using the live cursor keeps turn step indices monotonically
// non-decreasing regardless of request interleaving.
func RecordTurn(s *domain.DiagnosticSession, role, message string) {
	s.Conversation = append(s.Conversation, domain.Turn{
		Role:      role,
		Message:   message,
		StepIndex: s.CurrentStepIndex,
		Timestamp: time.Now().UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
}

// RecordFindings updates the scratch findings for the step currently in
// progress. A chat turn may update these several times; only the values
// present when the step is advanced are committed to history.
func RecordFindings(s *domain.DiagnosticSession, findings, testResults string) {
	if findings != "" {
		s.PendingFindings = findings
	}
	if testResults != "" {
		s.PendingTestResults = testResults
	}
	s.UpdatedAt = time.Now().UTC()
}

// BuildContext assembles the collaborator snapshot: immutable session
// facts, the step at the cursor, all committed findings in step order,
// and the trailing windowSize conversation turns.
func BuildContext(s *domain.DiagnosticSession, windowSize int) Context {
	if windowSize <= 0 {
		windowSize = DefaultContextWindow
	}

	snap := Context{
		DTCCode:          s.DTCCode,
		Vehicle:          s.Vehicle,
		Research:         s.Research,
		CurrentStepIndex: s.CurrentStepIndex,
		TotalSteps:       len(s.Steps),
		PendingFindings:  s.PendingFindings,
		Confidence:       s.Confidence,
		Status:           s.Status,
	}

	if step, ok := CurrentStep(s); ok {
		def := step
		snap.CurrentStep = &def
	}

	snap.History = make([]domain.StepRecord, len(s.StepHistory))
	copy(snap.History, s.StepHistory)

	recent := s.RecentTurns(windowSize)
	snap.RecentTurns = make([]domain.Turn, len(recent))
	copy(snap.RecentTurns, recent)

	return snap
}
