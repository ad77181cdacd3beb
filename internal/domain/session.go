package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a diagnostic session.
type Status string

const (
	// StatusActive means the session still has uncompleted steps.
	StatusActive Status = "active"
	// StatusCompleted means every step in the plan has been completed.
	StatusCompleted Status = "completed"
)

// Turn roles in the conversation history.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// VehicleInfo describes the vehicle under diagnosis. Immutable after
// session creation.
type VehicleInfo struct {
	Year    string `json:"year,omitempty"`
	Make    string `json:"make,omitempty"`
	Model   string `json:"model,omitempty"`
	Engine  string `json:"engine,omitempty"`
	Mileage string `json:"mileage,omitempty"`
	VIN     string `json:"vin,omitempty"`
}

// String renders the vehicle as a short human-readable descriptor.
func (v VehicleInfo) String() string {
	s := v.Year + " " + v.Make + " " + v.Model
	if v.Engine != "" {
		s += " (" + v.Engine + ")"
	}
	return s
}

// StepDefinition is one unit of the diagnostic plan.
type StepDefinition struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	ExpectedValues string   `json:"expectedValues,omitempty"`
	Tools          []string `json:"tools,omitempty"`
}

// StepRecord is the outcome of a completed step.
type StepRecord struct {
	StepIndex   int       `json:"stepIndex"`
	Findings    string    `json:"findings"`
	TestResults string    `json:"testResults,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Confidence  int       `json:"confidence"`
	CompletedAt time.Time `json:"completedAt"`
}

// Turn is a single conversation entry tied to the step it occurred on.
type Turn struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	StepIndex int       `json:"stepIndex"`
	Timestamp time.Time `json:"timestamp"`
}

// DiagnosticSession is the root aggregate for one guided diagnostic
// workflow instance. ID, DTCCode, Vehicle, Research and Steps are
// immutable after creation; everything else mutates only through the
// workflow transitions.
type DiagnosticSession struct {
	ID       string           `json:"id"`
	DTCCode  string           `json:"dtcCode"`
	Vehicle  VehicleInfo      `json:"vehicleInfo"`
	Research json.RawMessage  `json:"researchData,omitempty"`
	Steps    []StepDefinition `json:"diagnosticSteps"`

	CurrentStepIndex int               `json:"currentStepIndex"`
	StepHistory      []StepRecord      `json:"stepHistory"`
	Conversation     []Turn            `json:"conversationHistory"`
	Findings         map[string]string `json:"findings"`

	// PendingFindings is the scratch findings payload for the step
	// currently in progress. Committed into StepHistory/Findings only
	// when the step completes.
	PendingFindings    string `json:"pendingFindings,omitempty"`
	PendingTestResults string `json:"pendingTestResults,omitempty"`

	Confidence     int    `json:"confidence"`
	Status         Status `json:"status"`
	FinalDiagnosis string `json:"finalDiagnosis,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewSession creates an active session positioned at the first step.
// The step plan must be validated as non-empty by the caller.
func NewSession(id, dtcCode string, vehicle VehicleInfo, research json.RawMessage, steps []StepDefinition) *DiagnosticSession {
	now := time.Now().UTC()
	return &DiagnosticSession{
		ID:           id,
		DTCCode:      dtcCode,
		Vehicle:      vehicle,
		Research:     research,
		Steps:        steps,
		StepHistory:  []StepRecord{},
		Conversation: []Turn{},
		Findings:     make(map[string]string),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// StepKey is the findings-map key for the 1-based step number n.
func StepKey(n int) string {
	return fmt.Sprintf("step_%d", n)
}

// TotalSteps returns the length of the plan.
func (s *DiagnosticSession) TotalSteps() int {
	return len(s.Steps)
}

// IsCompleted reports whether the cursor has passed the last step.
func (s *DiagnosticSession) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// RecentTurns returns the last n conversation turns.
func (s *DiagnosticSession) RecentTurns(n int) []Turn {
	if n >= len(s.Conversation) {
		return s.Conversation
	}
	return s.Conversation[len(s.Conversation)-n:]
}

// Progress returns completion as a percentage of the plan.
func (s *DiagnosticSession) Progress() int {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.CurrentStepIndex * 100 / len(s.Steps)
}

// Clone returns a deep copy so callers can mutate without racing
// readers of the original.
func (s *DiagnosticSession) Clone() *DiagnosticSession {
	c := *s
	c.Steps = make([]StepDefinition, len(s.Steps))
	copy(c.Steps, s.Steps)
	c.StepHistory = make([]StepRecord, len(s.StepHistory))
	copy(c.StepHistory, s.StepHistory)
	c.Conversation = make([]Turn, len(s.Conversation))
	copy(c.Conversation, s.Conversation)
	c.Findings = make(map[string]string, len(s.Findings))
	for k, v := range s.Findings {
		c.Findings[k] = v
	}
	if s.Research != nil {
		c.Research = make(json.RawMessage, len(s.Research))
		copy(c.Research, s.Research)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
