// Package agent translates session context into role-specific calls to
// the external reasoning collaborator and normalizes its output.
package agent

import (
	"context"
	"errors"

	"diagflow/internal/workflow"
)

// Role selects the framing applied to a collaborator call.
type Role string

const (
	// RoleInterpreter answers a technician chat message against the
	// active step.
	RoleInterpreter Role = "interpreter"
	// RolePlanner reviews a just-completed step and recommends how to
	// proceed. Advisory narrative only; it never edits the plan.
	RolePlanner Role = "planner"
	// RoleSynthesizer produces the final diagnosis from the full
	// session history.
	RoleSynthesizer Role = "synthesizer"
)

var (
	// ErrUnavailable is returned when no collaborator is configured.
	ErrUnavailable = errors.New("reasoning collaborator unavailable")
	// ErrGenerate wraps collaborator call failures (timeouts, upstream
	// errors). Session state committed before the call stands.
	ErrGenerate = errors.New("collaborator generation failed")
)

// Generator is the single capability boundary to the reasoning
// collaborator: stateless text generation over a context snapshot. The
// snapshot is the only session state a collaborator ever observes.
type Generator interface {
	Generate(ctx context.Context, role Role, snap workflow.Context) (string, error)
	Close() error
}

// Disabled is the Generator used when AI features are switched off.
type Disabled struct{}

// Generate always reports the collaborator as unavailable.
func (Disabled) Generate(context.Context, Role, workflow.Context) (string, error) {
	return "", ErrUnavailable
}

// Close is a no-op.
func (Disabled) Close() error { return nil }

var _ Generator = Disabled{}
