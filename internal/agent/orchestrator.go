package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"diagflow/internal/workflow"
)

// DefaultTimeout bounds a single collaborator call when config does not
// say otherwise.
const DefaultTimeout = 30 * time.Second

// Orchestrator fans session context out to the collaborator with the
// right role framing. It holds no session state of its own; a failed
// call leaves whatever the engine already committed untouched.
type Orchestrator struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator over gen. A nil gen disables
// AI features.
func NewOrchestrator(gen Generator, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if gen == nil {
		gen = Disabled{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{gen: gen, timeout: timeout, logger: logger}
}

func (o *Orchestrator) generate(ctx context.Context, role Role, snap workflow.Context) (string, error) {
	// Bound the call even when the request context has no deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := o.gen.Generate(ctx, role, snap)
	if err != nil {
		o.logger.Warn("collaborator call failed",
			"role", string(role),
			"elapsed", time.Since(start),
			"error", err,
		)
		return "", fmt.Errorf("%w: %s: %v", ErrGenerate, role, err)
	}

	o.logger.Info("collaborator call completed",
		"role", string(role),
		"elapsed", time.Since(start),
		"response_length", len(text),
	)
	return text, nil
}

// Interpret answers a technician chat message against the active step.
func (o *Orchestrator) Interpret(ctx context.Context, snap workflow.Context) (string, error) {
	return o.generate(ctx, RoleInterpreter, snap)
}

// RecommendNext reviews a just-completed step and returns an advisory
// recommendation on how to proceed.
func (o *Orchestrator) RecommendNext(ctx context.Context, snap workflow.Context) (string, error) {
	return o.generate(ctx, RolePlanner, snap)
}

// Synthesize writes the final diagnosis from the full session history.
// Invoked once, at the advance that completes the session.
func (o *Orchestrator) Synthesize(ctx context.Context, snap workflow.Context) (string, error) {
	return o.generate(ctx, RoleSynthesizer, snap)
}

// Close releases the underlying generator.
func (o *Orchestrator) Close() {
	if err := o.gen.Close(); err != nil {
		o.logger.Warn("failed to close generator", "error", err)
	}
}
