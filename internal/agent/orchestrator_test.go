package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"diagflow/internal/workflow"
)

type stubGenerator struct {
	text        string
	err         error
	lastRole    Role
	sawDeadline bool
}

func (s *stubGenerator) Generate(ctx context.Context, role Role, _ workflow.Context) (string, error) {
	s.lastRole = role
	_, s.sawDeadline = ctx.Deadline()
	return s.text, s.err
}

func (s *stubGenerator) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrchestratorAppliesTimeout(t *testing.T) {
	stub := &stubGenerator{text: "ok"}
	o := NewOrchestrator(stub, 5*time.Second, discardLogger())

	if _, err := o.Interpret(context.Background(), workflow.Context{}); err != nil {
		t.Fatalf("interpret failed: %v", err)
	}
	if !stub.sawDeadline {
		t.Fatal("expected a deadline on the collaborator context")
	}
}

func TestOrchestratorRoleRouting(t *testing.T) {
	stub := &stubGenerator{text: "ok"}
	o := NewOrchestrator(stub, time.Second, discardLogger())
	ctx := context.Background()

	if _, err := o.Interpret(ctx, workflow.Context{}); err != nil || stub.lastRole != RoleInterpreter {
		t.Fatalf("interpret: role %q, err %v", stub.lastRole, err)
	}
	if _, err := o.RecommendNext(ctx, workflow.Context{}); err != nil || stub.lastRole != RolePlanner {
		t.Fatalf("recommendNext: role %q, err %v", stub.lastRole, err)
	}
	if _, err := o.Synthesize(ctx, workflow.Context{}); err != nil || stub.lastRole != RoleSynthesizer {
		t.Fatalf("synthesize: role %q, err %v", stub.lastRole, err)
	}
}

func TestOrchestratorWrapsFailures(t *testing.T) {
	stub := &stubGenerator{err: errors.New("upstream 500")}
	o := NewOrchestrator(stub, time.Second, discardLogger())

	_, err := o.Interpret(context.Background(), workflow.Context{})
	if !errors.Is(err, ErrGenerate) {
		t.Fatalf("expected ErrGenerate, got %v", err)
	}
}

func TestDisabledGeneratorIsUnavailable(t *testing.T) {
	o := NewOrchestrator(nil, time.Second, discardLogger())

	_, err := o.Synthesize(context.Background(), workflow.Context{})
	if !errors.Is(err, ErrGenerate) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
}
