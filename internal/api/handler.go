// Package api provides the HTTP boundary for diagnostic sessions. It
// composes the store, workflow, and agent packages per request and
// contains no business rules beyond argument validation.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"diagflow/internal/agent"
	"diagflow/internal/store"
	"diagflow/internal/workflow"
)

// maxRequestBodySize bounds session payloads (1MB).
const maxRequestBodySize = 1 << 20

// Error codes returned in the response body.
const (
	codeInvalidRequest      = "invalid_request"
	codeSessionNotFound     = "session_not_found"
	codeInvalidTransition   = "invalid_transition"
	codeInvalidArgument     = "invalid_argument"
	codeCollaboratorFailure = "collaborator_failure"
	codePersistenceFailure  = "persistence_failure"
	codeRateLimited         = "rate_limit_exceeded"
)

// Handler handles diagnostic session HTTP requests.
type Handler struct {
	repo          store.Repository
	orch          *agent.Orchestrator
	limiter       *agent.RateLimiter
	turnLog       agent.TurnLogger
	contextWindow int
	aiEnabled     bool
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(repo store.Repository, orch *agent.Orchestrator, limiter *agent.RateLimiter, turnLog agent.TurnLogger, contextWindow int, aiEnabled bool) *Handler {
	if turnLog == nil {
		turnLog = mustNoopTurnLogger()
	}
	if contextWindow <= 0 {
		contextWindow = workflow.DefaultContextWindow
	}
	return &Handler{
		repo:          repo,
		orch:          orch,
		limiter:       limiter,
		turnLog:       turnLog,
		contextWindow: contextWindow,
		aiEnabled:     aiEnabled,
	}
}

func mustNoopTurnLogger() agent.TurnLogger {
	l, _ := agent.NewTurnLogger(agent.TurnLogConfig{}, nil)
	return l
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "internal", "message": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a structured {error, message} response body.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]string{"error": code, "message": message})
}

// domainError maps workflow/store failures onto status codes. Returns
// false when err is nil.
func domainError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, codeSessionNotFound, "session not found")
	case errors.Is(err, workflow.ErrInvalidTransition):
		Error(w, http.StatusBadRequest, codeInvalidTransition, "session is already completed")
	case errors.Is(err, workflow.ErrInvalidArgument):
		Error(w, http.StatusBadRequest, codeInvalidArgument, "step index out of range")
	case errors.Is(err, store.ErrEmptyPlan):
		Error(w, http.StatusBadRequest, codeInvalidRequest, "diagnosticSteps must not be empty")
	default:
		Error(w, http.StatusInternalServerError, codePersistenceFailure, "failed to persist session")
	}
	return true
}
