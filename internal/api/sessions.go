package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"diagflow/internal/agent"
	"diagflow/internal/domain"
	"diagflow/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type startSessionRequest struct {
	DTCCode         string                  `json:"dtcCode"`
	VehicleInfo     domain.VehicleInfo      `json:"vehicleInfo"`
	ResearchData    json.RawMessage         `json:"researchData"`
	DiagnosticSteps []domain.StepDefinition `json:"diagnosticSteps"`
}

type chatRequest struct {
	Message     string `json:"message"`
	Findings    string `json:"findings,omitempty"`
	TestResults string `json:"testResults,omitempty"`
}

type completeStepRequest struct {
	Findings    string `json:"findings"`
	TestResults string `json:"testResults,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Confidence  int    `json:"confidence"`
}

type resetRequest struct {
	ResetToStep int `json:"resetToStep"`
}

// stepContext is the compact progress object echoed on chat and
// current-step responses.
type stepContext struct {
	CurrentStepIndex int    `json:"currentStepIndex"`
	TotalSteps       int    `json:"totalSteps"`
	StepTitle        string `json:"stepTitle,omitempty"`
	DTCCode          string `json:"dtcCode"`
}

func sessionContext(s *domain.DiagnosticSession) stepContext {
	sc := stepContext{
		CurrentStepIndex: s.CurrentStepIndex,
		TotalSteps:       s.TotalSteps(),
		DTCCode:          s.DTCCode,
	}
	if step, ok := workflow.CurrentStep(s); ok {
		sc.StepTitle = step.Title
	}
	return sc
}

// RegisterRoutes registers the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.HandleStartSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/current-step", h.HandleCurrentStep)
			r.Post("/chat", h.HandleChat)
			r.Post("/complete-step", h.HandleCompleteStep)
			r.Get("/summary", h.HandleSummary)
			r.Post("/reset", h.HandleReset)
		})
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
		return false
	}
	return true
}

// HandleStartSession handles POST /api/sessions.
func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.DTCCode == "" {
		Error(w, http.StatusBadRequest, codeInvalidRequest, "dtcCode is required")
		return
	}
	if len(req.DiagnosticSteps) == 0 {
		Error(w, http.StatusBadRequest, codeInvalidRequest, "diagnosticSteps must not be empty")
		return
	}

	sess := domain.NewSession(uuid.New().String(), req.DTCCode, req.VehicleInfo, req.ResearchData, req.DiagnosticSteps)
	if err := h.repo.Create(r.Context(), sess); err != nil {
		domainError(w, err)
		return
	}

	slog.Info("Diagnostic session started",
		"session_id", sess.ID,
		"dtc_code", sess.DTCCode,
		"total_steps", sess.TotalSteps(),
	)

	JSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":        sess.ID,
		"status":           sess.Status,
		"currentStepIndex": sess.CurrentStepIndex,
		"totalSteps":       sess.TotalSteps(),
	})
}

// HandleCurrentStep handles GET /api/sessions/{id}/current-step.
func (h *Handler) HandleCurrentStep(w http.ResponseWriter, r *http.Request) {
	sess, err := h.repo.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if domainError(w, err) {
		return
	}

	if sess.IsCompleted() {
		resp := map[string]interface{}{
			"completed":  true,
			"findings":   sess.Findings,
			"confidence": sess.Confidence,
		}
		if sess.FinalDiagnosis != "" {
			resp["finalDiagnosis"] = sess.FinalDiagnosis
		}
		JSON(w, http.StatusOK, resp)
		return
	}

	step, _ := workflow.CurrentStep(sess)
	JSON(w, http.StatusOK, map[string]interface{}{
		"completed":  false,
		"stepNumber": sess.CurrentStepIndex + 1,
		"totalSteps": sess.TotalSteps(),
		"step":       step,
		"progress":   sess.Progress(),
		"context":    sessionContext(sess),
	})
}

// HandleChat handles POST /api/sessions/{id}/chat. The interpreter call
// happens against a snapshot; the session is only mutated after the
// collaborator succeeds, so a failed chat leaves no trace.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, codeInvalidRequest, "message is required")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(id) {
		Error(w, http.StatusTooManyRequests, codeRateLimited, "too many chat requests for this session")
		return
	}

	sess, err := h.repo.Get(r.Context(), id)
	if domainError(w, err) {
		return
	}

	snap := workflow.BuildContext(sess, h.contextWindow)
	snap.UserMessage = req.Message
	if req.Findings != "" {
		snap.PendingFindings = req.Findings
	}

	response, err := h.orch.Interpret(r.Context(), snap)
	if err != nil {
		Error(w, http.StatusBadGateway, codeCollaboratorFailure, "diagnostic assistant is unavailable")
		return
	}

	updated, err := h.repo.Update(r.Context(), id, func(s *domain.DiagnosticSession) error {
		if req.Findings != "" || req.TestResults != "" {
			workflow.RecordFindings(s, req.Findings, req.TestResults)
		}
		workflow.RecordTurn(s, domain.RoleUser, req.Message)
		workflow.RecordTurn(s, domain.RoleAgent, response)
		return nil
	})
	if domainError(w, err) {
		return
	}

	h.logTurn(updated, domain.RoleUser, "chat_user_message", req.Message)
	h.logTurn(updated, domain.RoleAgent, "chat_agent_message", response)

	JSON(w, http.StatusOK, map[string]interface{}{
		"response": response,
		"context":  sessionContext(updated),
	})
}

// HandleCompleteStep handles POST /api/sessions/{id}/complete-step.
// The advance transition commits before any narrative call; a
// collaborator failure afterwards degrades the response but never rolls
// the transition back.
func (h *Handler) HandleCompleteStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req completeStepRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := h.repo.Update(r.Context(), id, func(s *domain.DiagnosticSession) error {
		out := workflow.StepOutcome{
			Findings:    req.Findings,
			TestResults: req.TestResults,
			Notes:       req.Notes,
			Confidence:  req.Confidence,
		}
		// Fall back to findings accumulated through chat turns.
		if out.Findings == "" {
			out.Findings = s.PendingFindings
		}
		if out.TestResults == "" {
			out.TestResults = s.PendingTestResults
		}
		return workflow.Advance(s, out)
	})
	if domainError(w, err) {
		return
	}

	slog.Info("Diagnostic step completed",
		"session_id", updated.ID,
		"current_step_index", updated.CurrentStepIndex,
		"total_steps", updated.TotalSteps(),
		"completed", updated.IsCompleted(),
	)

	resp := map[string]interface{}{
		"stepCompleted":    true,
		"isComplete":       updated.IsCompleted(),
		"currentStepIndex": updated.CurrentStepIndex,
		"totalSteps":       updated.TotalSteps(),
	}

	if updated.IsCompleted() {
		h.finishSession(r, id, updated, resp)
	} else {
		recommendation, err := h.orch.RecommendNext(r.Context(), workflow.BuildContext(updated, h.contextWindow))
		if err != nil {
			resp["nextStepRecommendation"] = ""
			resp["warning"] = "next-step recommendation unavailable"
		} else {
			resp["nextStepRecommendation"] = recommendation
		}
		if step, ok := workflow.CurrentStep(updated); ok {
			resp["nextStep"] = step
		}
	}

	JSON(w, http.StatusOK, resp)
}

// finishSession runs the one-shot synthesizer call for a session that
// just completed and persists the resulting diagnosis.
func (h *Handler) finishSession(r *http.Request, id string, sess *domain.DiagnosticSession, resp map[string]interface{}) {
	// The synthesizer sees the whole history, not just the window.
	snap := workflow.BuildContext(sess, len(sess.Conversation))

	diagnosis, err := h.orch.Synthesize(r.Context(), snap)
	if err != nil {
		resp["finalDiagnosis"] = ""
		resp["warning"] = "final diagnosis unavailable"
		return
	}
	resp["finalDiagnosis"] = diagnosis

	if _, err := h.repo.Update(r.Context(), id, func(s *domain.DiagnosticSession) error {
		s.FinalDiagnosis = diagnosis
		return nil
	}); err != nil {
		slog.Warn("Failed to persist final diagnosis", "session_id", id, "error", err)
		resp["warning"] = "final diagnosis could not be saved"
	}
}

// HandleSummary handles GET /api/sessions/{id}/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := h.repo.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if domainError(w, err) {
		return
	}

	resp := map[string]interface{}{
		"sessionId":         sess.ID,
		"dtcCode":           sess.DTCCode,
		"vehicleInfo":       sess.Vehicle,
		"status":            sess.Status,
		"progress":          sess.Progress(),
		"currentStepIndex":  sess.CurrentStepIndex,
		"totalSteps":        sess.TotalSteps(),
		"confidence":        sess.Confidence,
		"findings":          sess.Findings,
		"stepHistory":       sess.StepHistory,
		"conversationTurns": len(sess.Conversation),
		"createdAt":         sess.CreatedAt,
		"updatedAt":         sess.UpdatedAt,
		"elapsed":           time.Since(sess.CreatedAt).Round(time.Second).String(),
	}
	if sess.CompletedAt != nil {
		resp["completedAt"] = sess.CompletedAt
	}
	if sess.FinalDiagnosis != "" {
		resp["finalDiagnosis"] = sess.FinalDiagnosis
	}
	JSON(w, http.StatusOK, resp)
}

// HandleReset handles POST /api/sessions/{id}/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req resetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := h.repo.Update(r.Context(), id, func(s *domain.DiagnosticSession) error {
		return workflow.Reset(s, req.ResetToStep)
	})
	if domainError(w, err) {
		return
	}

	slog.Info("Diagnostic session reset",
		"session_id", updated.ID,
		"current_step_index", updated.CurrentStepIndex,
	)

	resp := map[string]interface{}{
		"currentStep": updated.CurrentStepIndex,
		"totalSteps":  updated.TotalSteps(),
		"status":      updated.Status,
	}
	if step, ok := workflow.CurrentStep(updated); ok {
		resp["step"] = step
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) logTurn(sess *domain.DiagnosticSession, role, eventType, content string) {
	h.turnLog.Log(agent.TurnLogEvent{
		SessionID: sess.ID,
		DTCCode:   sess.DTCCode,
		StepIndex: sess.CurrentStepIndex,
		Role:      role,
		EventType: eventType,
		Content:   content,
	})
}
