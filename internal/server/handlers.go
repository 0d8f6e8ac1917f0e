// File: internal/server/handlers.go
// Description: HTTP request handling for the automation backend. Handlers
// validate caller input, delegate to the orchestrator and map the error
// taxonomy onto status codes: 400 for malformed caller input, 404 for unknown
// tasks, 409 for results delivered to finished tasks, 500 for oracle and
// planning trouble. Prompts and credentials are never echoed in responses.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/orchestrator"
)

// Handlers manages HTTP request handling for the backend API.
type Handlers struct {
	log  *zap.Logger
	orch *orchestrator.Orchestrator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orch *orchestrator.Orchestrator, logger *zap.Logger) *Handlers {
	return &Handlers{
		log:  logger.Named("http_handlers"),
		orch: orch,
	}
}

// RegisterRoutes sets up the routing for the API.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.HandleHealth)

	r.Post("/api/intent", h.HandleIntent)
	r.Post("/api/command", h.HandleCommand)
	r.Post("/api/plan", h.HandlePlan)
	r.Post("/api/verify", h.HandleVerify)
	r.Post("/api/replan", h.HandleReplan)

	r.Route("/api/task/{taskID}", func(r chi.Router) {
		r.Get("/", h.HandleGetTask)
		r.Post("/result", h.HandleResult)
		r.Post("/abort", h.HandleAbort)
	})
}

// HandleHealth confirms the server is responsive.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleIntent resolves a raw utterance into a structured intent.
func (h *Handlers) HandleIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		h.respondError(w, http.StatusBadRequest, "input must not be empty")
		return
	}

	intent, err := h.orch.ResolveIntent(r.Context(), req.Input)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, intent)
}

// HandleCommand is the full front door: resolve, plan and admit in one call.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		h.respondError(w, http.StatusBadRequest, "input must not be empty")
		return
	}

	plan, err := h.orch.RunCommand(r.Context(), req.Input, req.ScreenState)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, planResponse{TaskID: plan.TaskID, Actions: plan.Actions})
}

// HandlePlan creates an action plan for an already-resolved intent and admits
// the resulting task.
func (h *Handlers) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Intent.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid intent: %v", err))
		return
	}

	plan, err := h.orch.PlanTask(r.Context(), req.Intent, req.ScreenState)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, planResponse{TaskID: plan.TaskID, Actions: plan.Actions})
}

// HandleVerify checks an action outcome against an expected state.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Action.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid action: %v", err))
		return
	}

	ok, err := h.orch.Verify(r.Context(), req.Action, req.ExpectedState, req.ActualScreenState)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, verifyResponse{Success: ok})
}

// HandleReplan produces an alternative action sequence after a failure,
// without touching any supervised task.
func (h *Handlers) HandleReplan(w http.ResponseWriter, r *http.Request) {
	var req replanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.OriginalIntent.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid intent: %v", err))
		return
	}
	if err := req.FailedAction.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid failed action: %v", err))
		return
	}

	failureCtx := schemas.FailureContext{
		FailedAction: req.FailedAction,
		Reason:       req.FailureReason,
		ScreenAfter:  &req.CurrentScreenState,
	}
	actions, err := h.orch.Replan(r.Context(), req.OriginalIntent, failureCtx, req.CurrentScreenState)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, replanResponse{Actions: actions})
}

// HandleGetTask returns the current snapshot of a supervised task.
func (h *Handlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	snap, err := h.orch.Task(taskID)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

// HandleResult delivers one executor result to the supervisor and returns the
// resulting transition.
func (h *Handlers) HandleResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.ActionResult.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid action result: %v", err))
		return
	}

	transition, err := h.orch.HandleResult(r.Context(), taskID, req.ActionResult, req.ScreenState)
	if err != nil {
		var exhausted *schemas.ExhaustedError
		if errors.As(err, &exhausted) {
			// Exhaustion is a task outcome the caller must see, not a server
			// failure.
			h.respondJSON(w, http.StatusOK, transition)
			return
		}
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, transition)
}

// HandleAbort aborts a supervised task.
func (h *Handlers) HandleAbort(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	transition, err := h.orch.Abort(taskID)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, abortResponse{TaskID: taskID, State: transition.To})
}

// respondMappedError maps the shared error taxonomy onto HTTP status codes.
func (h *Handlers) respondMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schemas.ErrTaskNotFound):
		h.respondError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, schemas.ErrTaskNotActive):
		h.respondError(w, http.StatusConflict, "task is not active")
	default:
		// Oracle, decode and planning failures are server-side trouble. The
		// detail is logged, not echoed, so prompt fragments stay internal.
		h.log.Error("Request failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, publicReason(err))
	}
}

// publicReason renders a caller-safe one-liner for a 500.
func publicReason(err error) string {
	var planErr *schemas.PlanningError
	if errors.As(err, &planErr) {
		return "planning failed"
	}
	var gwErr *schemas.GatewayError
	if errors.As(err, &gwErr) {
		return "reasoning oracle unavailable"
	}
	return "internal error"
}

func (h *Handlers) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, errorResponse{Error: message})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
