// File: internal/server/types.go
// Description: Request and response bodies for the REST surface. These mirror
// the JSON contract the device-side executor speaks; internal types are never
// exposed directly except the shared schemas.
package server

import (
	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/supervisor"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type intentRequest struct {
	Input string `json:"input"`
}

type commandRequest struct {
	Input       string              `json:"input"`
	ScreenState schemas.ScreenState `json:"screen_state"`
}

type planRequest struct {
	Intent      schemas.Intent      `json:"intent"`
	ScreenState schemas.ScreenState `json:"screen_state"`
}

type planResponse struct {
	TaskID  string           `json:"task_id"`
	Actions []schemas.Action `json:"actions"`
}

type verifyRequest struct {
	Action            schemas.Action      `json:"action"`
	ExpectedState     string              `json:"expected_state"`
	ActualScreenState schemas.ScreenState `json:"actual_screen_state"`
}

type verifyResponse struct {
	Success bool `json:"success"`
}

type replanRequest struct {
	OriginalIntent     schemas.Intent      `json:"original_intent"`
	FailedAction       schemas.Action      `json:"failed_action"`
	FailureReason      string              `json:"failure_reason"`
	CurrentScreenState schemas.ScreenState `json:"current_screen_state"`
}

type replanResponse struct {
	Actions []schemas.Action `json:"actions"`
}

type resultRequest struct {
	ActionResult schemas.ActionResult `json:"action_result"`
	ScreenState  *schemas.ScreenState `json:"screen_state,omitempty"`
}

type abortResponse struct {
	TaskID string               `json:"task_id"`
	State  supervisor.TaskState `json:"state"`
}
