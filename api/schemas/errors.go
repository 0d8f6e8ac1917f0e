// File: api/schemas/errors.go
// Description: The error taxonomy shared across component boundaries. Decode
// and gateway failures are absorbed close to where they happen; only
// PlanningError and ExhaustedError terminate a task.
package schemas

import (
	"errors"
	"fmt"
)

// DecodeReason classifies why an oracle response could not be decoded.
type DecodeReason string

const (
	DecodeNoJSONFound    DecodeReason = "NO_JSON_FOUND"
	DecodeMalformedJSON  DecodeReason = "MALFORMED_JSON"
	DecodeSchemaMismatch DecodeReason = "SCHEMA_MISMATCH"
)

// DecodeError reports a failure to extract a structured payload from raw
// oracle text. It never carries a partially-filled value.
type DecodeError struct {
	Reason DecodeReason
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("decode failed: %s", e.Reason)
	}
	return fmt.Sprintf("decode failed: %s: %s", e.Reason, e.Detail)
}

// NewDecodeError builds a DecodeError with a formatted detail message.
func NewDecodeError(reason DecodeReason, format string, args ...any) *DecodeError {
	return &DecodeError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// GatewayErrorKind classifies oracle transport failures.
type GatewayErrorKind string

const (
	GatewayTimeout   GatewayErrorKind = "TIMEOUT"
	GatewayTransport GatewayErrorKind = "TRANSPORT_ERROR"
	GatewayAuth      GatewayErrorKind = "AUTH_ERROR"
)

// GatewayError wraps a failure of the reasoning oracle gateway. Callers treat
// any GatewayError identically to a decode failure for replanning purposes.
type GatewayError struct {
	Kind GatewayErrorKind
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("oracle gateway: %s", e.Kind)
	}
	return fmt.Sprintf("oracle gateway: %s: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PlanningError reports that planning produced zero usable actions. It is
// non-retryable at the planner layer and surfaced to the caller.
type PlanningError struct {
	Detail string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("planning failed: %s", e.Detail)
	}
	return fmt.Sprintf("planning failed: %s: %v", e.Detail, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// ExhaustedError reports that a task consumed its replan budget. It carries
// the full failure history for diagnosis and is surfaced as a task failure,
// never a crash.
type ExhaustedError struct {
	TaskID  string
	History []FailureRecord
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("task %s: replan budget exhausted after %d failures", e.TaskID, len(e.History))
}

// ErrResolutionDegraded signals that intent resolution fell back to the
// unknown intent. The returned Intent is still usable; callers decide whether
// to abort or proceed with clarification.
var ErrResolutionDegraded = errors.New("intent resolution degraded to fallback")

// ErrTaskNotFound is returned for lookups of unknown or evicted task IDs.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskNotActive is returned when a result is delivered to a task already
// in a terminal state. The result is discarded, never applied.
var ErrTaskNotActive = errors.New("task is not active")
