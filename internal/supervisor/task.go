// File: internal/supervisor/task.go
// Description: The per-task record tracked by the supervisor, its state
// vocabulary and the read-only snapshot exposed to the HTTP surface.
package supervisor

import (
	"sync"
	"time"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// TaskState is the lifecycle state of a supervised task.
type TaskState string

const (
	StatePlanned   TaskState = "PLANNED"
	StateExecuting TaskState = "EXECUTING"
	StateFailed    TaskState = "FAILED"
	StateReplanned TaskState = "REPLANNED"
	StateCompleted TaskState = "COMPLETED"
	StateExhausted TaskState = "EXHAUSTED"
	StateAborted   TaskState = "ABORTED"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateExhausted, StateAborted:
		return true
	default:
		return false
	}
}

// task is the supervisor's mutable record for one admitted plan. All fields
// after ID are guarded by mu. epoch is bumped whenever the task leaves the
// Failed state by any route other than a completed replan, so an in-flight
// replanning call can detect it raced an abort and discard its result.
type task struct {
	mu sync.Mutex

	ID           string
	State        TaskState
	Plan         schemas.Plan
	PriorPlans   []schemas.Plan
	CurrentIndex int
	ReplansUsed  int
	History      []schemas.FailureRecord

	epoch     uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is an immutable copy of a task's observable state.
type Snapshot struct {
	ID           string                  `json:"task_id"`
	State        TaskState               `json:"state"`
	CurrentIndex int                     `json:"current_index"`
	Plan         schemas.Plan            `json:"plan"`
	PriorPlans   []schemas.Plan          `json:"prior_plans,omitempty"`
	ReplansUsed  int                     `json:"replans_used"`
	History      []schemas.FailureRecord `json:"failure_history,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// snapshotLocked copies the task state. Caller holds t.mu.
func (t *task) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:           t.ID,
		State:        t.State,
		CurrentIndex: t.CurrentIndex,
		Plan:         t.Plan,
		ReplansUsed:  t.ReplansUsed,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if len(t.PriorPlans) > 0 {
		snap.PriorPlans = append([]schemas.Plan(nil), t.PriorPlans...)
	}
	if len(t.History) > 0 {
		snap.History = append([]schemas.FailureRecord(nil), t.History...)
	}
	return snap
}

// recordFailureLocked appends to the task's append-only failure history.
// Caller holds t.mu.
func (t *task) recordFailureLocked(actionIndex int, action schemas.Action, reason string) {
	t.History = append(t.History, schemas.FailureRecord{
		ActionIndex: actionIndex,
		Action:      action,
		Reason:      reason,
		At:          time.Now().UTC(),
	})
}
