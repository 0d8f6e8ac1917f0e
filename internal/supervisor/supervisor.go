// File: internal/supervisor/supervisor.go
// Description: The replanning supervisor drives each task through its
// lifecycle as action results arrive from the device-side executor. One
// supervisor instance serves many tasks concurrently; each task carries its
// own mutex, and every result is applied with a compare-and-swap on
// (task, action index) so duplicate or out-of-order deliveries can never
// double-advance a plan. Failed actions trigger replanning through the
// planner until the replan budget runs out, at which point the task is
// exhausted with its full failure history attached.
package supervisor

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// ActionPlanner produces action sequences; a non-nil failure context requests
// an alternative route around the failed action.
type ActionPlanner interface {
	Plan(ctx context.Context, intent schemas.Intent, screen schemas.ScreenState, failureCtx *schemas.FailureContext) ([]schemas.Action, error)
}

// OutcomeVerifier checks whether the screen after an action matches its
// expected outcome.
type OutcomeVerifier interface {
	Verify(ctx context.Context, action schemas.Action, expectedOutcome string, screenAfter schemas.ScreenState) (bool, error)
}

// Transition describes the outcome of applying one event to a task.
type Transition struct {
	TaskID      string    `json:"task_id"`
	From        TaskState `json:"from"`
	To          TaskState `json:"to"`
	ActionIndex int       `json:"action_index"`
	// NextAction is the action the executor should perform next, present
	// whenever the task remains executable.
	NextAction *schemas.Action `json:"next_action,omitempty"`
	// Plan is the superseding plan, present only on a replan transition.
	Plan *schemas.Plan `json:"plan,omitempty"`
	// Noop marks a discarded duplicate or out-of-order delivery.
	Noop bool `json:"noop,omitempty"`
}

// Supervisor owns the task registry and applies the task state machine.
type Supervisor struct {
	planner  ActionPlanner
	verifier OutcomeVerifier
	cfg      config.SupervisorConfig
	registry *lru.Cache[string, *task]
	logger   *zap.Logger
}

// NewSupervisor creates a Supervisor with a bounded LRU task registry.
// Evicted tasks simply become not-found; an executor still driving one gets
// ErrTaskNotFound rather than a stale record.
func NewSupervisor(p ActionPlanner, v OutcomeVerifier, cfg config.SupervisorConfig, logger *zap.Logger) (*Supervisor, error) {
	log := logger.Named("supervisor")
	registry, err := lru.NewWithEvict(cfg.RegistryCapacity, func(id string, t *task) {
		log.Warn("Evicting task from registry", zap.String("task_id", id))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task registry: %w", err)
	}
	return &Supervisor{
		planner:  p,
		verifier: v,
		cfg:      cfg,
		registry: registry,
		logger:   log,
	}, nil
}

// Admit registers a freshly planned task and moves it straight to
// Executing(0). The plan must carry at least one action.
func (s *Supervisor) Admit(plan schemas.Plan) (Transition, error) {
	if plan.TaskID == "" {
		return Transition{}, fmt.Errorf("plan is missing a task ID")
	}
	if len(plan.Actions) == 0 {
		return Transition{}, fmt.Errorf("plan %s carries no actions", plan.TaskID)
	}

	now := time.Now().UTC()
	t := &task{
		ID:        plan.TaskID,
		State:     StateExecuting,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.registry.Add(plan.TaskID, t)

	s.logger.Info("Task admitted",
		zap.String("task_id", plan.TaskID),
		zap.String("intent", string(plan.Intent.Kind)),
		zap.Int("actions", len(plan.Actions)),
	)
	next := plan.Actions[0]
	return Transition{
		TaskID:     plan.TaskID,
		From:       StatePlanned,
		To:         StateExecuting,
		NextAction: &next,
	}, nil
}

// Task returns a snapshot of the task's observable state.
func (s *Supervisor) Task(taskID string) (Snapshot, error) {
	t, ok := s.registry.Get(taskID)
	if !ok {
		return Snapshot{}, schemas.ErrTaskNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(), nil
}

// Abort moves the task to Aborted from any non-terminal state. Results and
// late oracle replies arriving afterwards are discarded.
func (s *Supervisor) Abort(taskID string) (Transition, error) {
	t, ok := s.registry.Get(taskID)
	if !ok {
		return Transition{}, schemas.ErrTaskNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State.Terminal() {
		return Transition{TaskID: taskID, From: t.State, To: t.State, Noop: true},
			schemas.ErrTaskNotActive
	}

	from := t.State
	t.State = StateAborted
	t.epoch++
	t.UpdatedAt = time.Now().UTC()

	s.logger.Info("Task aborted",
		zap.String("task_id", taskID),
		zap.String("from", string(from)),
	)
	return Transition{TaskID: taskID, From: from, To: StateAborted, ActionIndex: t.CurrentIndex}, nil
}

// HandleResult applies one executor-reported ActionResult to its task.
// currentScreen, when present, overrides the result's own screen snapshot as
// replanning context. Returns ErrTaskNotFound for unknown tasks,
// ErrTaskNotActive for terminal ones, an ExhaustedError when the failure
// consumed the last replan attempt, and a Noop transition for duplicate or
// out-of-order deliveries.
func (s *Supervisor) HandleResult(ctx context.Context, taskID string, result schemas.ActionResult, currentScreen *schemas.ScreenState) (Transition, error) {
	if err := result.Validate(); err != nil {
		return Transition{}, fmt.Errorf("invalid action result: %w", err)
	}

	t, ok := s.registry.Get(taskID)
	if !ok {
		return Transition{}, schemas.ErrTaskNotFound
	}

	t.mu.Lock()

	if t.State.Terminal() {
		state := t.State
		t.mu.Unlock()
		s.logger.Warn("Discarding result for terminal task",
			zap.String("task_id", taskID),
			zap.String("state", string(state)),
		)
		return Transition{TaskID: taskID, From: state, To: state, Noop: true},
			schemas.ErrTaskNotActive
	}

	// Compare-and-swap on the action index: the result must describe the
	// action currently awaited. Anything else is a duplicate or out-of-order
	// delivery and must not move the task.
	if t.State != StateExecuting || result.ActionIndex != t.CurrentIndex {
		tr := Transition{
			TaskID:      taskID,
			From:        t.State,
			To:          t.State,
			ActionIndex: t.CurrentIndex,
			Noop:        true,
		}
		t.mu.Unlock()
		s.logger.Warn("Discarding duplicate or out-of-order result",
			zap.String("task_id", taskID),
			zap.Int("result_index", result.ActionIndex),
			zap.Int("current_index", tr.ActionIndex),
		)
		return tr, nil
	}

	action := t.Plan.Actions[t.CurrentIndex]
	screen := planningScreen(result, currentScreen)

	if result.Status == schemas.StatusSuccess {
		passed, stale := s.verifyOutcome(ctx, t, action, screen)
		if stale {
			state := t.State
			t.mu.Unlock()
			return Transition{TaskID: taskID, From: state, To: state, Noop: true},
				schemas.ErrTaskNotActive
		}
		if !passed {
			return s.replanLocked(ctx, t, action, "verification failed: screen does not match expected outcome", screen)
		}
		return s.advanceLocked(t)
	}

	s.logger.Info("Action failed",
		zap.String("task_id", taskID),
		zap.Int("action_index", result.ActionIndex),
		zap.String("status", string(result.Status)),
		zap.String("reason", result.FailureReason()),
	)
	return s.replanLocked(ctx, t, action, result.FailureReason(), screen)
}

// verifyOutcome runs the optional post-success verification. It temporarily
// releases the task lock for the oracle round-trip; passed=false means the
// success must be treated as a failure, stale=true means the task moved
// (aborted or superseded) while the oracle was thinking and the result must
// be discarded. Caller holds t.mu; it is held again on return.
func (s *Supervisor) verifyOutcome(ctx context.Context, t *task, action schemas.Action, screen schemas.ScreenState) (passed, stale bool) {
	if !s.cfg.VerifyOnSuccess || s.verifier == nil {
		return true, false
	}

	epoch := t.epoch
	index := t.CurrentIndex
	t.mu.Unlock()

	expected := expectedOutcome(action)
	ok, err := s.verifier.Verify(ctx, action, expected, screen)

	t.mu.Lock()
	if t.State != StateExecuting || t.CurrentIndex != index || t.epoch != epoch {
		return false, true
	}
	if err != nil {
		s.logger.Warn("Verification errored, failing closed",
			zap.String("task_id", t.ID), zap.Error(err))
	}
	return ok, false
}

// advanceLocked moves the task past a successful action. Caller holds t.mu,
// which is released before returning.
func (s *Supervisor) advanceLocked(t *task) (Transition, error) {
	from := t.State
	index := t.CurrentIndex
	t.CurrentIndex++
	t.UpdatedAt = time.Now().UTC()

	if t.CurrentIndex >= len(t.Plan.Actions) {
		t.State = StateCompleted
		tr := Transition{TaskID: t.ID, From: from, To: StateCompleted, ActionIndex: index}
		t.mu.Unlock()
		s.logger.Info("Task completed",
			zap.String("task_id", tr.TaskID),
			zap.Int("actions", index+1),
		)
		return tr, nil
	}

	next := t.Plan.Actions[t.CurrentIndex]
	tr := Transition{
		TaskID:      t.ID,
		From:        from,
		To:          StateExecuting,
		ActionIndex: index,
		NextAction:  &next,
	}
	t.mu.Unlock()
	s.logger.Debug("Task advanced",
		zap.String("task_id", tr.TaskID),
		zap.Int("next_index", index+1),
	)
	return tr, nil
}

// replanLocked handles a failed action: record the failure, consume a replan
// attempt and ask the planner for an alternative route. The oracle round-trip
// happens outside the task lock; an epoch check on re-acquisition discards
// the new plan if the task was aborted meanwhile. Planner failures (including
// gateway timeouts) consume attempts exactly like executor failures, so the
// loop always terminates. Caller holds t.mu, which is released before
// returning.
func (s *Supervisor) replanLocked(ctx context.Context, t *task, failedAction schemas.Action, reason string, screen schemas.ScreenState) (Transition, error) {
	failedIndex := t.CurrentIndex
	t.recordFailureLocked(failedIndex, failedAction, reason)
	t.State = StateFailed
	t.UpdatedAt = time.Now().UTC()
	intent := t.Plan.Intent

	failureCtx := &schemas.FailureContext{
		FailedAction: failedAction,
		Reason:       reason,
		ScreenAfter:  &screen,
	}

	for {
		t.ReplansUsed++
		if t.ReplansUsed >= s.cfg.MaxReplans {
			t.State = StateExhausted
			t.UpdatedAt = time.Now().UTC()
			history := append([]schemas.FailureRecord(nil), t.History...)
			tr := Transition{TaskID: t.ID, From: StateFailed, To: StateExhausted, ActionIndex: failedIndex}
			t.mu.Unlock()
			s.logger.Error("Task exhausted its replan budget",
				zap.String("task_id", tr.TaskID),
				zap.Int("failures", len(history)),
			)
			return tr, &schemas.ExhaustedError{TaskID: tr.TaskID, History: history}
		}

		epoch := t.epoch
		t.mu.Unlock()

		actions, err := s.planner.Plan(ctx, intent, screen, failureCtx)

		t.mu.Lock()
		if t.State != StateFailed || t.epoch != epoch {
			// Aborted while the oracle was thinking. Drop the result.
			state := t.State
			t.mu.Unlock()
			s.logger.Info("Discarding replan for task that moved on",
				zap.String("task_id", t.ID),
				zap.String("state", string(state)),
			)
			return Transition{TaskID: t.ID, From: StateFailed, To: state, Noop: true},
				schemas.ErrTaskNotActive
		}

		if err != nil {
			s.logger.Warn("Replanning attempt failed",
				zap.String("task_id", t.ID),
				zap.Int("replans_used", t.ReplansUsed),
				zap.Error(err),
			)
			t.recordFailureLocked(failedIndex, failedAction, fmt.Sprintf("replanning failed: %v", err))
			continue
		}

		prior := t.Plan
		t.PriorPlans = append(t.PriorPlans, prior)
		t.Plan = schemas.Plan{
			TaskID:    t.ID,
			Intent:    intent,
			Actions:   actions,
			CreatedAt: time.Now().UTC(),
		}
		t.CurrentIndex = 0
		t.State = StateExecuting
		t.UpdatedAt = time.Now().UTC()

		newPlan := t.Plan
		replansUsed := t.ReplansUsed
		next := newPlan.Actions[0]
		tr := Transition{
			TaskID:      t.ID,
			From:        StateFailed,
			To:          StateReplanned,
			ActionIndex: failedIndex,
			Plan:        &newPlan,
			NextAction:  &next,
		}
		t.mu.Unlock()
		s.logger.Info("Task replanned",
			zap.String("task_id", tr.TaskID),
			zap.Int("replans_used", replansUsed),
			zap.Int("actions", len(actions)),
		)
		return tr, nil
	}
}

// planningScreen picks the freshest screen snapshot available for replanning.
func planningScreen(result schemas.ActionResult, currentScreen *schemas.ScreenState) schemas.ScreenState {
	if currentScreen != nil {
		return *currentScreen
	}
	if result.ScreenAfter != nil {
		return *result.ScreenAfter
	}
	return schemas.ScreenState{}
}

// expectedOutcome renders the one-line expectation the verifier prompt uses.
func expectedOutcome(action schemas.Action) string {
	switch action.Kind {
	case schemas.ActionOpenApp:
		return fmt.Sprintf("the app %q is open and in the foreground", action.Value)
	case schemas.ActionClick:
		return fmt.Sprintf("the element %q was clicked and the screen responded", action.Target)
	case schemas.ActionSetText:
		return fmt.Sprintf("the text %q appears in the focused input field", action.Value)
	case schemas.ActionFindText:
		return fmt.Sprintf("the text %q is visible on screen", action.Target)
	case schemas.ActionScroll:
		return fmt.Sprintf("the screen scrolled %s and new content is visible", action.Value)
	case schemas.ActionBack:
		return "the previous screen is showing"
	case schemas.ActionHome:
		return "the home screen is showing"
	default:
		return "the action completed and the screen reflects it"
	}
}
