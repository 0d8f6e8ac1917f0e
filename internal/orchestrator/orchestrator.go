// File: internal/orchestrator/orchestrator.go
// Description: Composition façade over the resolver, planner, verifier and
// supervisor. The HTTP surface talks only to the Orchestrator; nothing below
// it leaks upward except the shared error taxonomy.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/supervisor"
)

// IntentResolver turns an utterance into a structured Intent.
type IntentResolver interface {
	Resolve(ctx context.Context, utterance string) (schemas.Intent, error)
}

// Orchestrator wires one utterance from resolution through supervised
// execution.
type Orchestrator struct {
	resolver IntentResolver
	planner  supervisor.ActionPlanner
	verifier supervisor.OutcomeVerifier
	super    *supervisor.Supervisor
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(resolver IntentResolver, planner supervisor.ActionPlanner, verifier supervisor.OutcomeVerifier, super *supervisor.Supervisor, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		planner:  planner,
		verifier: verifier,
		super:    super,
		logger:   logger.Named("orchestrator"),
	}
}

// ResolveIntent exposes bare intent resolution for the REST surface. Degraded
// resolution still returns the usable fallback intent with a nil error; the
// caller sees kind "unknown" and confidence 0 rather than a failure.
func (o *Orchestrator) ResolveIntent(ctx context.Context, utterance string) (schemas.Intent, error) {
	intent, err := o.resolver.Resolve(ctx, utterance)
	if err != nil && !errors.Is(err, schemas.ErrResolutionDegraded) {
		return schemas.Intent{}, err
	}
	if err != nil {
		o.logger.Warn("Intent resolution degraded, returning fallback",
			zap.String("utterance", utterance), zap.Error(err))
	}
	return intent, nil
}

// RunCommand is the full front door: resolve the utterance, plan against the
// initial screen, mint a task and admit it to the supervisor. A degraded
// resolution does not fail the command; planning proceeds with the fallback
// intent so the caller can still inspect what the system understood.
func (o *Orchestrator) RunCommand(ctx context.Context, utterance string, initialScreen schemas.ScreenState) (*schemas.Plan, error) {
	intent, err := o.ResolveIntent(ctx, utterance)
	if err != nil {
		return nil, err
	}
	return o.PlanTask(ctx, intent, initialScreen)
}

// PlanTask plans for an already-resolved intent, mints a task ID and admits
// the task. This is the /api/plan entry point.
func (o *Orchestrator) PlanTask(ctx context.Context, intent schemas.Intent, screen schemas.ScreenState) (*schemas.Plan, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	actions, err := o.planner.Plan(ctx, intent, screen, nil)
	if err != nil {
		return nil, err
	}

	plan := schemas.Plan{
		TaskID:    uuid.New().String(),
		Intent:    intent,
		Actions:   actions,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := o.super.Admit(plan); err != nil {
		return nil, err
	}

	o.logger.Info("Task planned and admitted",
		zap.String("task_id", plan.TaskID),
		zap.String("intent", string(intent.Kind)),
		zap.Int("actions", len(actions)),
	)
	return &plan, nil
}

// Replan is the single-shot REST replanning path: it produces an alternative
// action sequence without touching any supervised task.
func (o *Orchestrator) Replan(ctx context.Context, intent schemas.Intent, failureCtx schemas.FailureContext, screen schemas.ScreenState) ([]schemas.Action, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return o.planner.Plan(ctx, intent, screen, &failureCtx)
}

// Verify checks an action outcome against an expected state description.
func (o *Orchestrator) Verify(ctx context.Context, action schemas.Action, expectedOutcome string, screenAfter schemas.ScreenState) (bool, error) {
	if err := action.Validate(); err != nil {
		return false, err
	}
	ok, err := o.verifier.Verify(ctx, action, expectedOutcome, screenAfter)
	if err != nil {
		// Fail closed: verification trouble is a negative verdict, not a
		// server error.
		o.logger.Warn("Verification failed closed", zap.Error(err))
		return false, nil
	}
	return ok, nil
}

// HandleResult forwards an executor result to the supervisor.
func (o *Orchestrator) HandleResult(ctx context.Context, taskID string, result schemas.ActionResult, currentScreen *schemas.ScreenState) (supervisor.Transition, error) {
	return o.super.HandleResult(ctx, taskID, result, currentScreen)
}

// Abort aborts a supervised task.
func (o *Orchestrator) Abort(taskID string) (supervisor.Transition, error) {
	return o.super.Abort(taskID)
}

// Task returns a snapshot of a supervised task.
func (o *Orchestrator) Task(taskID string) (supervisor.Snapshot, error) {
	return o.super.Task(taskID)
}
