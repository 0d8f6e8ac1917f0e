// File: internal/planner/planner.go
// Description: Translates a resolved Intent plus the current screen snapshot
// into an ordered action sequence by prompting the reasoning oracle. The
// planner is stateless per call; replanning is the same call with a
// FailureContext attached. Oracle output is filtered against the closed
// action vocabulary and truncated to the configured cap, so downstream
// components only ever see valid, bounded plans.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/decode"
)

// maxTokens leaves room for a full-length plan at the action cap.
const maxTokens = 2048

// Planner produces action sequences for intents.
type Planner struct {
	gateway    schemas.Gateway
	maxActions int
	logger     *zap.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(gateway schemas.Gateway, cfg config.PlannerConfig, logger *zap.Logger) *Planner {
	return &Planner{
		gateway:    gateway,
		maxActions: cfg.MaxActionsPerPlan,
		logger:     logger.Named("planner"),
	}
}

// actionWire is the oracle-facing shape of a single action.
type actionWire struct {
	Action    string `json:"action"`
	Target    string `json:"target"`
	Value     string `json:"value"`
	ClassName string `json:"className"`
	Index     *int   `json:"index"`
}

// Plan asks the oracle for an action sequence satisfying the intent given the
// current screen. A non-nil failureCtx switches the prompt into replanning
// mode: the oracle sees the failed action and is told to find another route.
// Returns PlanningError when no usable actions could be produced; gateway
// failures are wrapped into PlanningError because the caller treats both the
// same way.
func (p *Planner) Plan(ctx context.Context, intent schemas.Intent, screen schemas.ScreenState, failureCtx *schemas.FailureContext) ([]schemas.Action, error) {
	raw, err := p.gateway.Complete(ctx, p.buildPrompt(intent, screen, failureCtx), maxTokens)
	if err != nil {
		return nil, &schemas.PlanningError{Detail: "oracle call failed", Err: err}
	}

	wires, err := decode.Array[actionWire](raw)
	if err != nil {
		return nil, &schemas.PlanningError{Detail: "could not decode action sequence", Err: err}
	}

	actions := make([]schemas.Action, 0, len(wires))
	for _, w := range wires {
		kind, err := schemas.ParseActionKind(w.Action)
		if err != nil {
			p.logger.Warn("Dropping action with unrecognized kind",
				zap.String("kind", w.Action))
			continue
		}
		actions = append(actions, schemas.Action{
			Kind:      kind,
			Target:    w.Target,
			Value:     w.Value,
			ClassName: w.ClassName,
			Index:     w.Index,
		})
	}

	if len(actions) == 0 {
		return nil, &schemas.PlanningError{
			Detail: fmt.Sprintf("oracle produced no usable actions for intent %q", intent.Kind),
		}
	}

	if len(actions) > p.maxActions {
		p.logger.Warn("Truncating oversized plan",
			zap.Int("produced", len(actions)),
			zap.Int("cap", p.maxActions))
		actions = actions[:p.maxActions]
	}

	p.logger.Info("Plan produced",
		zap.String("intent", string(intent.Kind)),
		zap.Int("actions", len(actions)),
		zap.Bool("replan", failureCtx != nil),
	)
	return actions, nil
}

func (p *Planner) buildPrompt(intent schemas.Intent, screen schemas.ScreenState, failureCtx *schemas.FailureContext) string {
	var sb strings.Builder

	if failureCtx != nil {
		sb.WriteString("You are a mobile UI automation agent. Your previous action failed and you must find an alternative route.\n\n")
		fmt.Fprintf(&sb, "Failed action: %s", failureCtx.FailedAction.Kind)
		if failureCtx.FailedAction.Target != "" {
			fmt.Fprintf(&sb, " (target: %q)", failureCtx.FailedAction.Target)
		}
		if failureCtx.FailedAction.Value != "" {
			fmt.Fprintf(&sb, " (value: %q)", failureCtx.FailedAction.Value)
		}
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Failure reason: %s\n\n", failureCtx.Reason)
		if failureCtx.ScreenAfter != nil {
			writeScreen(&sb, "Screen after the failure", *failureCtx.ScreenAfter)
		}
	} else {
		sb.WriteString("You are a mobile UI automation agent. Create a step-by-step action plan for this task.\n\n")
	}

	fmt.Fprintf(&sb, "Task intent: %s\n", intent.Kind)
	if intent.TargetApp != "" {
		fmt.Fprintf(&sb, "Target app: %s\n", intent.TargetApp)
	}
	if len(intent.Entities) > 0 {
		sb.WriteString("Details:\n")
		for k, v := range intent.Entities {
			fmt.Fprintf(&sb, "  - %s: %s\n", k, v)
		}
	}
	sb.WriteString("\n")

	writeScreen(&sb, "Current screen", screen)

	sb.WriteString("Available actions:\n")
	for _, entry := range schemas.ActionCatalog {
		fmt.Fprintf(&sb, "  - %s: %s\n", entry.Kind, entry.Description)
	}
	sb.WriteString("\n")

	sb.WriteString("Respond with ONLY a valid JSON array of action objects:\n")
	sb.WriteString(`[{"action": "open_app", "target": "", "value": "com.example.app", "className": "", "index": null}]` + "\n")
	fmt.Fprintf(&sb, "Use at most %d actions. Do not include any explanation.", p.maxActions)

	return sb.String()
}

func writeScreen(sb *strings.Builder, label string, screen schemas.ScreenState) {
	fmt.Fprintf(sb, "%s:\n", label)
	fmt.Fprintf(sb, "  App: %s\n", orUnknown(screen.CurrentApp))
	if len(screen.VisibleTexts) > 0 {
		fmt.Fprintf(sb, "  Visible texts: %s\n", strings.Join(screen.VisibleTexts, ", "))
	}
	if screen.FocusedElement != "" {
		fmt.Fprintf(sb, "  Focused element: %s\n", screen.FocusedElement)
	}
	sb.WriteString("\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
