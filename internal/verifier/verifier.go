// File: internal/verifier/verifier.go
// Description: Post-action outcome checks. The verifier asks the oracle a
// yes/no question about whether the screen after an action matches the
// expected outcome, and fails closed: any failure to obtain a clear
// affirmative answer verifies as false, never as an error the control loop
// has to handle.
package verifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// maxTokens is deliberately tiny; the only acceptable answers are one word.
const maxTokens = 10

// Verifier checks action outcomes against expectations.
type Verifier struct {
	gateway schemas.Gateway
	logger  *zap.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(gateway schemas.Gateway, logger *zap.Logger) *Verifier {
	return &Verifier{
		gateway: gateway,
		logger:  logger.Named("verifier"),
	}
}

// Verify returns true only when the oracle clearly affirms that screenAfter
// matches the expected outcome of the action. Gateway failures, empty replies
// and ambiguous replies all verify as false; the error return carries the
// cause for logging but callers must not treat it as distinct from a negative
// verdict.
func (v *Verifier) Verify(ctx context.Context, action schemas.Action, expectedOutcome string, screenAfter schemas.ScreenState) (bool, error) {
	raw, err := v.gateway.Complete(ctx, buildPrompt(action, expectedOutcome, screenAfter), maxTokens)
	if err != nil {
		v.logger.Warn("Oracle call failed during verification, failing closed",
			zap.Error(err))
		return false, err
	}

	verdict := affirmative(raw)
	v.logger.Debug("Verification verdict",
		zap.String("action", string(action.Kind)),
		zap.Bool("success", verdict),
	)
	return verdict, nil
}

func buildPrompt(action schemas.Action, expectedOutcome string, screenAfter schemas.ScreenState) string {
	var sb strings.Builder
	sb.WriteString("You are verifying the outcome of a mobile UI automation action.\n\n")

	fmt.Fprintf(&sb, "Action performed: %s", action.Kind)
	if action.Target != "" {
		fmt.Fprintf(&sb, " (target: %q)", action.Target)
	}
	if action.Value != "" {
		fmt.Fprintf(&sb, " (value: %q)", action.Value)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Expected outcome: %s\n\n", expectedOutcome)

	fmt.Fprintf(&sb, "Screen after the action:\n  App: %s\n", screenAfter.CurrentApp)
	if len(screenAfter.VisibleTexts) > 0 {
		fmt.Fprintf(&sb, "  Visible texts: %s\n", strings.Join(screenAfter.VisibleTexts, ", "))
	}
	sb.WriteString("\nDid the action achieve the expected outcome? Answer with exactly one word: YES or NO.")
	return sb.String()
}

// affirmative accepts only a response containing YES; anything else, including
// an empty or hedged reply, is a negative verdict.
func affirmative(raw string) bool {
	return strings.Contains(strings.ToUpper(raw), "YES")
}
