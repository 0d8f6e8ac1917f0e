// File: internal/intent/resolver.go
// Description: Turns one user utterance into a structured Intent by
// prompting the reasoning oracle and strictly decoding the reply. The
// resolver never retries and never fails a request outright: when the oracle
// output is unusable it returns the fallback unknown intent together with
// ErrResolutionDegraded so the orchestrator can decide what to do.
package intent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/decode"
)

// maxTokens is sized for a single intent object; the vocabulary and entity
// keys fit comfortably.
const maxTokens = 512

// Resolver resolves utterances into Intents.
type Resolver struct {
	gateway schemas.Gateway
	logger  *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(gateway schemas.Gateway, logger *zap.Logger) *Resolver {
	return &Resolver{
		gateway: gateway,
		logger:  logger.Named("intent_resolver"),
	}
}

// intentWire is the oracle-facing shape of an intent. Entities arrive as a
// loosely-typed map because the oracle routinely emits nulls for fields it
// considers inapplicable.
type intentWire struct {
	Intent     string         `json:"intent"`
	TargetApp  string         `json:"target_app"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
}

// Resolve parses the utterance into an Intent. On decode or gateway failure
// the returned Intent is the usable fallback and the error wraps
// schemas.ErrResolutionDegraded together with the cause.
func (r *Resolver) Resolve(ctx context.Context, utterance string) (schemas.Intent, error) {
	raw, err := r.gateway.Complete(ctx, buildPrompt(utterance), maxTokens)
	if err != nil {
		r.logger.Warn("Oracle call failed during intent resolution, falling back",
			zap.Error(err))
		return schemas.FallbackIntent(), fmt.Errorf("%w: %w", schemas.ErrResolutionDegraded, err)
	}

	wire, err := decode.Object[intentWire](raw)
	if err != nil {
		r.logger.Warn("Failed to decode intent from oracle response, falling back",
			zap.Error(err))
		return schemas.FallbackIntent(), fmt.Errorf("%w: %w", schemas.ErrResolutionDegraded, err)
	}

	kind, err := schemas.ParseIntentKind(wire.Intent)
	if err != nil {
		r.logger.Warn("Oracle produced an out-of-vocabulary intent kind, falling back",
			zap.String("kind", wire.Intent))
		derr := schemas.NewDecodeError(schemas.DecodeSchemaMismatch, "%v", err)
		return schemas.FallbackIntent(), fmt.Errorf("%w: %w", schemas.ErrResolutionDegraded, derr)
	}

	resolved := schemas.Intent{
		Kind:       kind,
		TargetApp:  wire.TargetApp,
		Confidence: clamp01(wire.Confidence),
		Entities:   coerceEntities(wire.Entities),
	}

	r.logger.Info("Resolved intent",
		zap.String("kind", string(resolved.Kind)),
		zap.String("target_app", resolved.TargetApp),
		zap.Float64("confidence", resolved.Confidence),
	)
	return resolved, nil
}

func buildPrompt(utterance string) string {
	var sb strings.Builder
	sb.WriteString("You are a mobile UI automation agent. Parse this user command into a structured intent.\n\n")
	fmt.Fprintf(&sb, "User command: %q\n\n", utterance)
	sb.WriteString("Respond with ONLY valid JSON in this format:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "intent": "one of: send_message, open_app, search, find_file, play_media, enable_feature, disable_feature, navigate_to, read_notification, make_call",` + "\n")
	sb.WriteString(`  "target_app": "app name if applicable, or null",` + "\n")
	sb.WriteString(`  "confidence": 0.0-1.0,` + "\n")
	sb.WriteString(`  "entities": {` + "\n")
	sb.WriteString(`    "recipient": "contact name if applicable",` + "\n")
	sb.WriteString(`    "message": "message text if applicable",` + "\n")
	sb.WriteString(`    "search_query": "search term if applicable",` + "\n")
	sb.WriteString(`    "app_name": "target app if applicable"` + "\n")
	sb.WriteString("  }\n}")
	return sb.String()
}

// coerceEntities keeps only string-valued entities; nulls and nested values
// from a sloppy oracle are dropped rather than stringified.
func coerceEntities(raw map[string]any) map[string]string {
	entities := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			entities[k] = s
		}
	}
	return entities
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
