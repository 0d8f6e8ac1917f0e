// File: internal/intent/resolver_test.go
package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// stubGateway returns canned responses, recording the prompt it saw.
type stubGateway struct {
	response string
	err      error
	prompt   string
	calls    int
}

func (s *stubGateway) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.calls++
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestResolveWellFormedResponse(t *testing.T) {
	gw := &stubGateway{response: `Here you go:
{"intent": "send_message", "target_app": "Messages", "confidence": 0.92,
 "entities": {"recipient": "Mom", "message": "I'll be late", "search_query": null}}`}
	r := NewResolver(gw, zaptest.NewLogger(t))

	got, err := r.Resolve(context.Background(), "text Mom that I'll be late")
	require.NoError(t, err)

	assert.Equal(t, schemas.IntentSendMessage, got.Kind)
	assert.Equal(t, "Messages", got.TargetApp)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	assert.Equal(t, "Mom", got.Entities["recipient"])
	assert.Equal(t, "I'll be late", got.Entities["message"])
	// Null entities are dropped, not stringified.
	assert.NotContains(t, got.Entities, "search_query")

	assert.Contains(t, gw.prompt, "text Mom that I'll be late")
	assert.Contains(t, gw.prompt, "send_message")
}

func TestResolveFallsBackOnUnparseableResponse(t *testing.T) {
	gw := &stubGateway{response: "I cannot help with that."}
	r := NewResolver(gw, zaptest.NewLogger(t))

	got, err := r.Resolve(context.Background(), "do something impossible")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrResolutionDegraded)

	var derr *schemas.DecodeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, schemas.DecodeNoJSONFound, derr.Reason)

	// The fallback intent is still usable.
	assert.Equal(t, schemas.IntentUnknown, got.Kind)
	assert.Zero(t, got.Confidence)
}

func TestResolveFallsBackOnGatewayError(t *testing.T) {
	gwErr := &schemas.GatewayError{Kind: schemas.GatewayTimeout, Err: context.DeadlineExceeded}
	gw := &stubGateway{err: gwErr}
	r := NewResolver(gw, zaptest.NewLogger(t))

	got, err := r.Resolve(context.Background(), "open camera")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrResolutionDegraded)

	var unwrapped *schemas.GatewayError
	assert.True(t, errors.As(err, &unwrapped))
	assert.Equal(t, schemas.IntentUnknown, got.Kind)
	// No retries at this layer.
	assert.Equal(t, 1, gw.calls)
}

func TestResolveRejectsOutOfVocabularyKind(t *testing.T) {
	gw := &stubGateway{response: `{"intent": "levitate_phone", "confidence": 0.99, "entities": {}}`}
	r := NewResolver(gw, zaptest.NewLogger(t))

	got, err := r.Resolve(context.Background(), "make my phone float")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrResolutionDegraded)
	assert.Equal(t, schemas.IntentUnknown, got.Kind)
}

func TestResolveClampsConfidence(t *testing.T) {
	gw := &stubGateway{response: `{"intent": "open_app", "confidence": 3.5, "entities": {"app_name": "Camera"}}`}
	r := NewResolver(gw, zaptest.NewLogger(t))

	got, err := r.Resolve(context.Background(), "open the camera")
	require.NoError(t, err)
	assert.Equal(t, schemas.IntentOpenApp, got.Kind)
	assert.Equal(t, 1.0, got.Confidence)
}
