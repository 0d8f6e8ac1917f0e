// File: internal/server/handlers_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/intent"
	"github.com/xkilldash9x/droidpilot/internal/orchestrator"
	"github.com/xkilldash9x/droidpilot/internal/planner"
	"github.com/xkilldash9x/droidpilot/internal/supervisor"
	"github.com/xkilldash9x/droidpilot/internal/verifier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type scriptedGateway struct {
	mu        sync.Mutex
	responses []string
	err       error
}

func (g *scriptedGateway) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", &schemas.GatewayError{Kind: schemas.GatewayTransport}
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

const intentJSON = `{"intent": "send_message", "target_app": "Messages", "confidence": 0.9,
 "entities": {"recipient": "Mom", "message": "on my way"}}`

const actionsJSON = `[
  {"action": "open_app", "value": "com.android.messaging"},
  {"action": "click", "target": "Mom"}
]`

func newTestHandler(t *testing.T, gw schemas.Gateway) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	res := intent.NewResolver(gw, logger)
	plnr := planner.NewPlanner(gw, config.PlannerConfig{MaxActionsPerPlan: 20}, logger)
	vrf := verifier.NewVerifier(gw, logger)
	sup, err := supervisor.NewSupervisor(plnr, vrf, config.SupervisorConfig{MaxReplans: 3, RegistryCapacity: 16}, logger)
	require.NoError(t, err)
	orch := orchestrator.NewOrchestrator(res, plnr, vrf, sup, logger)

	srv := New(config.ServerConfig{ListenAddr: ":0", RequestTimeout: 5 * time.Second}, orch, logger)
	return srv.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t, &scriptedGateway{})

	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "healthy", body.Status)
	_, err := time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestIntentEndpoint(t *testing.T) {
	t.Run("resolves input", func(t *testing.T) {
		h := newTestHandler(t, &scriptedGateway{responses: []string{intentJSON}})

		rec := doJSON(t, h, http.MethodPost, "/api/intent", intentRequest{Input: "text Mom"})
		require.Equal(t, http.StatusOK, rec.Code)

		got := decodeBody[schemas.Intent](t, rec)
		assert.Equal(t, schemas.IntentSendMessage, got.Kind)
		assert.Equal(t, "Mom", got.Entities["recipient"])
	})

	t.Run("degraded resolution still returns an intent", func(t *testing.T) {
		h := newTestHandler(t, &scriptedGateway{responses: []string{"I cannot help with that."}})

		rec := doJSON(t, h, http.MethodPost, "/api/intent", intentRequest{Input: "do the impossible"})
		require.Equal(t, http.StatusOK, rec.Code)

		got := decodeBody[schemas.Intent](t, rec)
		assert.Equal(t, schemas.IntentUnknown, got.Kind)
		assert.Zero(t, got.Confidence)
	})

	t.Run("empty input is a 400", func(t *testing.T) {
		h := newTestHandler(t, &scriptedGateway{})

		rec := doJSON(t, h, http.MethodPost, "/api/intent", intentRequest{Input: "   "})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decodeBody[errorResponse](t, rec).Error)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		h := newTestHandler(t, &scriptedGateway{})

		req := httptest.NewRequest(http.MethodPost, "/api/intent", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPlanAndTaskLifecycle(t *testing.T) {
	h := newTestHandler(t, &scriptedGateway{responses: []string{actionsJSON}})

	planReq := planRequest{
		Intent: schemas.Intent{
			Kind:       schemas.IntentSendMessage,
			Confidence: 0.9,
			Entities:   map[string]string{"recipient": "Mom"},
		},
		ScreenState: schemas.ScreenState{CurrentApp: "launcher"},
	}
	rec := doJSON(t, h, http.MethodPost, "/api/plan", planReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	plan := decodeBody[planResponse](t, rec)
	require.NotEmpty(t, plan.TaskID)
	require.Len(t, plan.Actions, 2)

	// The task is queryable.
	rec = doJSON(t, h, http.MethodGet, "/api/task/"+plan.TaskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[supervisor.Snapshot](t, rec)
	assert.Equal(t, supervisor.StateExecuting, snap.State)

	// Deliver a result for the first action.
	rec = doJSON(t, h, http.MethodPost, "/api/task/"+plan.TaskID+"/result", resultRequest{
		ActionResult: schemas.ActionResult{ActionIndex: 0, Status: schemas.StatusSuccess, DurationMS: 15},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	tr := decodeBody[supervisor.Transition](t, rec)
	assert.Equal(t, supervisor.StateExecuting, tr.To)
	require.NotNil(t, tr.NextAction)
	assert.Equal(t, "Mom", tr.NextAction.Target)

	// Abort and observe the state flip.
	rec = doJSON(t, h, http.MethodPost, "/api/task/"+plan.TaskID+"/abort", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	aborted := decodeBody[abortResponse](t, rec)
	assert.Equal(t, supervisor.StateAborted, aborted.State)

	// Results after abort conflict.
	rec = doJSON(t, h, http.MethodPost, "/api/task/"+plan.TaskID+"/result", resultRequest{
		ActionResult: schemas.ActionResult{ActionIndex: 1, Status: schemas.StatusSuccess},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlanEndpointRejectsInvalidIntent(t *testing.T) {
	h := newTestHandler(t, &scriptedGateway{})

	rec := doJSON(t, h, http.MethodPost, "/api/plan", planRequest{
		Intent: schemas.Intent{Kind: "levitate", Confidence: 0.5},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanEndpointMapsPlanningFailureTo500(t *testing.T) {
	h := newTestHandler(t, &scriptedGateway{responses: []string{"no json here"}})

	rec := doJSON(t, h, http.MethodPost, "/api/plan", planRequest{
		Intent: schemas.Intent{Kind: schemas.IntentOpenApp, Confidence: 0.8},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// The caller sees a generic reason, never prompt or payload fragments.
	assert.Equal(t, "planning failed", decodeBody[errorResponse](t, rec).Error)
}

func TestUnknownTaskIs404(t *testing.T) {
	h := newTestHandler(t, &scriptedGateway{})

	rec := doJSON(t, h, http.MethodGet, "/api/task/no-such-task", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", decodeBody[errorResponse](t, rec).Error)

	rec = doJSON(t, h, http.MethodPost, "/api/task/no-such-task/abort", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	t.Run("affirmative", func(t *testing.T) {
		h := newTestHandler(t, &scriptedGateway{responses: []string{"YES"}})

		rec := doJSON(t, h, http.MethodPost, "/api/verify", verifyRequest{
			Action:            schemas.Action{Kind: schemas.ActionClick, Target: "Send"},
			ExpectedState:     "message sent",
			ActualScreenState: schemas.ScreenState{CurrentApp: "messages"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[verifyResponse](t, rec).Success)
	})

	t.Run("oracle failure verifies false", func(t *testing.T) {
		h := newTestHandler(t, &scriptedGateway{err: &schemas.GatewayError{Kind: schemas.GatewayTimeout}})

		rec := doJSON(t, h, http.MethodPost, "/api/verify", verifyRequest{
			Action:        schemas.Action{Kind: schemas.ActionClick, Target: "Send"},
			ExpectedState: "message sent",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decodeBody[verifyResponse](t, rec).Success)
	})
}

func TestReplanEndpoint(t *testing.T) {
	h := newTestHandler(t, &scriptedGateway{responses: []string{`[{"action": "scroll", "value": "down"}]`}})

	rec := doJSON(t, h, http.MethodPost, "/api/replan", replanRequest{
		OriginalIntent:     schemas.Intent{Kind: schemas.IntentSendMessage, Confidence: 0.9},
		FailedAction:       schemas.Action{Kind: schemas.ActionClick, Target: "Mom"},
		FailureReason:      "Element not found",
		CurrentScreenState: schemas.ScreenState{CurrentApp: "messages"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody[replanResponse](t, rec)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, schemas.ActionScroll, got.Actions[0].Kind)
}

func TestCommandEndpoint(t *testing.T) {
	h := newTestHandler(t, &scriptedGateway{responses: []string{intentJSON, actionsJSON}})

	rec := doJSON(t, h, http.MethodPost, "/api/command", commandRequest{
		Input:       "text Mom that I'm on my way",
		ScreenState: schemas.ScreenState{CurrentApp: "launcher"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeBody[planResponse](t, rec)
	assert.NotEmpty(t, got.TaskID)
	assert.Len(t, got.Actions, 2)
}
