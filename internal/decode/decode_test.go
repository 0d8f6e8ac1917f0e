// File: internal/decode/decode_test.go
package decode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

type intentPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

type actionPayload struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

func decodeReason(t *testing.T, err error) schemas.DecodeReason {
	t.Helper()
	var derr *schemas.DecodeError
	require.True(t, errors.As(err, &derr), "expected a DecodeError, got %v", err)
	return derr.Reason
}

func TestObjectExtraction(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		wantErr schemas.DecodeReason
		check   func(t *testing.T, got *intentPayload)
	}{
		{
			name: "bare object",
			raw:  `{"intent": "send_message", "confidence": 0.9}`,
			check: func(t *testing.T, got *intentPayload) {
				assert.Equal(t, "send_message", got.Intent)
				assert.InDelta(t, 0.9, got.Confidence, 1e-9)
			},
		},
		{
			name: "object wrapped in prose",
			raw:  "Sure! Here is the intent you asked for:\n{\"intent\": \"open_app\", \"confidence\": 0.7}\nLet me know if you need anything else.",
			check: func(t *testing.T, got *intentPayload) {
				assert.Equal(t, "open_app", got.Intent)
			},
		},
		{
			name: "object inside markdown fence",
			raw:  "```json\n{\"intent\": \"search\", \"confidence\": 1}\n```",
			check: func(t *testing.T, got *intentPayload) {
				assert.Equal(t, "search", got.Intent)
			},
		},
		{
			name: "braces inside string literals do not break scanning",
			raw:  `{"intent": "send_message {urgent}", "confidence": 0.5}`,
			check: func(t *testing.T, got *intentPayload) {
				assert.Equal(t, "send_message {urgent}", got.Intent)
			},
		},
		{
			name: "escaped quotes inside strings",
			raw:  `{"intent": "say \"hi\" {now}", "confidence": 0.5}`,
			check: func(t *testing.T, got *intentPayload) {
				assert.Equal(t, `say "hi" {now}`, got.Intent)
			},
		},
		{
			name: "stray opening brace before the real payload",
			raw:  `the format is { like this: {"intent": "search", "confidence": 0.2}`,
			check: func(t *testing.T, got *intentPayload) {
				assert.Equal(t, "search", got.Intent)
			},
		},
		{
			name:    "no JSON at all",
			raw:     "I cannot help with that.",
			wantErr: schemas.DecodeNoJSONFound,
		},
		{
			name:    "empty response",
			raw:     "",
			wantErr: schemas.DecodeNoJSONFound,
		},
		{
			name:    "truncated object",
			raw:     `{"intent": "send_message", "confidence":`,
			wantErr: schemas.DecodeMalformedJSON,
		},
		{
			name:    "wrong field types",
			raw:     `{"intent": "send_message", "confidence": "very high"}`,
			wantErr: schemas.DecodeSchemaMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Object[intentPayload](tc.raw)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantErr, decodeReason(t, err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			tc.check(t, got)
		})
	}
}

func TestArrayExtraction(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		got, err := Array[actionPayload](`[{"action": "click", "target": "Send"}]`)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "click", got[0].Action)
	})

	t.Run("array wrapped in prose and fences", func(t *testing.T) {
		raw := "Here is your plan:\n```json\n[{\"action\": \"open_app\", \"target\": \"\"}, {\"action\": \"click\", \"target\": \"Mom\"}]\n```"
		got, err := Array[actionPayload](raw)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Mom", got[1].Target)
	})

	t.Run("no array present", func(t *testing.T) {
		_, err := Array[actionPayload](`{"action": "click"}`)
		require.Error(t, err)
		assert.Equal(t, schemas.DecodeNoJSONFound, decodeReason(t, err))
	})

	t.Run("unbalanced array", func(t *testing.T) {
		_, err := Array[actionPayload](`[{"action": "click"`)
		require.Error(t, err)
		assert.Equal(t, schemas.DecodeMalformedJSON, decodeReason(t, err))
	})

	t.Run("empty array decodes to empty slice", func(t *testing.T) {
		got, err := Array[actionPayload](`[]`)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
