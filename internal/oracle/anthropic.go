// File: internal/oracle/anthropic.go
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements schemas.Gateway against the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.OracleConfig
}

// -- Messages API request/response structures (internal to this file) --

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestPayload struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponsePayload struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient initializes the client.
func NewAnthropicClient(cfg config.OracleConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required (set DROIDPILOT_ORACLE_API_KEY)")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}

	return &AnthropicClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		model:    cfg.Model,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("oracle.anthropic"),
	}, nil
}

// Complete sends the prompt to the Messages API and returns the generated
// text, retrying transient failures with exponential backoff.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}

	body, err := json.Marshal(anthropicRequestPayload{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", &schemas.GatewayError{Kind: schemas.GatewayTransport,
			Err: fmt.Errorf("failed to marshal request payload: %w", err)}
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.config.MaxRetryElapsed
	b.MaxInterval = 30 * time.Second

	var responseText string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(&schemas.GatewayError{Kind: schemas.GatewayTransport,
				Err: fmt.Errorf("failed to create HTTP request: %w", err)})
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			gerr := classifyTransportError(err)
			if gerr.Kind == schemas.GatewayTimeout {
				// Deadline exhausted; retrying cannot help within this call.
				return backoff.Permanent(gerr)
			}
			c.logger.Warn("Network error during oracle request, retrying...", zap.Error(err))
			return gerr
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &schemas.GatewayError{Kind: schemas.GatewayTransport,
				Err: fmt.Errorf("failed to read response body: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var payload anthropicResponsePayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(&schemas.GatewayError{Kind: schemas.GatewayTransport,
				Err: fmt.Errorf("failed to decode response payload: %w", err)})
		}
		if len(payload.Content) == 0 || payload.Content[0].Text == "" {
			return backoff.Permanent(&schemas.GatewayError{Kind: schemas.GatewayTransport,
				Err: fmt.Errorf("messages API returned no text content (stop_reason: %s)", payload.StopReason)})
		}

		c.logger.Debug("Oracle completion finished",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", payload.Usage.InputTokens),
			zap.Int("completion_tokens", payload.Usage.OutputTokens),
		)

		responseText = payload.Content[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", asGatewayError(err)
	}
	return responseText, nil
}

// handleAPIError maps an HTTP status to retryable or permanent gateway errors.
// The response body is logged, never propagated, so credentials and prompts
// embedded in API echoes stay out of caller-visible errors.
func (c *AnthropicClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Anthropic API returned error status",
		zap.Int("status", statusCode), zap.ByteString("response", body))

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return backoff.Permanent(&schemas.GatewayError{Kind: schemas.GatewayAuth,
			Err: fmt.Errorf("anthropic API rejected credentials: status %d", statusCode)})
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusServiceUnavailable, 529: // 529 is Anthropic's overloaded status.
		return &schemas.GatewayError{Kind: schemas.GatewayTransport,
			Err: fmt.Errorf("anthropic API transient error: status %d", statusCode)}
	default:
		return backoff.Permanent(&schemas.GatewayError{Kind: schemas.GatewayTransport,
			Err: fmt.Errorf("anthropic API error: status %d", statusCode)})
	}
}

// classifyTransportError distinguishes timeouts from other transport failures.
func classifyTransportError(err error) *schemas.GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &schemas.GatewayError{Kind: schemas.GatewayTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &schemas.GatewayError{Kind: schemas.GatewayTimeout, Err: err}
	}
	return &schemas.GatewayError{Kind: schemas.GatewayTransport, Err: err}
}

// asGatewayError guarantees callers always observe a *schemas.GatewayError,
// even when the backoff loop surfaces a bare context error.
func asGatewayError(err error) error {
	var gerr *schemas.GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &schemas.GatewayError{Kind: schemas.GatewayTimeout, Err: err}
	}
	return &schemas.GatewayError{Kind: schemas.GatewayTransport, Err: err}
}
