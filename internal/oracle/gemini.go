// File: internal/oracle/gemini.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// GeminiClient implements schemas.Gateway on top of the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
	config config.OracleConfig
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set DROIDPILOT_ORACLE_API_KEY)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiClient{
		client: client,
		model:  model,
		config: cfg,
		logger: logger.Named("oracle.gemini"),
	}, nil
}

// Complete sends the prompt to the Gemini API and returns the generated text,
// retrying transient failures with exponential backoff.
func (c *GeminiClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.config.MaxRetryElapsed
	b.MaxInterval = 30 * time.Second

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}

	var responseText string

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()

		startTime := time.Now()
		result, err := c.client.Models.GenerateContent(callCtx, c.model, genai.Text(prompt), genCfg)
		duration := time.Since(startTime)

		if err != nil {
			gerr := classifyGenAIError(err)
			if gerr.Kind == schemas.GatewayAuth {
				return backoff.Permanent(gerr)
			}
			c.logger.Warn("Gemini request failed, retrying...", zap.Error(err))
			return gerr
		}

		text := result.Text()
		if text == "" {
			return backoff.Permanent(&schemas.GatewayError{Kind: schemas.GatewayTransport,
				Err: fmt.Errorf("gemini API returned empty content")})
		}

		c.logger.Debug("Oracle completion finished", zap.Duration("duration", duration))
		responseText = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", asGatewayError(err)
	}
	return responseText, nil
}

// classifyGenAIError maps SDK failures into the gateway error taxonomy.
func classifyGenAIError(err error) *schemas.GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &schemas.GatewayError{Kind: schemas.GatewayTimeout, Err: err}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &schemas.GatewayError{Kind: schemas.GatewayAuth, Err: err}
		}
	}
	return &schemas.GatewayError{Kind: schemas.GatewayTransport, Err: err}
}
