// File: internal/oracle/throttle.go
package oracle

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// Throttled wraps a Gateway with a token-bucket rate limit so a replanning
// burst cannot hammer the oracle.
type Throttled struct {
	inner   schemas.Gateway
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewThrottled builds a rate-limited gateway allowing rps requests per second
// with a single-request burst.
func NewThrottled(inner schemas.Gateway, rps float64, logger *zap.Logger) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.Named("oracle.throttle"),
	}
}

// Complete blocks until the limiter grants a slot, then delegates.
func (t *Throttled) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &schemas.GatewayError{Kind: schemas.GatewayTimeout, Err: err}
		}
		return "", &schemas.GatewayError{Kind: schemas.GatewayTransport, Err: err}
	}
	return t.inner.Complete(ctx, prompt, maxTokens)
}
