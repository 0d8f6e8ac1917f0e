// File: internal/oracle/factory.go
package oracle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// New is a factory that builds a Gateway from configuration, wrapped with the
// configured rate limit.
func New(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (schemas.Gateway, error) {
	var (
		gw  schemas.Gateway
		err error
	)

	switch cfg.Provider {
	case config.ProviderAnthropic:
		gw, err = NewAnthropicClient(cfg, logger)
	case config.ProviderGemini:
		gw, err = NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported oracle provider %q. Supported: [%s %s]",
			cfg.Provider, config.ProviderAnthropic, config.ProviderGemini)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		gw = NewThrottled(gw, cfg.RequestsPerSecond, logger)
	}
	return gw, nil
}
