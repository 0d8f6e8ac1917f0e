// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "droidpilot", cfg.Logger.ServiceName)

	assert.Equal(t, ProviderAnthropic, cfg.Oracle.Provider)
	assert.Equal(t, 45*time.Second, cfg.Oracle.APITimeout)
	assert.Equal(t, 1024, cfg.Oracle.MaxTokens)
	assert.InDelta(t, 4.0, cfg.Oracle.RequestsPerSecond, 1e-9)

	assert.Equal(t, 20, cfg.Planner.MaxActionsPerPlan)
	assert.Equal(t, 3, cfg.Supervisor.MaxReplans)
	assert.Equal(t, 1024, cfg.Supervisor.RegistryCapacity)
	assert.False(t, cfg.Supervisor.VerifyOnSuccess)

	assert.Equal(t, ":5000", cfg.Server.ListenAddr)
	assert.Equal(t, 120*time.Second, cfg.Server.RequestTimeout)

	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperBindsCredentialEnv(t *testing.T) {
	t.Setenv("DROIDPILOT_ORACLE_API_KEY", "sk-test-secret")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-secret", cfg.Oracle.APIKey)
}

func TestNewConfigFromViperEnvOverrides(t *testing.T) {
	t.Setenv("DROIDPILOT_ORACLE_PROVIDER", "gemini")
	t.Setenv("DROIDPILOT_SUPERVISOR_MAX_REPLANS", "5")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.Oracle.Provider)
	assert.Equal(t, 5, cfg.Supervisor.MaxReplans)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"unknown provider", func(cfg *Config) { cfg.Oracle.Provider = "smoke_signals" }},
		{"non-positive max tokens", func(cfg *Config) { cfg.Oracle.MaxTokens = 0 }},
		{"non-positive api timeout", func(cfg *Config) { cfg.Oracle.APITimeout = 0 }},
		{"non-positive action cap", func(cfg *Config) { cfg.Planner.MaxActionsPerPlan = -1 }},
		{"non-positive max replans", func(cfg *Config) { cfg.Supervisor.MaxReplans = 0 }},
		{"non-positive registry capacity", func(cfg *Config) { cfg.Supervisor.RegistryCapacity = 0 }},
		{"missing listen addr", func(cfg *Config) { cfg.Server.ListenAddr = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
