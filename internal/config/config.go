// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OracleProvider identifies a supported reasoning-oracle backend.
type OracleProvider string

const (
	ProviderAnthropic OracleProvider = "anthropic"
	ProviderGemini    OracleProvider = "gemini"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Oracle     OracleConfig     `mapstructure:"oracle" yaml:"oracle"`
	Planner    PlannerConfig    `mapstructure:"planner" yaml:"planner"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// OracleConfig configures the reasoning-oracle gateway.
type OracleConfig struct {
	Provider OracleProvider `mapstructure:"provider" yaml:"provider"`
	Model    string         `mapstructure:"model" yaml:"model"`
	// APIKey is bound from DROIDPILOT_ORACLE_API_KEY and never serialized.
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens  int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerSecond throttles outbound oracle calls per gateway instance.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	// MaxRetryElapsed bounds the backoff retry loop for transient failures.
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

// PlannerConfig tunes action planning.
type PlannerConfig struct {
	// MaxActionsPerPlan caps plan length; oracle output beyond the cap is
	// truncated with a warning, never rejected outright.
	MaxActionsPerPlan int `mapstructure:"max_actions_per_plan" yaml:"max_actions_per_plan"`
}

// SupervisorConfig tunes the replanning supervisor.
type SupervisorConfig struct {
	// MaxReplans bounds failure-triggered recovery rounds per originating
	// intent. Hitting the bound transitions the task to EXHAUSTED.
	MaxReplans int `mapstructure:"max_replans" yaml:"max_replans"`
	// RegistryCapacity bounds the in-memory task registry; the least recently
	// used task record is evicted beyond it.
	RegistryCapacity int `mapstructure:"registry_capacity" yaml:"registry_capacity"`
	// VerifyOnSuccess asks the outcome verifier to confirm successful actions
	// that carry a post-action screen snapshot.
	VerifyOnSuccess bool `mapstructure:"verify_on_success" yaml:"verify_on_success"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "droidpilot")
	v.SetDefault("logger.log_file", "droidpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Oracle --
	v.SetDefault("oracle.provider", "anthropic")
	v.SetDefault("oracle.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("oracle.api_timeout", "45s")
	v.SetDefault("oracle.max_tokens", 1024)
	v.SetDefault("oracle.requests_per_second", 4.0)
	v.SetDefault("oracle.max_retry_elapsed", "2m")

	// -- Planner --
	v.SetDefault("planner.max_actions_per_plan", 20)

	// -- Supervisor --
	v.SetDefault("supervisor.max_replans", 3)
	v.SetDefault("supervisor.registry_capacity", 1024)
	v.SetDefault("supervisor.verify_on_success", false)

	// -- Server --
	v.SetDefault("server.listen_addr", ":5000")
	v.SetDefault("server.request_timeout", "120s")
}

// NewConfigFromViper builds and validates a configuration from a viper
// instance, binding environment variables for sensitive values.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("DROIDPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit binding so the key resolves even without a config file entry.
	if err := v.BindEnv("oracle.api_key", "DROIDPILOT_ORACLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind oracle credential: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("oracle.provider must be one of [%s %s], got %q",
			ProviderAnthropic, ProviderGemini, c.Oracle.Provider)
	}
	if c.Oracle.MaxTokens <= 0 {
		return fmt.Errorf("oracle.max_tokens must be a positive integer")
	}
	if c.Oracle.APITimeout <= 0 {
		return fmt.Errorf("oracle.api_timeout must be a positive duration")
	}
	if c.Planner.MaxActionsPerPlan <= 0 {
		return fmt.Errorf("planner.max_actions_per_plan must be a positive integer")
	}
	if c.Supervisor.MaxReplans <= 0 {
		return fmt.Errorf("supervisor.max_replans must be a positive integer")
	}
	if c.Supervisor.RegistryCapacity <= 0 {
		return fmt.Errorf("supervisor.registry_capacity must be a positive integer")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	return nil
}
