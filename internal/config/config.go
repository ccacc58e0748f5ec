package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Role names used as keys under "roles".
const (
	RoleOrchestrator = "orchestrator"
	RoleBackend      = "backend"
	RoleFrontend     = "frontend"
)

// LLM source kinds for a role.
const (
	SourceCLIAssistant = "cli_assistant"
	SourcePlugin       = "plugin"
	SourceMock         = "mock"
)

// Judgment fallback policies applied when the judgment model call fails.
const (
	JudgmentAssumeCompatible   = "assume_compatible"
	JudgmentAssumeIncompatible = "assume_incompatible"
)

// Config represents the complete DAACS configuration
type Config struct {
	CLIAssistant CLIAssistantConfig `mapstructure:"cli_assistant" yaml:"cli_assistant"`
	Roles        RolesConfig        `mapstructure:"roles" yaml:"roles"`
	Execution    ExecutionConfig    `mapstructure:"execution" yaml:"execution"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// UseMock points every role at the canned mock source.
func (c *Config) UseMock() {
	c.Roles.Orchestrator.Source = SourceMock
	c.Roles.Backend.Source = SourceMock
	c.Roles.Frontend.Source = SourceMock
}

// CLIAssistantConfig selects the code-generation CLI shared by roles whose
// source is cli_assistant.
type CLIAssistantConfig struct {
	// Type is the assistant binary family: codex, claude_code or gemini
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=codex claude_code gemini"`
	// TimeoutSeconds bounds a single assistant invocation
	TimeoutSeconds int `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	// Retries is the number of extra attempts after a failed invocation
	Retries int `mapstructure:"retries" yaml:"retries" validate:"gte=0,lte=10"`
	// SandboxPermissions is forwarded to codex as sandbox_permissions
	SandboxPermissions []string `mapstructure:"sandbox_permissions" yaml:"sandbox_permissions"`
}

// RolesConfig holds the LLM source selection for each role.
type RolesConfig struct {
	Orchestrator RoleConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Backend      RoleConfig `mapstructure:"backend" yaml:"backend"`
	Frontend     RoleConfig `mapstructure:"frontend" yaml:"frontend"`
}

// RoleConfig selects where a role's model calls go.
type RoleConfig struct {
	// Source is cli_assistant, plugin or mock
	Source string `mapstructure:"source" yaml:"source" validate:"required,oneof=cli_assistant plugin mock"`
	// CLIType overrides cli_assistant.type for this role (empty = inherit)
	CLIType string `mapstructure:"cli_type" yaml:"cli_type,omitempty" validate:"omitempty,oneof=codex claude_code gemini"`
	// Temperature is forwarded to plugin providers
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	// Plugin configures the API provider when Source is plugin
	Plugin PluginConfig `mapstructure:"plugin" yaml:"plugin"`
	// Fallback is a plugin used when the CLI assistant fails (empty provider = none)
	Fallback PluginConfig `mapstructure:"fallback" yaml:"fallback,omitempty"`
}

// PluginConfig configures an HTTP model provider.
type PluginConfig struct {
	// Provider is openai, anthropic or gemini
	Provider string `mapstructure:"provider" yaml:"provider,omitempty" validate:"omitempty,oneof=openai anthropic gemini"`
	// Model is the provider's model identifier
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// APIKey overrides the provider's environment variable
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// BaseURL overrides the provider endpoint (useful for compatible gateways)
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
}

// ExecutionConfig holds the ceilings and scheduling mode of a run. It is
// read-only once a run starts.
type ExecutionConfig struct {
	// Mode is test (short timeouts) or prod
	Mode string `mapstructure:"mode" yaml:"mode" validate:"required,oneof=test prod"`
	// MaxIterations bounds full plan/generate/judge cycles
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations" validate:"gte=1"`
	// MaxSubgraphIterations bounds rework attempts per track per cycle
	MaxSubgraphIterations int `mapstructure:"max_subgraph_iterations" yaml:"max_subgraph_iterations" validate:"gte=1"`
	// MaxFailures is the consecutive-failure ceiling
	MaxFailures int `mapstructure:"max_failures" yaml:"max_failures" validate:"gte=1"`
	// MaxTurns bounds the single-track loop
	MaxTurns int `mapstructure:"max_turns" yaml:"max_turns" validate:"gte=1"`
	// ParallelExecution runs the backend and frontend tracks concurrently
	ParallelExecution bool `mapstructure:"parallel_execution" yaml:"parallel_execution"`
	// JudgmentFallback is assume_compatible or assume_incompatible
	JudgmentFallback string `mapstructure:"judgment_fallback" yaml:"judgment_fallback" validate:"oneof=assume_compatible assume_incompatible"`
	// FullVerification adds install/boot checks to track verification
	FullVerification bool `mapstructure:"full_verification" yaml:"full_verification"`
	// PlannerTimeoutSeconds bounds the single-track planner call
	PlannerTimeoutSeconds int `mapstructure:"planner_timeout" yaml:"planner_timeout" validate:"gt=0"`
	// ProjectRoot is the parent directory of generated projects
	ProjectRoot string `mapstructure:"project_root" yaml:"project_root" validate:"required"`
	// LogDir is where run logs are written
	LogDir string `mapstructure:"log_dir" yaml:"log_dir" validate:"required"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	cliRole := func(temp float64) RoleConfig {
		return RoleConfig{Source: SourceCLIAssistant, Temperature: temp}
	}
	return &Config{
		CLIAssistant: CLIAssistantConfig{
			Type:               "codex",
			TimeoutSeconds:     180,
			Retries:            2,
			SandboxPermissions: []string{"disk-full-access"},
		},
		Roles: RolesConfig{
			Orchestrator: cliRole(0.3),
			Backend:      cliRole(0.7),
			Frontend:     cliRole(0.7),
		},
		Execution: ExecutionConfig{
			Mode:                  "test",
			MaxIterations:         10,
			MaxSubgraphIterations: 2,
			MaxFailures:           5,
			MaxTurns:              10,
			ParallelExecution:     false,
			JudgmentFallback:      JudgmentAssumeCompatible,
			FullVerification:      false,
			PlannerTimeoutSeconds: 60,
			ProjectRoot:           "project",
			LogDir:                "logs",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Role returns the configuration for the named role. Unknown names yield the
// orchestrator role.
func (r *RolesConfig) Role(name string) RoleConfig {
	switch name {
	case RoleBackend:
		return r.Backend
	case RoleFrontend:
		return r.Frontend
	default:
		return r.Orchestrator
	}
}

// Timeout returns the assistant timeout as a time.Duration
func (c *CLIAssistantConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PlannerTimeout returns the planner timeout as a time.Duration
func (c *ExecutionConfig) PlannerTimeout() time.Duration {
	return time.Duration(c.PlannerTimeoutSeconds) * time.Second
}

// ClientTimeout returns the per-action executor timeout for the single-track
// loop: 180s in test mode, 240s in prod.
func (c *ExecutionConfig) ClientTimeout() time.Duration {
	if strings.EqualFold(c.Mode, "prod") {
		return 240 * time.Second
	}
	return 180 * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	d := Default()

	viper.SetDefault("cli_assistant.type", d.CLIAssistant.Type)
	viper.SetDefault("cli_assistant.timeout", d.CLIAssistant.TimeoutSeconds)
	viper.SetDefault("cli_assistant.retries", d.CLIAssistant.Retries)
	viper.SetDefault("cli_assistant.sandbox_permissions", d.CLIAssistant.SandboxPermissions)

	for name, role := range map[string]RoleConfig{
		RoleOrchestrator: d.Roles.Orchestrator,
		RoleBackend:      d.Roles.Backend,
		RoleFrontend:     d.Roles.Frontend,
	} {
		viper.SetDefault("roles."+name+".source", role.Source)
		viper.SetDefault("roles."+name+".temperature", role.Temperature)
	}

	viper.SetDefault("execution.mode", d.Execution.Mode)
	viper.SetDefault("execution.max_iterations", d.Execution.MaxIterations)
	viper.SetDefault("execution.max_subgraph_iterations", d.Execution.MaxSubgraphIterations)
	viper.SetDefault("execution.max_failures", d.Execution.MaxFailures)
	viper.SetDefault("execution.max_turns", d.Execution.MaxTurns)
	viper.SetDefault("execution.parallel_execution", d.Execution.ParallelExecution)
	viper.SetDefault("execution.judgment_fallback", d.Execution.JudgmentFallback)
	viper.SetDefault("execution.full_verification", d.Execution.FullVerification)
	viper.SetDefault("execution.planner_timeout", d.Execution.PlannerTimeoutSeconds)
	viper.SetDefault("execution.project_root", d.Execution.ProjectRoot)
	viper.SetDefault("execution.log_dir", d.Execution.LogDir)

	viper.SetDefault("logging.level", d.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "daacs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".daacs"
	}
	return filepath.Join(home, ".config", "daacs")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
