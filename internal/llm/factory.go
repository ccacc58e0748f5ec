package llm

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/daacs/internal/config"
	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/logging"
)

// NewFromConfig builds the source configured for role.
func NewFromConfig(cfg *config.Config, role string, logger *logging.Logger) (Source, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	rc := cfg.Roles.Role(role)

	switch rc.Source {
	case config.SourceCLIAssistant:
		cliType := rc.CLIType
		if cliType == "" {
			cliType = cfg.CLIAssistant.Type
		}
		backend, err := NewBackend(cliType, cfg.CLIAssistant.SandboxPermissions)
		if err != nil {
			return nil, err
		}
		executor := NewExecutor(backend, role,
			WithExecutorLogger(logger),
			WithTimeout(cfg.CLIAssistant.Timeout()),
			WithRetries(cfg.CLIAssistant.Retries),
		)

		var fallback Source
		if rc.Fallback.Provider != "" {
			fb, err := pluginFromConfig(rc.Fallback, rc.Temperature)
			if err != nil {
				logger.Warn("fallback plugin unavailable", "role", role, "error", err.Error())
			} else {
				fallback = fb
			}
		}
		return NewCLISource(executor, fallback, logger.With("role", role)), nil

	case config.SourcePlugin:
		return pluginFromConfig(rc.Plugin, rc.Temperature)

	case config.SourceMock:
		return NewMockSource(role), nil
	}

	return nil, fmt.Errorf("%w: %q for role %s", daacserrors.ErrUnknownSource, rc.Source, role)
}

func pluginFromConfig(pc config.PluginConfig, temperature float64) (*PluginSource, error) {
	return NewPluginSource(pc.Provider, pc.Model,
		WithAPIKey(pc.APIKey),
		WithBaseURL(pc.BaseURL),
		WithTemperature(temperature),
	)
}

// SourcesDescription renders the per-role sources, e.g.
// "orchestrator=cli_assistant:codex backend=mock:backend".
func SourcesDescription(sources map[string]Source) string {
	var parts []string
	for _, role := range []string{config.RoleOrchestrator, config.RoleBackend, config.RoleFrontend} {
		if s, ok := sources[role]; ok && s != nil {
			parts = append(parts, role+"="+s.Describe())
		}
	}
	return strings.Join(parts, " ")
}
