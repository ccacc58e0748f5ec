package llm

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/daacs/internal/logging"
)

// CLISource sends prompts through an assistant CLI. When the CLI fails and a
// fallback source is configured, the call is retried through the fallback.
type CLISource struct {
	executor *Executor
	fallback Source
	logger   *logging.Logger
}

// NewCLISource creates a CLI-backed source. fallback may be nil.
func NewCLISource(executor *Executor, fallback Source, logger *logging.Logger) *CLISource {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &CLISource{executor: executor, fallback: fallback, logger: logger}
}

// Invoke runs the CLI in the call's working directory.
func (s *CLISource) Invoke(ctx context.Context, prompt string, opts ...InvokeOption) (string, error) {
	o := applyOptions(opts)
	out, err := s.executor.Execute(ctx, prompt, o.workDir)
	if err == nil {
		return out, nil
	}
	if s.fallback == nil || ctx.Err() != nil {
		return "", err
	}

	s.logger.Warn("cli assistant failed, using fallback",
		"cli", string(s.executor.Backend().Name()),
		"fallback", s.fallback.Describe(),
		"error", err.Error(),
	)
	out, fbErr := s.fallback.Invoke(ctx, prompt, opts...)
	if fbErr != nil {
		return "", fmt.Errorf("cli assistant failed (%v) and fallback failed: %w", err, fbErr)
	}
	return out, nil
}

// InvokeStructured asks for JSON through Invoke.
func (s *CLISource) InvokeStructured(ctx context.Context, prompt string, opts ...InvokeOption) (map[string]any, error) {
	return invokeStructured(ctx, s, prompt, opts)
}

// Describe returns "cli_assistant:<type>".
func (s *CLISource) Describe() string {
	return "cli_assistant:" + string(s.executor.Backend().Name())
}
