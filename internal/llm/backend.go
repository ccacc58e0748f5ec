package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CLIType identifies a supported assistant CLI.
type CLIType string

const (
	CLICodex      CLIType = "codex"
	CLIClaudeCode CLIType = "claude_code"
	CLIGemini     CLIType = "gemini"
)

// Backend provides the CLI-specific parts of a one-shot assistant run. The
// prompt is always passed on stdin so long prompts never hit argv limits.
type Backend interface {
	Name() CLIType
	// Command is the executable name.
	Command() string
	// Args returns the non-interactive arguments, selecting model when set.
	Args(model string) []string
	// VersionArgs returns the arguments that print the CLI version.
	VersionArgs() []string
	// CleanOutput strips CLI-specific noise from stdout.
	CleanOutput(out string) string
}

// ErrUnknownBackend is returned when the configured CLI type is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown assistant CLI")

// NewBackend builds a Backend for the given CLI type. sandboxPermissions is
// forwarded to codex.
func NewBackend(cliType string, sandboxPermissions []string) (Backend, error) {
	switch CLIType(strings.ToLower(cliType)) {
	case CLICodex, "":
		return NewCodexBackend(sandboxPermissions), nil
	case CLIClaudeCode:
		return &ClaudeBackend{command: "claude"}, nil
	case CLIGemini:
		return &GeminiBackend{command: "gemini"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cliType)
	}
}

// CodexBackend implements Backend for the Codex CLI.
type CodexBackend struct {
	command            string
	sandboxPermissions []string
}

// NewCodexBackend creates a Codex backend. Codex writes a rollout recorder
// under the home directory, so full disk access is the default.
func NewCodexBackend(sandboxPermissions []string) *CodexBackend {
	if len(sandboxPermissions) == 0 {
		sandboxPermissions = []string{"disk-full-access"}
	}
	return &CodexBackend{command: "codex", sandboxPermissions: sandboxPermissions}
}

func (c *CodexBackend) Name() CLIType { return CLICodex }

func (c *CodexBackend) Command() string { return c.command }

func (c *CodexBackend) Args(model string) []string {
	perms, _ := json.Marshal(c.sandboxPermissions)
	args := []string{"exec", "--sandbox", "danger-full-access", "-c", "sandbox_permissions=" + string(perms)}
	if model != "" {
		args = append(args, "-m", model)
	}
	return args
}

func (c *CodexBackend) VersionArgs() []string { return []string{"--version"} }

func (c *CodexBackend) CleanOutput(out string) string { return strings.TrimSpace(out) }

// ClaudeBackend implements Backend for Claude Code.
type ClaudeBackend struct {
	command string
}

func (c *ClaudeBackend) Name() CLIType { return CLIClaudeCode }

func (c *ClaudeBackend) Command() string { return c.command }

func (c *ClaudeBackend) Args(model string) []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}

func (c *ClaudeBackend) VersionArgs() []string { return []string{"--version"} }

func (c *ClaudeBackend) CleanOutput(out string) string { return strings.TrimSpace(out) }

// GeminiBackend implements Backend for the Gemini CLI.
type GeminiBackend struct {
	command string
}

func (g *GeminiBackend) Name() CLIType { return CLIGemini }

func (g *GeminiBackend) Command() string { return g.command }

func (g *GeminiBackend) Args(model string) []string {
	args := []string{"-s"}
	if model != "" {
		args = append(args, "-m", model)
	}
	return args
}

func (g *GeminiBackend) VersionArgs() []string { return []string{"--version"} }

// geminiNoise are stdout line prefixes the Gemini CLI prints before the answer.
var geminiNoise = []string{"Loaded cached credentials", "Using project"}

func (g *GeminiBackend) CleanOutput(out string) string {
	lines := strings.Split(out, "\n")
	kept := lines[:0]
	for _, line := range lines {
		noisy := false
		for _, prefix := range geminiNoise {
			if strings.HasPrefix(line, prefix) {
				noisy = true
				break
			}
		}
		if !noisy {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
