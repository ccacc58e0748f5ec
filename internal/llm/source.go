// Package llm provides the model-call capability used by the planner, the
// workflow nodes and the single-track loop.
//
// A Source is selected per role by configuration: a CLI assistant (codex,
// claude_code, gemini) run as a one-shot subprocess, an HTTP API provider, or a
// canned mock. Callers depend only on the Source interface.
package llm

import (
	"context"
)

// structuredSuffix is appended to prompts sent through InvokeStructured.
const structuredSuffix = "\n\nRespond in JSON format."

// Source is a model endpoint for one role.
type Source interface {
	// Invoke sends prompt and returns the text response.
	Invoke(ctx context.Context, prompt string, opts ...InvokeOption) (string, error)
	// InvokeStructured asks for JSON and returns the decoded object. A
	// response that is not a JSON object comes back as {"response": text}.
	InvokeStructured(ctx context.Context, prompt string, opts ...InvokeOption) (map[string]any, error)
	// Describe names the source for logs, e.g. "cli_assistant:codex".
	Describe() string
}

// InvokeOption configures a single call.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	workDir string
}

// WithWorkDir runs the call with dir as the working directory. Only CLI
// sources use it; agentic assistants write generated files there.
func WithWorkDir(dir string) InvokeOption {
	return func(o *invokeOptions) {
		o.workDir = dir
	}
}

func applyOptions(opts []InvokeOption) invokeOptions {
	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// invokeStructured is the shared InvokeStructured for text sources.
func invokeStructured(ctx context.Context, s Source, prompt string, opts []InvokeOption) (map[string]any, error) {
	text, err := s.Invoke(ctx, prompt+structuredSuffix, opts...)
	if err != nil {
		return nil, err
	}
	obj, err := ParseJSON(text)
	if err != nil {
		return map[string]any{"response": text}, nil
	}
	return obj, nil
}
