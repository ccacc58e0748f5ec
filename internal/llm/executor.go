package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/replan"
)

// Environment overrides read by the executor.
const (
	// EnvWorkDir overrides the working directory of every assistant run.
	EnvWorkDir = "DAACS_WORKDIR"
	// envModelFormat selects the model per client, e.g. DAACS_BACKEND_MODEL.
	envModelFormat = "DAACS_%s_MODEL"
)

// Executor runs one assistant CLI non-interactively, feeding the prompt on
// stdin and returning stdout. Failed attempts are retried; a timeout counts
// as a failed attempt.
type Executor struct {
	backend    Backend
	client     string
	workDir    string
	model      string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	limiter    *RateLimiter
	logger     *logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetries sets the number of extra attempts after a failure.
func WithRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.retryDelay = d
	}
}

// WithDefaultWorkDir sets the directory used when a call names none.
func WithDefaultWorkDir(dir string) ExecutorOption {
	return func(e *Executor) {
		e.workDir = dir
	}
}

// WithModel selects the model passed to the CLI.
func WithModel(model string) ExecutorOption {
	return func(e *Executor) {
		e.model = model
	}
}

// WithRateLimiter spaces calls through limiter.
func WithRateLimiter(limiter *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.limiter = limiter
	}
}

// NewExecutor creates an executor for backend acting as client (backend,
// frontend or orchestrator). Gemini executors share a process-wide limiter.
func NewExecutor(backend Backend, client string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		backend:    backend,
		client:     client,
		timeout:    240 * time.Second,
		retries:    2,
		retryDelay: time.Second,
		logger:     logging.NopLogger(),
	}
	if model := os.Getenv(fmt.Sprintf(envModelFormat, strings.ToUpper(client))); model != "" {
		e.model = model
	}
	if backend.Name() == CLIGemini {
		e.limiter = geminiLimiter
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Backend returns the CLI backend.
func (e *Executor) Backend() Backend { return e.backend }

// resolveDir picks the working directory: the environment override, then
// the call's directory, then the executor default.
func (e *Executor) resolveDir(callDir string) (string, error) {
	dir := os.Getenv(EnvWorkDir)
	if dir == "" {
		dir = callDir
	}
	if dir == "" {
		dir = e.workDir
	}
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	return dir, nil
}

// Execute runs the assistant with prompt in workDir (empty = default).
func (e *Executor) Execute(ctx context.Context, prompt, workDir string) (string, error) {
	dir, err := e.resolveDir(workDir)
	if err != nil {
		return "", err
	}

	if e.limiter != nil {
		waited, err := e.limiter.Wait(ctx)
		if err != nil {
			return "", err
		}
		if waited > 0 {
			e.logger.Info("rate limiter delayed call", "client", e.client, "waited", waited.String())
		}
	}

	e.logger.Info("executing assistant",
		"client", e.client,
		"cli", string(e.backend.Name()),
		"prompt_len", len(prompt),
		"dir", dir,
	)

	var lastErr error
	for attempt := 1; attempt <= e.retries+1; attempt++ {
		out, err := e.runOnce(ctx, prompt, dir)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil || !daacserrors.IsRetryable(err) {
			return "", err
		}
		e.logger.Warn("assistant attempt failed", "client", e.client, "attempt", attempt, "error", err.Error())

		if attempt <= e.retries && e.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}
	}
	return "", lastErr
}

func (e *Executor) runOnce(ctx context.Context, prompt, dir string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.backend.Command(), e.backend.Args(e.model)...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	cli := string(e.backend.Name())

	switch {
	case err == nil:
		out := e.backend.CleanOutput(stdout.String())
		if strings.TrimSpace(out) == "" {
			return "", daacserrors.NewExecutorError(cli+" returned empty output", daacserrors.ErrEmptyResponse).
				WithClient(e.client).WithCLI(cli)
		}
		return out, nil
	case errors.Is(err, exec.ErrNotFound):
		return "", daacserrors.NewExecutorError(cli+" CLI not found", daacserrors.ErrExecutorNotFound).
			WithClient(e.client).WithCLI(cli)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		msg := fmt.Sprintf("Timeout after %s", e.timeout)
		return "", daacserrors.NewExecutorError(msg, daacserrors.ErrTimeout).
			WithClient(e.client).WithCLI(cli).WithOutput(msg)
	}

	output := strings.TrimSpace(stderr.String())
	cause := daacserrors.ErrExecutorFailed
	if replan.IsPermissionError(output) || replan.IsPermissionError(stdout.String()) {
		cause = daacserrors.ErrPermissionDenied
	}
	execErr := daacserrors.NewExecutorError(output, cause).WithClient(e.client).WithCLI(cli).WithOutput(output)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr = execErr.WithExitCode(exitErr.ExitCode())
	}
	return "", execErr
}

// Version returns the CLI's version string.
func (e *Executor) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, e.backend.Command(), e.backend.VersionArgs()...)
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", daacserrors.NewExecutorError(string(e.backend.Name())+" CLI not found", daacserrors.ErrExecutorNotFound)
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ErrorText renders an executor failure the way results are recorded in
// history: "Error: <stderr>" so downstream phrase matching still sees the
// CLI's own words.
func ErrorText(err error) string {
	var execErr *daacserrors.ExecutorError
	if errors.As(err, &execErr) && execErr.Output != "" {
		return "Error: " + execErr.Output
	}
	return "Error: " + err.Error()
}
