// Package session provides the CLI command that runs a dual-track
// generation session end to end.
package session

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/event"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/workflow"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Generate a full-stack project for a goal",
	Long: `Run plans the goal, generates the backend and frontend tracks, verifies
each track, judges their API compatibility and replans until the project
is delivered or a ceiling is reached.

Generated files land in <execution.project_root>/project_<id>/{backend,frontend};
run logs land in <execution.log_dir>/<session-id>.

Examples:
  # Run with the configured LLM sources
  daacs run "todo list with a REST API"

  # Dry run with canned responses
  daacs run --mock "health check page"

  # Run both tracks concurrently
  daacs run --parallel "blog with comments"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runMock        bool
	runParallel    bool
	runSessionID   string
	runWatchStrays bool
	runQuiet       bool
)

func init() {
	runCmd.Flags().BoolVar(&runMock, "mock", false, "Use canned mock responses for every role")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "Run the backend and frontend tracks concurrently (overrides execution.parallel_execution)")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "Session ID (default: generated daacs-xxxxxxxx)")
	runCmd.Flags().BoolVar(&runWatchStrays, "watch-strays", true, "Report files written outside the track directories")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final summary")
}

// RegisterRunCmd registers the run command with the given parent command.
func RegisterRunCmd(parent *cobra.Command) {
	parent.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// Apply config file settings, CLI flags override
	if runMock {
		cfg.UseMock()
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Execution.ParallelExecution = runParallel
	}

	logger, err := logging.NewLogger(cfg.Execution.LogDir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	out := cmd.OutOrStdout()
	r := newRenderer(out)
	bus := event.NewBus(logger)
	if !runQuiet {
		r.subscribe(bus)
	}

	wf, err := workflow.Compile(cfg, workflow.Deps{
		Logger:      logger,
		Bus:         bus,
		WatchStrays: runWatchStrays,
	})
	if err != nil {
		return fmt.Errorf("failed to prepare workflow: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []workflow.RunOption
	if runSessionID != "" {
		opts = append(opts, workflow.WithSessionID(runSessionID))
	}

	r.header(goal, wf.Sources(), cfg.Execution)

	var (
		final  *workflow.State
		runErr error
	)
	// The stream must be drained even after an error so the run can finish.
	for u := range wf.Stream(ctx, goal, opts...) {
		if u.Err != nil {
			runErr = u.Err
		}
		if u.State != nil {
			final = u.State
		}
		if u.Err == nil && !runQuiet {
			r.step(u)
		}
	}
	if runErr != nil {
		return fmt.Errorf("workflow aborted: %w", runErr)
	}
	if final == nil {
		return fmt.Errorf("workflow produced no state")
	}

	r.summary(final, cfg.Execution.LogDir)
	if final.FinalStatus == workflow.FinalFailed {
		return fmt.Errorf("run %s failed: %s", final.SessionID, final.StopReason)
	}
	return nil
}
