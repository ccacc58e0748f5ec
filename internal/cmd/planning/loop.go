package planning

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Iron-Ham/daacs/internal/cmd/styles"
	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/loop"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var loopCmd = &cobra.Command{
	Use:   "loop <goal>",
	Short: "Run the single-track plan, execute and review loop",
	Long: `Loop plans the goal into actions, hands each action to the backend or
frontend client, reviews the result with the action's checks and replans
after failures until the plan completes or a ceiling is reached.

Examples:
  # Run in the current directory
  daacs loop "add a /health endpoint to app.py"

  # Run against another directory with a custom scenario id
  daacs loop --dir ./svc --scenario smoke-1 "fix the failing tests"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoop,
}

var (
	loopMock       bool
	loopDir        string
	loopScenarioID string
	loopScenario   string
)

func init() {
	loopCmd.Flags().BoolVar(&loopMock, "mock", false, "Use canned mock responses for every role")
	loopCmd.Flags().StringVar(&loopDir, "dir", ".", "Directory the clients work in")
	loopCmd.Flags().StringVar(&loopScenarioID, "scenario", "", "Scenario ID (default: unix timestamp)")
	loopCmd.Flags().StringVar(&loopScenario, "scenario-type", "", "Scenario type recorded in the history")
}

// RegisterLoopCmd registers the loop command with the given parent command.
func RegisterLoopCmd(parent *cobra.Command) {
	parent.AddCommand(loopCmd)
}

func runLoop(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, logger, err := setup(loopMock)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	workDir, err := filepath.Abs(loopDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", loopDir, err)
	}

	p, err := newPlanner(cfg, logger)
	if err != nil {
		return err
	}
	clients := make(map[string]llm.Source, 2)
	for _, role := range []string{config.RoleBackend, config.RoleFrontend} {
		src, err := llm.NewFromConfig(cfg, role, logger)
		if err != nil {
			return fmt.Errorf("failed to create %s source: %w", role, err)
		}
		clients[role] = src
	}

	opts := []loop.Option{
		loop.WithLogger(logger),
		loop.WithMode(cfg.Execution.Mode),
		loop.WithLimits(cfg.Execution.MaxTurns, cfg.Execution.MaxFailures),
		loop.WithClientTimeout(cfg.Execution.ClientTimeout()),
		loop.WithWorkDir(workDir),
		loop.WithScenarioType(loopScenario),
	}
	if loopScenarioID != "" {
		runLog, err := logging.NewRunLog(filepath.Join(cfg.Execution.LogDir, loopScenarioID), logger)
		if err != nil {
			return err
		}
		opts = append(opts, loop.WithRunLog(runLog))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := loop.New(p, clients, opts...).Run(ctx, goal, loopScenarioID)
	if res != nil {
		printLoopResult(cmd, res)
	}
	if err != nil {
		return err
	}
	if !res.Completed {
		return fmt.Errorf("loop stopped: %s", res.StopReason)
	}
	return nil
}

func printLoopResult(cmd *cobra.Command, res *loop.Result) {
	out := cmd.OutOrStdout()
	for _, h := range res.History {
		instruction, _ := h.Action["instruction"].(string)
		fmt.Fprintf(out, "%s turn %d  %s\n", styles.Check(h.Review.Success), h.Turn, instruction)
		if !h.Review.Success && h.Review.Verify.Summary != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(h.Review.Verify.Summary))
		}
	}

	status := styles.SuccessMsg.Render("completed")
	if !res.Completed {
		status = styles.ErrorMsg.Render("stopped")
	}
	rows := []string{
		styles.Row("Goal", res.Goal),
		styles.Row("Status", status),
		styles.Row("Reason", res.StopReason),
		styles.Row("Turns", fmt.Sprintf("%d", res.Turns)),
	}
	if res.Plan != nil {
		rows = append(rows, styles.Row("Actions", fmt.Sprintf("%d", len(res.Plan.Actions))))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.SummaryBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}
