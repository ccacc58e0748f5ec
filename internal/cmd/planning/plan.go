// Package planning provides the CLI commands for the single-track planner:
// previewing a plan, validating a saved plan and running the action loop.
package planning

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/planner"
	"github.com/Iron-Ham/daacs/internal/verify"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Preview the action plan for a goal",
	Long: `Plan asks the orchestrator for an ordered list of actions that would
achieve the goal and prints it without executing anything. Invalid or
missing model output falls back to the built-in plan.

Examples:
  # Print the plan as YAML
  daacs plan "add a health endpoint"

  # Save the plan as JSON
  daacs plan --format json --output plan.json "add a health endpoint"

  # Preview with canned responses
  daacs plan --mock "add a health endpoint"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

var (
	planFormat     string
	planOutputFile string
	planMock       bool
)

func init() {
	planCmd.Flags().StringVar(&planFormat, "format", "yaml", "Output format: 'yaml' or 'json'")
	planCmd.Flags().StringVarP(&planOutputFile, "output", "o", "", "Write the plan to a file instead of stdout")
	planCmd.Flags().BoolVar(&planMock, "mock", false, "Use canned mock responses for every role")
}

// RegisterPlanCmd registers the plan command with the given parent command.
func RegisterPlanCmd(parent *cobra.Command) {
	parent.AddCommand(planCmd)
}

// setup loads the configuration and opens the debug log shared by the
// planning commands.
func setup(mock bool) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if mock {
		cfg.UseMock()
	}
	logger, err := logging.NewLogger(cfg.Execution.LogDir, cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func newPlanner(cfg *config.Config, logger *logging.Logger) (*planner.Planner, error) {
	src, err := llm.NewFromConfig(cfg, config.RoleOrchestrator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator source: %w", err)
	}
	engine := verify.NewEngine(verify.WithLogger(logger))
	return planner.New(src, engine,
		planner.WithLogger(logger),
		planner.WithMode(cfg.Execution.Mode),
		planner.WithTimeout(cfg.Execution.PlannerTimeout()),
	), nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	switch planFormat {
	case "yaml", "json":
	default:
		return fmt.Errorf("invalid output format: %s (use 'yaml' or 'json')", planFormat)
	}

	cfg, logger, err := setup(planMock)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	p, err := newPlanner(cfg, logger)
	if err != nil {
		return err
	}
	plan := p.CreatePlan(cmd.Context(), strings.Join(args, " "))

	if planOutputFile == "" {
		return writePlan(cmd.OutOrStdout(), plan, planFormat)
	}

	f, err := os.Create(planOutputFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", planOutputFile, err)
	}
	if err := writePlan(f, plan, planFormat); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", planOutputFile, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plan with %d actions saved to %s\n", len(plan.Actions), planOutputFile)
	fmt.Fprintf(cmd.OutOrStdout(), "Check it with: daacs validate %s\n", planOutputFile)
	return nil
}

func writePlan(w io.Writer, plan *planner.Plan, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return enc.Close()
}

// LoadPlanFromFile reads a plan saved by the plan command. JSON plans parse
// through the YAML decoder.
func LoadPlanFromFile(path string) (*planner.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var plan planner.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &plan, nil
}
