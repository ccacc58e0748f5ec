// Package project provides the CLI command that checks generated project
// files outside of a run.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Iron-Ham/daacs/internal/cmd/styles"
	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/verify"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <kind> [files...]",
	Short: "Run the verification checks for a kind of artifact",
	Long: `Verify runs the checks registered for a kind against the given files and
prints one verdict per check.

Track kinds check generated projects: backend, frontend, backend_full and
frontend_full. Action kinds (shell, edit, files, test, lint, build, deploy,
codegen, refactor) check loop results; pass command output with
--output-file and --exit-code.

Examples:
  # Syntax and import checks of a generated backend
  daacs verify backend --dir project_1/backend main.py models.py

  # Endpoint coverage against a planned API spec
  daacs verify backend --dir project_1/backend --api-spec api.json main.py

  # Judge captured test output
  daacs verify test --output-file pytest.log --exit-code 1

  # Run an explicit list of checks
  daacs verify files --checks files_exist,files_not_empty README.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

var (
	verifyDir        string
	verifyOutputFile string
	verifyExitCode   int
	verifyAPISpec    string
	verifyChecks     []string
	verifyJSON       bool
)

func init() {
	verifyCmd.Flags().StringVar(&verifyDir, "dir", "", "Directory that relative file paths resolve against")
	verifyCmd.Flags().StringVar(&verifyOutputFile, "output-file", "", "File holding command output to judge")
	verifyCmd.Flags().IntVar(&verifyExitCode, "exit-code", 0, "Exit status of the command that produced the output")
	verifyCmd.Flags().StringVar(&verifyAPISpec, "api-spec", "", "JSON file with the planned API spec (endpoints, data models)")
	verifyCmd.Flags().StringSliceVar(&verifyChecks, "checks", nil, "Explicit check specs to run instead of the kind's set")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the result as JSON")
}

// RegisterVerifyCmd registers the verify command with the given parent command.
func RegisterVerifyCmd(parent *cobra.Command) {
	parent.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Execution.LogDir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	engine := verify.NewEngine(verify.WithLogger(logger))
	kind := verify.Kind(strings.ToLower(args[0]))
	if !slices.Contains(engine.Kinds(), kind) && len(verifyChecks) == 0 {
		return fmt.Errorf("unknown kind: %s (known: %s)", kind, joinKinds(engine.Kinds()))
	}

	req := verify.Request{Kind: kind, Files: args[1:], Dir: verifyDir}
	if verifyOutputFile != "" {
		data, err := os.ReadFile(verifyOutputFile)
		if err != nil {
			return fmt.Errorf("failed to read output file: %w", err)
		}
		req.Output = string(data)
	}
	if cmd.Flags().Changed("exit-code") {
		code := verifyExitCode
		req.ExitCode = &code
	}
	if verifyAPISpec != "" {
		spec, err := readAPISpec(verifyAPISpec)
		if err != nil {
			return err
		}
		req.APISpec = spec
	}

	var res verify.Result
	if len(verifyChecks) > 0 {
		res = engine.RunChecks(cmd.Context(), verifyChecks, req)
	} else {
		res = engine.Run(cmd.Context(), req)
	}

	out := cmd.OutOrStdout()
	if verifyJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		for _, v := range res.Verdicts {
			line := fmt.Sprintf("%s %s", styles.Check(v.OK), styles.Label.Render(string(v.Check)))
			if v.Target != "" {
				line += styles.Muted.Render("["+v.Target+"] ")
			}
			line += v.Reason
			fmt.Fprintln(out, line)
			if v.Detail != "" {
				fmt.Fprintln(out, "    "+styles.Muted.Render(v.Detail))
			}
		}
		fmt.Fprintln(out)
		if res.OK {
			fmt.Fprintln(out, styles.SuccessMsg.Render(res.Summary))
		} else {
			fmt.Fprintln(out, styles.ErrorMsg.Render(res.Summary))
		}
	}

	if !res.OK {
		return fmt.Errorf("verification failed: %d check(s) failed", len(res.FailedChecks()))
	}
	return nil
}

func readAPISpec(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read api spec: %w", err)
	}
	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse api spec: %w", err)
	}
	return spec, nil
}

func joinKinds(kinds []verify.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
