package planning

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Iron-Ham/daacs/internal/cmd/styles"
	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/planner"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Validate a saved action plan",
	Long: `Validate checks every action in a plan file written by 'daacs plan --output'.
Each action must have a known type, a backend or frontend client and a
non-empty instruction.

Exit codes:
  0 - Plan is valid
  1 - Plan is invalid or could not be read

Examples:
  daacs validate plan.yaml
  daacs validate --json plan.json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output validation results as JSON")
}

// RegisterValidateCmd registers the validate command with the given parent command.
func RegisterValidateCmd(parent *cobra.Command) {
	parent.AddCommand(validateCmd)
}

// ActionProblem is one invalid action in a plan.
type ActionProblem struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ValidationOutput is the JSON shape of a validation run.
type ValidationOutput struct {
	Valid      bool            `json:"valid"`
	FilePath   string          `json:"file_path"`
	Actions    int             `json:"actions"`
	Problems   []ActionProblem `json:"problems,omitempty"`
	ParseError string          `json:"parse_error,omitempty"`
}

// ValidatePlan checks each action of plan. An empty plan is invalid.
func ValidatePlan(plan *planner.Plan) []ActionProblem {
	if len(plan.Actions) == 0 {
		return []ActionProblem{{Index: -1, Message: daacserrors.ErrEmptyPlan.Error()}}
	}
	var problems []ActionProblem
	for i, a := range plan.Actions {
		if err := a.Validate(); err != nil {
			problems = append(problems, ActionProblem{Index: i, Message: err.Error()})
		}
	}
	return problems
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	out := cmd.OutOrStdout()

	plan, err := LoadPlanFromFile(filePath)
	if err != nil {
		if validateJSON {
			return outputJSON(out, ValidationOutput{FilePath: filePath, ParseError: err.Error()})
		}
		return err
	}

	problems := ValidatePlan(plan)
	result := ValidationOutput{
		Valid:    len(problems) == 0,
		FilePath: filePath,
		Actions:  len(plan.Actions),
		Problems: problems,
	}
	if validateJSON {
		return outputJSON(out, result)
	}
	return outputHuman(out, plan, result)
}

// outputJSON prints the result and returns a silentError when the plan is
// invalid so the exit code is 1 without a duplicate message.
func outputJSON(w io.Writer, output ValidationOutput) error {
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))

	if !output.Valid {
		return &silentError{}
	}
	return nil
}

// silentError signals that validation failed but output was already provided.
type silentError struct{}

func (e *silentError) Error() string {
	return "validation failed"
}

func outputHuman(w io.Writer, plan *planner.Plan, result ValidationOutput) error {
	fmt.Fprintf(w, "Validating: %s\n\n", result.FilePath)
	fmt.Fprintln(w, styles.Row("Goal", plan.Goal))
	fmt.Fprintln(w, styles.Row("Actions", fmt.Sprintf("%d", len(plan.Actions))))
	fmt.Fprintln(w)

	for i, a := range plan.Actions {
		ok := true
		for _, p := range result.Problems {
			if p.Index == i {
				ok = false
			}
		}
		fmt.Fprintf(w, "%s %d. %s\n", styles.Check(ok), i+1, a)
	}

	if result.Valid {
		fmt.Fprintln(w, "\nStatus: "+styles.SuccessMsg.Render("VALID"))
		return nil
	}

	fmt.Fprintln(w, "\nStatus: "+styles.ErrorMsg.Render("INVALID"))
	for _, p := range result.Problems {
		if p.Index < 0 {
			fmt.Fprintf(w, "  - %s\n", p.Message)
			continue
		}
		fmt.Fprintf(w, "  - [%d] %s\n", p.Index+1, p.Message)
	}
	return fmt.Errorf("plan validation failed with %d problem(s)", len(result.Problems))
}
