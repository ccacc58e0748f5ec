// Package planner turns a goal into an ordered list of executable actions for
// the single-track loop, reviews each action's result and proposes follow-up
// actions after a failure.
package planner

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
)

// Action types.
const (
	TypeShell    = "shell"
	TypeEdit     = "edit"
	TypeTest     = "test"
	TypeCodegen  = "codegen"
	TypeRefactor = "refactor"
	TypeBuild    = "build"
	TypeDeploy   = "deploy"
)

// Executor clients.
const (
	ClientBackend  = "backend"
	ClientFrontend = "frontend"
)

// DevInstruction is the only action kind.
const DevInstruction = "dev_instruction"

// Action is one planned step. Actions are not modified once sanitized into a
// plan.
type Action struct {
	Action      string   `json:"action" yaml:"action"`
	Type        string   `json:"type" yaml:"type" validate:"required,oneof=shell edit test codegen refactor build deploy"`
	Instruction string   `json:"instruction" yaml:"instruction" validate:"required"`
	Verify      []string `json:"verify" yaml:"verify"`
	Comment     string   `json:"comment" yaml:"comment"`
	Targets     []string `json:"targets" yaml:"targets"`
	Client      string   `json:"client" yaml:"client" validate:"required,oneof=backend frontend"`
}

// Plan is an ordered action list with a cursor. The cursor only moves
// forward through NextInstruction; the loop may rewind it by one to retry.
type Plan struct {
	Goal          string   `json:"goal" yaml:"goal"`
	Actions       []Action `json:"actions" yaml:"actions"`
	Cursor        int      `json:"current_index" yaml:"current_index"`
	NextGoal      string   `json:"next_goal,omitempty" yaml:"next_goal,omitempty"`
	Mode          string   `json:"mode" yaml:"mode"`
	Constraints   bool     `json:"constraints_enabled" yaml:"constraints_enabled"`
	NeedsBackend  bool     `json:"needs_backend" yaml:"needs_backend"`
	NeedsFrontend bool     `json:"needs_frontend" yaml:"needs_frontend"`
}

// Remaining returns the actions at and after the cursor.
func (p *Plan) Remaining() []Action {
	if p.Cursor >= len(p.Actions) {
		return nil
	}
	return p.Actions[p.Cursor:]
}

// Splice puts actions in front of the remaining ones and resets the cursor.
func (p *Plan) Splice(actions []Action) {
	merged := make([]Action, 0, len(actions)+len(p.Remaining()))
	merged = append(merged, actions...)
	merged = append(merged, p.Remaining()...)
	p.Actions = merged
	p.Cursor = 0
}

// Rewind moves the cursor back one step so the last action runs again.
func (p *Plan) Rewind() {
	if p.Cursor > 0 {
		p.Cursor--
	}
}

// clientsNeeded derives the track flags from the actions' clients.
func (p *Plan) clientsNeeded() {
	p.NeedsBackend, p.NeedsFrontend = false, false
	for _, a := range p.Actions {
		switch a.Client {
		case ClientBackend:
			p.NeedsBackend = true
		case ClientFrontend:
			p.NeedsFrontend = true
		}
	}
}

var (
	actionValidator     *validator.Validate
	actionValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	actionValidatorOnce.Do(func() {
		actionValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return actionValidator
}

// Validate checks the action's type, client and instruction.
func (a Action) Validate() error {
	err := getValidator().Struct(a)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", strings.ToLower(fe.Field()), fe.Tag(), fe.Value()))
	}
	first := fieldErrs[0]
	return daacserrors.NewValidationError("invalid action: "+strings.Join(msgs, "; ")).
		WithField(strings.ToLower(first.Field())).
		WithValue(first.Value())
}
