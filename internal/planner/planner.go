package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/replan"
	"github.com/Iron-Ham/daacs/internal/util"
	"github.com/Iron-Ham/daacs/internal/verify"
)

// MaxFailedStreak is the consecutive review failures after which PlanNext
// stops.
const MaxFailedStreak = 3

// Stop reasons reported by PlanNext.
const (
	StopFailedStreak     = "failed_streak_exceeded"
	StopPermissionDenied = "permission_denied_rollout"
)

// Checker runs an explicit list of check specs.
type Checker interface {
	RunChecks(ctx context.Context, specs []string, req verify.Request) verify.Result
}

// Review is the outcome of one action's result.
type Review struct {
	Success    bool          `json:"success"`
	NeedsRetry bool          `json:"needs_retry"`
	IsComplete bool          `json:"is_complete"`
	Verify     verify.Result `json:"verify"`
}

// Feedback records an executed action for the next PlanNext.
type Feedback struct {
	Action Action `json:"action"`
	Result string `json:"result"`
	Review Review `json:"review"`
}

// NextStep is PlanNext's decision.
type NextStep struct {
	Stop        bool     `json:"stop"`
	Reason      string   `json:"reason,omitempty"`
	NextGoal    string   `json:"next_goal"`
	NextActions []Action `json:"next_actions"`
}

// Planner creates and revises action plans. It is safe for concurrent use,
// though a single loop drives it in practice.
type Planner struct {
	source  llm.Source
	checker Checker
	logger  *logging.Logger

	mode        string
	constraints bool
	timeout     time.Duration
	workDir     string

	mu           sync.Mutex
	cursor       int
	total        int
	feedback     []Feedback
	failedStreak int
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMode sets test or prod mode. Test mode adds output constraints to the
// prompt.
func WithMode(mode string) Option {
	return func(p *Planner) {
		p.mode = strings.ToLower(mode)
		p.constraints = p.mode != "prod"
	}
}

// WithTimeout bounds the planning model call.
func WithTimeout(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithWorkDir sets the directory that file checks resolve against.
func WithWorkDir(dir string) Option {
	return func(p *Planner) {
		p.workDir = dir
	}
}

// New creates a planner. A nil source always uses the fallback plan.
func New(source llm.Source, checker Checker, opts ...Option) *Planner {
	p := &Planner{
		source:      source,
		checker:     checker,
		logger:      logging.NopLogger(),
		mode:        "test",
		constraints: true,
		timeout:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreatePlan asks the model for actions and falls back to a built-in plan on
// any failure. Every accepted action is sanitized.
func (p *Planner) CreatePlan(ctx context.Context, goal string) *Plan {
	p.logger.Info("planning", "goal", goal)

	actions, nextGoal := p.modelActions(ctx, goal)
	if len(actions) == 0 {
		actions = FallbackActions(goal)
	}

	plan := &Plan{
		Goal:        goal,
		Actions:     Sanitize(actions),
		NextGoal:    nextGoal,
		Mode:        p.mode,
		Constraints: p.constraints,
	}
	plan.clientsNeeded()

	p.mu.Lock()
	p.cursor = 0
	p.total = len(plan.Actions)
	p.mu.Unlock()
	return plan
}

// modelActions returns the valid actions of the model's plan, or nil.
func (p *Planner) modelActions(ctx context.Context, goal string) ([]Action, string) {
	if p.source == nil {
		return nil, ""
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.source.Invoke(callCtx, formatPrompt(goal, p.constraints))
	if err != nil {
		p.logger.Warn("planner call failed, using fallback", "error", err.Error())
		return nil, ""
	}
	obj, err := llm.ParseJSON(raw)
	if err != nil {
		p.logger.Warn("planner response is not JSON, using fallback", "error", err.Error())
		return nil, ""
	}
	if err := llm.ValidateSchema(obj, planSchema); err != nil {
		p.logger.Warn("planner response rejected, using fallback", "error", err.Error())
		return nil, ""
	}

	var parsed schemaHint
	buf, _ := json.Marshal(obj)
	if err := json.Unmarshal(buf, &parsed); err != nil {
		p.logger.Warn("planner response has unexpected shape, using fallback", "error", err.Error())
		return nil, ""
	}

	var valid []Action
	for _, a := range Sanitize(parsed.Actions) {
		if err := a.Validate(); err != nil {
			p.logger.Warn("dropping invalid action", "error", err.Error())
			continue
		}
		valid = append(valid, a)
	}
	if len(valid) == 0 {
		p.logger.Failure("planner returned no usable actions, using fallback", daacserrors.ErrEmptyPlan)
		return nil, ""
	}
	p.logger.Info("model actions accepted", "count", len(valid))
	return valid, parsed.NextGoal
}

// FallbackActions is the deterministic plan used when the model cannot
// produce one: a file listing for listing goals, else a pass-through.
func FallbackActions(goal string) []Action {
	lower := strings.ToLower(goal)
	if util.ContainsAny(lower, ListingFile, "파일 목록") {
		return []Action{{
			Action: DevInstruction,
			Type:   TypeShell,
			Instruction: "List all non-hidden files and directories (exclude dotfiles) in the current folder and save them to files.txt. " +
				"Use `" + ListingCommand + "`. " +
				"Do NOT use ls -a. Exclude files.txt from the output. Sort the names one per line. If files.txt exists, overwrite it.",
			Verify:  append([]string(nil), listingChecks...),
			Comment: "Create a file list",
			Targets: []string{ListingFile},
			Client:  ClientFrontend,
		}}
	}
	return []Action{{
		Action:      DevInstruction,
		Type:        TypeShell,
		Instruction: "Please implement the following: " + goal,
		Verify:      []string{},
		Comment:     "pass-through instruction",
		Targets:     []string{},
		Client:      ClientFrontend,
	}}
}

// NextInstruction returns the action at the cursor and advances it, or
// false when the plan is exhausted.
func (p *Planner) NextInstruction(plan *Plan) (Action, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = len(plan.Actions)
	if plan.Cursor >= len(plan.Actions) {
		p.cursor = plan.Cursor
		return Action{}, false
	}
	a := plan.Actions[plan.Cursor]
	plan.Cursor++
	p.cursor = plan.Cursor
	return a, true
}

// errorMarkers fail a result outright.
var errorMarkers = []string{"Error", "Exception"}

// ReviewResult checks result against the action's declared checks.
func (p *Planner) ReviewResult(ctx context.Context, action Action, result string) Review {
	var res verify.Result
	marker := firstMarker(result)
	switch {
	case strings.TrimSpace(result) == "":
		res = resultFailure("result is empty")
	case marker != "":
		res = resultFailure("result contains " + strings.ToLower(marker))
	case len(action.Verify) == 0 || p.checker == nil:
		res = verify.Result{OK: true, Summary: verify.AllPassedSummary}
	default:
		res = p.checker.RunChecks(ctx, action.Verify, verify.Request{
			Kind:   verify.Kind(action.Type),
			Dir:    p.workDir,
			Output: result,
		})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if res.OK {
		p.failedStreak = 0
	} else {
		p.failedStreak++
	}
	return Review{
		Success:    res.OK,
		NeedsRetry: !res.OK,
		IsComplete: p.cursor >= p.total,
		Verify:     res,
	}
}

func resultFailure(reason string) verify.Result {
	return verify.Result{
		OK:       false,
		Verdicts: []verify.Verdict{{OK: false, Check: "result", Reason: reason}},
		Summary:  "Failed: " + reason,
	}
}

func firstMarker(result string) string {
	for _, m := range errorMarkers {
		if strings.Contains(result, m) {
			return m
		}
	}
	return ""
}

// AddFeedback records an executed action for PlanNext.
func (p *Planner) AddFeedback(action Action, result string, review Review) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feedback = append(p.feedback, Feedback{Action: action, Result: result, Review: review})
}

// FailedStreak returns the consecutive review failures.
func (p *Planner) FailedStreak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failedStreak
}

// ResetStreak clears the failure streak, used when a new plan replaces the
// old one.
func (p *Planner) ResetStreak() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failedStreak = 0
}

// PlanNext decides how to continue after a failed action: stop, or follow-up
// actions keyed on which checks failed. The goal is kept.
func (p *Planner) PlanNext(goal string) NextStep {
	p.mu.Lock()
	streak := p.failedStreak
	var last *Feedback
	if len(p.feedback) > 0 {
		fb := p.feedback[len(p.feedback)-1]
		last = &fb
	}
	p.mu.Unlock()

	if streak >= MaxFailedStreak {
		return NextStep{Stop: true, Reason: StopFailedStreak, NextGoal: goal}
	}
	if last == nil {
		return NextStep{NextGoal: goal}
	}

	resultLower := strings.ToLower(last.Result)
	if replan.IsPermissionError(last.Result) || strings.Contains(resultLower, "operation not permitted") {
		return NextStep{Stop: true, Reason: StopPermissionDenied, NextGoal: goal}
	}

	var filesFail, testsFail, lintFail, buildFail bool
	for _, id := range last.Review.Verify.FailedChecks() {
		name := string(id)
		filesFail = filesFail || strings.HasPrefix(name, "files_")
		testsFail = testsFail || strings.Contains(name, "tests")
		lintFail = lintFail || strings.Contains(name, "lint")
		buildFail = buildFail || strings.Contains(name, "build")
	}
	testsFail = testsFail || strings.Contains(resultLower, "assert")
	buildFail = buildFail || strings.Contains(resultLower, "build failed")
	timedOut := util.ContainsAny(resultLower, "timeout", "timed out")

	typ := last.Action.Type
	var next []Action
	add := func(actionType, instruction, comment string, targets []string, client string, checks ...string) {
		if checks == nil {
			checks = VerifyTemplate(actionType)
		}
		next = append(next, Action{
			Action:      DevInstruction,
			Type:        actionType,
			Instruction: instruction,
			Verify:      checks,
			Comment:     comment,
			Targets:     targets,
			Client:      client,
		})
	}

	if typ == TypeShell && filesFail {
		add(TypeShell,
			"List both files and directories (non-hidden) at repo root using `"+ListingCommand+"`.",
			"Use find to include directories and avoid repeated listing failures",
			[]string{ListingFile}, ClientFrontend, listingChecks...)
	}
	if testsFail {
		add(TypeTest,
			"Rerun tests with verbose output, capture failing cases, fix blocking issues, and rerun tests until they pass.",
			"Retry tests after addressing failures", nil, ClientBackend)
	}
	if lintFail {
		add(TypeRefactor,
			"Run lint (e.g., ruff/flake8/pylint), fix reported issues, and rerun lint to ensure a clean result.",
			"Resolve lint blockers", nil, ClientBackend)
	}
	if buildFail || typ == TypeBuild {
		add(TypeBuild,
			"Inspect build logs, fix errors, and rerun the same build command to confirm success.",
			"Retry build after fixing errors", nil, ClientBackend)
	}
	if (typ == TypeCodegen || typ == TypeRefactor) && !testsFail && !lintFail {
		add(TypeTest,
			"Run the project's tests to validate the generated changes; fix any failing cases and rerun.",
			"Validate generated code with tests", nil, ClientBackend)
	}
	if typ == TypeDeploy {
		add(TypeBuild,
			"Ensure the build succeeds before deploy; rerun the build command and fix any errors.",
			"Prepare for deploy", nil, ClientBackend)
		add(TypeDeploy,
			"Retry deploy after build success; capture deploy logs and ensure no permission issues.",
			"Retry deploy after build", nil, ClientBackend)
	}
	if timedOut && (typ == TypeCodegen || typ == TypeRefactor || typ == TypeBuild || typ == TypeDeploy) {
		next = append(next, skeletonActions()...)
	}

	if len(next) == 0 {
		return NextStep{NextGoal: goal}
	}
	return NextStep{NextGoal: goal, NextActions: Sanitize(next)}
}

// skeletonActions breaks a heavyweight step that timed out into small ones.
func skeletonActions() []Action {
	return []Action{
		{
			Action:      DevInstruction,
			Type:        TypeShell,
			Instruction: "Create project skeleton folders: mkdir -p project && cd project && mkdir -p app tests && touch app/__init__.py tests/__init__.py",
			Verify:      []string{},
			Comment:     "Ensure directories exist for skeleton",
			Client:      ClientFrontend,
		},
		{
			Action:      DevInstruction,
			Type:        TypeCodegen,
			Instruction: "Create app/main.py with a minimal in-memory store and a simple CLI entry guarded by __name__ == '__main__'. Keep it concise.",
			Verify:      []string{},
			Comment:     "Minimal app entrypoint",
			Client:      ClientFrontend,
		},
		{
			Action:      DevInstruction,
			Type:        TypeCodegen,
			Instruction: "Create tests/test_basic.py with a minimal pytest test for the store; keep it short.",
			Verify:      VerifyTemplate(TypeTest),
			Comment:     "Add a basic test to validate codegen",
			Client:      ClientBackend,
		},
		{
			Action:      DevInstruction,
			Type:        TypeTest,
			Instruction: "Run pytest -q to validate the skeleton and capture failures; fix blocking issues if any.",
			Verify:      VerifyTemplate(TypeTest),
			Comment:     "Validate skeleton with tests",
			Client:      ClientBackend,
		},
	}
}

// String renders a one-line description of an action for logs.
func (a Action) String() string {
	return fmt.Sprintf("[%s/%s] %s", a.Type, a.Client, a.Instruction)
}
