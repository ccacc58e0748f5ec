// Package loop runs a single-track plan: each action is sent to one executor
// client, its result is reviewed against the action's checks, and failures
// are handled by splicing follow-up actions, retrying with backoff or
// regenerating the plan.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/planner"
	"github.com/Iron-Ham/daacs/internal/replan"
	"github.com/Iron-Ham/daacs/internal/retry"
)

// State is a loop state.
type State string

// Loop states.
const (
	StateAwaiting   State = "awaiting_action"
	StateExecuting  State = "executing"
	StateReviewing  State = "reviewing"
	StateReplanning State = "replanning"
	StateDone       State = "done"
)

// Stop reasons set by the loop itself. The planner adds its own.
const (
	StopConsecutiveFailures = "orchestrator_consecutive_failures"
	StopMaxTurns            = "max_turns_reached"
	StopRetriesExhausted    = "retries_exhausted"
	StopCanceled            = "canceled"
)

// Defaults.
const (
	DefaultMaxTurns         = 10
	DefaultMaxFailures      = 5
	DefaultMaxRetries       = 2
	DefaultMaxRegenerations = 3
)

// ActionPlanner is the planner surface the loop drives.
type ActionPlanner interface {
	CreatePlan(ctx context.Context, goal string) *planner.Plan
	NextInstruction(plan *planner.Plan) (planner.Action, bool)
	ReviewResult(ctx context.Context, action planner.Action, result string) planner.Review
	AddFeedback(action planner.Action, result string, review planner.Review)
	PlanNext(goal string) planner.NextStep
	ResetStreak()
}

// HistoryEntry is one line of turns.jsonl for the single-track loop.
type HistoryEntry struct {
	Turn                int             `json:"turn"`
	Goal                string          `json:"goal"`
	Mode                string          `json:"mode"`
	ConstraintsEnabled  bool            `json:"constraints_enabled"`
	ScenarioID          string          `json:"scenario_id"`
	ScenarioType        string          `json:"scenario_type"`
	StopReason          string          `json:"stop_reason"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastFailedVerdicts  []verdictRecord `json:"last_failed_verdicts"`
	FailureType         string          `json:"failure_type"`
	FailureSummary      []string        `json:"failure_summary"`
	CurrentGoal         string          `json:"current_goal"`
	Action              map[string]any  `json:"action"`
	Result              string          `json:"result"`
	Review              planner.Review  `json:"review"`
	Timestamp           time.Time       `json:"timestamp"`
	Retry               *retryAttempts  `json:"retry,omitempty"`
}

type verdictRecord struct {
	OK     bool   `json:"ok"`
	Check  string `json:"check"`
	Reason string `json:"reason"`
}

type retryAttempts struct {
	Attempts   int `json:"attempts"`
	MaxRetries int `json:"max_retries"`
}

// Result summarizes a finished loop.
type Result struct {
	Goal       string
	Turns      int
	Completed  bool
	StopReason string
	Plan       *planner.Plan
	History    []HistoryEntry
}

// Runner executes plans.
type Runner struct {
	planner ActionPlanner
	clients map[string]llm.Source
	runLog  *logging.RunLog
	retries *retry.Manager
	logger  *logging.Logger

	mode          string
	constraints   bool
	maxTurns      int
	maxFailures   int
	maxRegens     int
	clientTimeout time.Duration
	workDir       string
	scenarioType  string
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunLog flushes history to the run log when the loop ends.
func WithRunLog(runLog *logging.RunLog) Option {
	return func(r *Runner) {
		r.runLog = runLog
	}
}

// WithMode sets test or prod mode for the history records.
func WithMode(mode string) Option {
	return func(r *Runner) {
		r.mode = mode
		r.constraints = mode != "prod"
	}
}

// WithLimits sets the turn and consecutive-failure ceilings. Non-positive
// values keep the defaults.
func WithLimits(maxTurns, maxFailures int) Option {
	return func(r *Runner) {
		if maxTurns > 0 {
			r.maxTurns = maxTurns
		}
		if maxFailures > 0 {
			r.maxFailures = maxFailures
		}
	}
}

// WithMaxRegenerations sets how often the plan may be regenerated after an
// action runs out of retries. Zero stops at the first exhausted action.
func WithMaxRegenerations(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRegens = n
		}
	}
}

// WithMaxRetries sets how often a failed action is retried in place.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		r.retries = retry.NewManager(n)
	}
}

// WithClientTimeout bounds each executor call.
func WithClientTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.clientTimeout = d
		}
	}
}

// WithWorkDir sets the executors' working directory.
func WithWorkDir(dir string) Option {
	return func(r *Runner) {
		r.workDir = dir
	}
}

// WithScenarioType tags history records.
func WithScenarioType(s string) Option {
	return func(r *Runner) {
		r.scenarioType = s
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

// New creates a runner. clients maps "backend" and "frontend" to executors;
// actions whose client is unknown go to the frontend client.
func New(p ActionPlanner, clients map[string]llm.Source, opts ...Option) *Runner {
	r := &Runner{
		planner:       p,
		clients:       clients,
		retries:       retry.NewManager(DefaultMaxRetries),
		logger:        logging.NopLogger(),
		mode:          "test",
		constraints:   true,
		maxTurns:      DefaultMaxTurns,
		maxFailures:   DefaultMaxFailures,
		maxRegens:     DefaultMaxRegenerations,
		clientTimeout: 180 * time.Second,
		scenarioType:  "default",
		sleep:         sleepCtx,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run holds the mutable state of one Run.
type run struct {
	goal        string
	scenarioID  string
	plan        *planner.Plan
	turn        int
	consecutive int
	regens      int
	stopReason  string
	lastFailed  []verdictRecord
	failureType string
	failureSum  []string
	action      planner.Action
	result      string
	review      planner.Review
	completed   bool
	history     []HistoryEntry
}

// Run plans goal and executes it until the plan completes, a ceiling is hit
// or the planner says stop. The error reports only a failed history flush;
// the loop's own outcome is in Result.
func (r *Runner) Run(ctx context.Context, goal, scenarioID string) (*Result, error) {
	if scenarioID == "" {
		scenarioID = fmt.Sprintf("%d", r.now().Unix())
	}
	logger := r.logger.With("scenario_id", scenarioID)
	logger.Info("starting loop", "goal", goal, "mode", r.mode)

	st := &run{goal: goal, scenarioID: scenarioID}
	st.plan = r.planner.CreatePlan(ctx, goal)
	logger.Info("plan created", "actions", len(st.plan.Actions))

	state := StateAwaiting
	for state != StateDone {
		switch state {
		case StateAwaiting:
			state = r.await(ctx, st, logger)
		case StateExecuting:
			r.execute(ctx, st, logger)
			state = StateReviewing
		case StateReviewing:
			state = r.reviewStep(ctx, st, logger)
		case StateReplanning:
			state = r.replanStep(ctx, st, logger)
		}
	}

	logger.Info("loop finished", "turns", st.turn, "completed", st.completed, "stop_reason", st.stopReason)

	res := &Result{
		Goal:       st.goal,
		Turns:      st.turn,
		Completed:  st.completed,
		StopReason: st.stopReason,
		Plan:       st.plan,
		History:    st.history,
	}
	if r.runLog != nil && len(st.history) > 0 {
		entries := make([]any, len(st.history))
		for i, h := range st.history {
			entries[i] = h
		}
		if err := r.runLog.AppendTurns(entries...); err != nil {
			return res, fmt.Errorf("failed to write history: %w", err)
		}
	}
	return res, nil
}

func (r *Runner) await(ctx context.Context, st *run, logger *logging.Logger) State {
	if ctx.Err() != nil {
		st.stopReason = StopCanceled
		return StateDone
	}
	if st.turn >= r.maxTurns {
		st.stopReason = StopMaxTurns
		logger.Warn("turn ceiling reached", "max_turns", r.maxTurns)
		return StateDone
	}
	action, ok := r.planner.NextInstruction(st.plan)
	if !ok {
		logger.Info("no more actions to execute")
		st.completed = st.consecutive == 0
		return StateDone
	}
	st.turn++
	st.action = action
	return StateExecuting
}

func (r *Runner) execute(ctx context.Context, st *run, logger *logging.Logger) {
	client, name := r.client(st.action.Client)
	logger.Info("executing action", "turn", st.turn, "client", name, "type", st.action.Type)

	if client == nil {
		st.result = "Error: no executor for client " + name
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.clientTimeout)
	defer cancel()
	out, err := client.Invoke(callCtx, st.action.Instruction, llm.WithWorkDir(r.workDir))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = daacserrors.NewTimeoutError(name+" executor call", r.clientTimeout).WithCause(err)
			st.result = fmt.Sprintf("Error: Timeout after %s", r.clientTimeout)
		} else {
			st.result = llm.ErrorText(err)
		}
		logger.Failure("executor call failed", err, "turn", st.turn, "client", name)
		return
	}
	st.result = out
}

func (r *Runner) client(name string) (llm.Source, string) {
	if name == "" {
		name = planner.ClientFrontend
	}
	if c, ok := r.clients[name]; ok {
		return c, name
	}
	return r.clients[planner.ClientFrontend], planner.ClientFrontend
}

func (r *Runner) reviewStep(ctx context.Context, st *run, logger *logging.Logger) State {
	st.review = r.planner.ReviewResult(ctx, st.action, st.result)
	key := retry.Key(st.action.Type, st.action.Instruction)
	failedChecks := make([]string, 0)
	for _, id := range st.review.Verify.FailedChecks() {
		failedChecks = append(failedChecks, string(id))
	}
	r.retries.RecordAttempt(key, st.review.Success, failedChecks, st.review.Verify.Summary)

	if st.review.Success {
		logger.Info("action succeeded", "turn", st.turn)
		st.consecutive = 0
		r.recordReview(st)
		if st.review.IsComplete {
			logger.Info("all actions completed")
			st.completed = true
			return StateDone
		}
		return StateAwaiting
	}

	st.consecutive++
	st.lastFailed = st.lastFailed[:0]
	var reasons []string
	for _, v := range st.review.Verify.Verdicts {
		if !v.OK {
			st.lastFailed = append(st.lastFailed, verdictRecord{OK: false, Check: string(v.Check), Reason: v.Reason})
			reasons = append(reasons, v.Reason)
		}
	}
	st.failureSum = reasons
	st.failureType = ""
	if ft, ok := replan.DetectFailureType(reasons, st.result); ok {
		st.failureType = ft.String()
	}
	logger.Warn("action failed",
		"turn", st.turn,
		"consecutive_failures", st.consecutive,
		"failure_type", st.failureType,
	)
	if st.failureType == replan.PermissionDenied.String() {
		logger.Error("executor lacks permissions; run the assistant with full disk access")
	}

	if st.consecutive >= r.maxFailures {
		st.stopReason = StopConsecutiveFailures
		logger.Warn("consecutive failure ceiling reached", "max_failures", r.maxFailures)
		r.recordReview(st)
		return StateDone
	}
	r.recordReview(st)
	return StateReplanning
}

// recordReview appends the reviewed turn to the history once the failure
// bookkeeping reflects this turn's outcome.
func (r *Runner) recordReview(st *run) {
	r.record(st, actionRecord(st.action), st.result)
	r.planner.AddFeedback(st.action, st.result, st.review)
}

func (r *Runner) replanStep(ctx context.Context, st *run, logger *logging.Logger) State {
	next := r.planner.PlanNext(st.goal)
	if next.Stop {
		st.stopReason = next.Reason
		logger.Warn("planner requested stop", "reason", next.Reason)
		return StateDone
	}

	if len(next.NextActions) > 0 {
		st.plan.Splice(next.NextActions)
		if next.NextGoal != "" {
			st.goal = next.NextGoal
		}
		logger.Info("follow-up actions spliced", "count", len(next.NextActions))
		return StateAwaiting
	}

	key := retry.Key(st.action.Type, st.action.Instruction)
	if r.retries.ShouldRetry(key) {
		st.plan.Rewind()
		delay := retry.Backoff(st.turn)
		logger.Info("retrying action", "delay", delay.String())
		if err := r.sleep(ctx, delay); err != nil {
			st.stopReason = StopCanceled
			return StateDone
		}
		return StateAwaiting
	}

	exhausted := r.retries.Exhausted()
	if next.NextGoal != "" && st.regens < r.maxRegens {
		st.regens++
		st.goal = next.NextGoal
		st.plan = r.planner.CreatePlan(ctx, st.goal)
		r.record(st, map[string]any{"action": "replan", "type": "system"}, "Planner requested new goal; replanning")
		st.history[len(st.history)-1].Review = planner.Review{NeedsRetry: true}
		st.consecutive = 0
		r.retries.ResetAll()
		r.planner.ResetStreak()
		logger.Info("plan regenerated", "goal", st.goal, "actions", len(st.plan.Actions),
			"regeneration", st.regens, "exhausted_actions", len(exhausted))
		return StateAwaiting
	}

	st.stopReason = StopRetriesExhausted
	logger.Warn("retries exhausted", "regenerations", st.regens, "exhausted_actions", len(exhausted))
	return StateDone
}

func (r *Runner) record(st *run, action map[string]any, result string) {
	entry := HistoryEntry{
		Turn:                st.turn,
		Goal:                st.goal,
		Mode:                r.mode,
		ConstraintsEnabled:  r.constraints,
		ScenarioID:          st.scenarioID,
		ScenarioType:        r.scenarioType,
		StopReason:          st.stopReason,
		ConsecutiveFailures: st.consecutive,
		LastFailedVerdicts:  append([]verdictRecord{}, st.lastFailed...),
		FailureType:         st.failureType,
		FailureSummary:      append([]string{}, st.failureSum...),
		CurrentGoal:         st.goal,
		Action:              action,
		Result:              result,
		Review:              st.review,
		Timestamp:           r.now(),
	}
	if s := r.retries.GetState(retry.Key(st.action.Type, st.action.Instruction)); s != nil {
		entry.Retry = &retryAttempts{Attempts: s.Attempts, MaxRetries: s.MaxRetries}
	}
	st.history = append(st.history, entry)
}

func actionRecord(a planner.Action) map[string]any {
	return map[string]any{
		"action":      a.Action,
		"type":        a.Type,
		"instruction": a.Instruction,
		"verify":      a.Verify,
		"comment":     a.Comment,
		"targets":     a.Targets,
		"client":      a.Client,
	}
}
