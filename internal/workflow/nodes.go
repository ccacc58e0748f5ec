package workflow

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/daacs/internal/config"
	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/event"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/replan"
)

// Coarse phases written to State.CurrentPhase.
const (
	phasePlanningComplete  = "planning_complete"
	phaseParallelExecution = "parallel_execution"
	phaseJudgmentFailed    = "judgment_failed"
	phaseJudgmentComplete  = "judgment_complete"
	phaseReplanningStopped = "replanning_stopped"
	phaseReplanningDone    = "replanning_complete"
	phaseContextSaved      = "context_saved"
	phaseDelivered         = "delivered"
)

// node wraps fn with logging, run-log events and panic recovery. A panic is
// turned into the fallback update so the run keeps moving.
func (r *run) node(p Phase, fn Node, fallback func(st *State, err error) Update) Node {
	return func(ctx context.Context, st *State) (u Update) {
		logger := r.logger.WithPhase(string(p))
		start := time.Now()
		r.logEvent("node_start", map[string]any{"node": string(p), "iteration": st.IterationCount})

		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic in %s: %v", p, rec)
				logger.Error("node panicked", "error", err.Error(), "stack", string(debug.Stack()))
				u = fallback(st, err)
			}
			u.CompletedPhases = appendList(u.CompletedPhases, []string{string(p)})
			r.logEvent("node_end", map[string]any{
				"node":        string(p),
				"keys":        u.Keys(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			logger.Debug("node finished", "keys", u.Keys(), "duration", time.Since(start).String())
		}()

		return fn(ctx, st)
	}
}

func routeAfterPlanning(st *State) Phase {
	if st.NeedsBackend || st.NeedsFrontend {
		return PhaseStartParallel
	}
	return PhaseDeliver
}

// routeAfterJudgment checks the ceilings before the rework signal.
func routeAfterJudgment(st *State) Phase {
	if st.IterationCount >= st.MaxIterations {
		return PhaseSaveContext
	}
	if st.ConsecutiveFailures >= st.MaxFailures {
		return PhaseSaveContext
	}
	if st.NeedsRework {
		return PhaseReplanning
	}
	return PhaseSaveContext
}

func routeAfterReplanning(st *State) Phase {
	if st.StopReason != "" {
		return PhaseSaveContext
	}
	return PhasePlanning
}

func (r *run) planning(ctx context.Context, st *State) Update {
	source := r.w.sources[config.RoleOrchestrator]
	resp, err := source.InvokeStructured(ctx, BuildPlanningPrompt(st.CurrentGoal))
	if err == nil {
		err = checkPlanning(resp)
	}
	if err != nil {
		err = daacserrors.NewPlanningError("no usable plan", err).WithRole(config.RoleOrchestrator)
		r.logger.Failure("planning failed, using fallback plan", err)
		return r.planningFallback(st, err)
	}

	u := Update{
		IterationCount:   ptr(st.IterationCount + 1),
		OrchestratorPlan: ptr(stringOr(resp["plan"], "No plan generated")),
		NeedsBackend:     ptr(boolOr(resp["needs_backend"], true)),
		NeedsFrontend:    ptr(boolOr(resp["needs_frontend"], true)),
		CurrentPhase:     ptr(phasePlanningComplete),
	}
	if spec, ok := resp["api_spec"].(map[string]any); ok {
		u.APISpec = spec
	}
	if spec, ok := resp["frontend_spec"].(map[string]any); ok {
		u.FrontendSpec = spec
	}
	r.logger.Info("plan ready",
		"needs_backend", *u.NeedsBackend,
		"needs_frontend", *u.NeedsFrontend,
		"endpoints", len(endpointsOf(u.APISpec)),
	)
	return u
}

// checkPlanning rejects responses that are not a plan: free text wrapped
// as {"response": ...} or values of the wrong type.
func checkPlanning(resp map[string]any) error {
	if _, ok := resp["response"]; ok && len(resp) == 1 {
		return daacserrors.ErrInvalidJSON
	}
	return llm.ValidateSchema(resp, planningSchema)
}

func endpointsOf(spec map[string]any) []any {
	eps, _ := spec["endpoints"].([]any)
	return eps
}

func (r *run) planningFallback(st *State, _ error) Update {
	return Update{
		IterationCount:   ptr(st.IterationCount + 1),
		OrchestratorPlan: ptr("Create a fullstack application for: " + st.CurrentGoal),
		NeedsBackend:     ptr(true),
		NeedsFrontend:    ptr(true),
		CurrentPhase:     ptr(phasePlanningComplete),
	}
}

// startParallel opens a cycle: both tracks start over with a fresh
// rework budget.
func (r *run) startParallel(_ context.Context, st *State) Update {
	u := Update{CurrentPhase: ptr(phaseParallelExecution)}
	for _, name := range []string{TrackBackend, TrackFrontend} {
		tu := u.Track(name)
		tu.Iterations = ptr(0)
		tu.NeedsRework = ptr(false)
	}
	if r.watcher != nil {
		r.watcher.Reset()
	}
	return u
}

func (r *run) startParallelFallback(*State, error) Update {
	return Update{CurrentPhase: ptr(phaseParallelExecution)}
}

func (r *run) judgment(ctx context.Context, st *State) Update {
	if st.Backend.Status == StatusFailed && st.Frontend.Status == StatusFailed {
		ft, _ := replan.DetectFailureType(st.FailureSummary, trackOutput(st))
		r.logger.Warn("both tracks failed", "failure_type", string(ft))
		u := Update{
			OrchestratorJudgment:  ptr("Both backend and frontend failed"),
			CompatibilityVerified: ptr(false),
			CompatibilityIssues:   []string{"Backend failed", "Frontend failed"},
			NeedsRework:           ptr(true),
			ConsecutiveFailures:   ptr(st.ConsecutiveFailures + 1),
			FailureType:           ptr(ft),
			JudgmentSkipped:       ptr(false),
			CurrentPhase:          ptr(phaseJudgmentFailed),
		}
		r.w.deps.Bus.Publish(event.NewJudgedEvent(false, u.CompatibilityIssues, false))
		return u
	}

	source := r.w.sources[config.RoleOrchestrator]
	resp, err := source.InvokeStructured(ctx, BuildJudgmentPrompt(st))
	if err == nil {
		err = llm.ValidateSchema(resp, judgmentSchema)
	}
	if err != nil {
		err = daacserrors.NewPlanningError("no usable verdict", err).WithRole(config.RoleOrchestrator)
		r.logger.Failure("judgment unavailable, applying fallback policy", err, "policy", st.JudgmentFallback)
		return r.judgmentFallback(st, err)
	}

	compatible := boolOr(resp["compatible"], true)
	issues := stringList(resp["issues"])
	u := Update{
		OrchestratorJudgment:  ptr(stringOr(resp["summary"], "No summary")),
		CompatibilityVerified: ptr(compatible),
		CompatibilityIssues:   issues,
		Recommendations:       stringList(resp["recommendations"]),
		NeedsRework:           ptr(!compatible),
		JudgmentSkipped:       ptr(false),
		CurrentPhase:          ptr(phaseJudgmentComplete),
	}
	if ea, ok := resp["endpoint_analysis"].(map[string]any); ok {
		u.EndpointAnalysis = ea
	}
	if compatible {
		u.ConsecutiveFailures = ptr(0)
	} else {
		u.ConsecutiveFailures = ptr(st.ConsecutiveFailures + 1)
		if ft, ok := replan.DetectFailureType(slices.Concat(st.FailureSummary, issues), trackOutput(st)); ok {
			u.FailureType = ptr(ft)
		}
	}
	r.logger.Info("judgment complete", "compatible", compatible, "issues", len(issues))
	r.w.deps.Bus.Publish(event.NewJudgedEvent(compatible, issues, false))
	return u
}

// trackOutput joins both tracks' logs; generator errors land there.
func trackOutput(st *State) string {
	return strings.Join(slices.Concat(st.Backend.Logs, st.Frontend.Logs), "\n")
}

// judgmentFallback applies the configured policy when no verdict could be
// obtained.
func (r *run) judgmentFallback(st *State, err error) Update {
	u := Update{
		EndpointAnalysis: map[string]any{},
		JudgmentSkipped:  ptr(true),
		CurrentPhase:     ptr(phaseJudgmentComplete),
	}
	if st.JudgmentFallback == config.JudgmentAssumeIncompatible {
		u.OrchestratorJudgment = ptr("Judgment unavailable, assuming incompatible")
		u.CompatibilityVerified = ptr(false)
		u.NeedsRework = ptr(true)
		u.ConsecutiveFailures = ptr(st.ConsecutiveFailures + 1)
		if ft, ok := replan.DetectFailureType(st.FailureSummary, trackOutput(st)); ok {
			u.FailureType = ptr(ft)
		}
	} else {
		u.OrchestratorJudgment = ptr("Judgment completed with assumptions")
		u.CompatibilityVerified = ptr(true)
		u.NeedsRework = ptr(false)
		u.ConsecutiveFailures = ptr(0)
	}
	r.w.deps.Bus.Publish(event.NewJudgedEvent(*u.CompatibilityVerified, nil, true))
	return u
}

func (r *run) replanning(ctx context.Context, st *State) Update {
	resp := replan.CreateReplanResponse(st.FailureType, st.CurrentGoal, st.ConsecutiveFailures, st.MaxFailures, replan.Context{
		CompatibilityIssues: tail(st.CompatibilityIssues, 5),
		Recommendations:     tail(st.Recommendations, 3),
	})
	r.logger.Info("replanning decided",
		"failure_type", string(st.FailureType),
		"stop", resp.Stop,
		"reason", resp.Reason,
	)
	r.w.deps.Bus.Publish(event.NewReplannedEvent(string(st.FailureType), resp.Reason, resp.Stop))

	if resp.Stop {
		return Update{
			NeedsRework:  ptr(false),
			StopReason:   ptr(resp.Reason),
			FinalStatus:  ptr(FinalFailed),
			CurrentPhase: ptr(phaseReplanningStopped),
		}
	}

	actions := resp.NextActions
	if strings.HasPrefix(st.LLMSources[config.RoleOrchestrator], config.SourceCLIAssistant) {
		actions = r.consult(ctx, st.FailureType, actions)
	}

	// The next cycle starts from this decision's notes; each track's own
	// failed checks reach its prompt through its verdicts.
	return Update{
		CurrentGoal:         ptr(resp.NextGoal),
		NeedsRework:         ptr(true),
		OrchestratorPlan:    ptr("Replanning: " + resp.Reason),
		NextActions:         actions,
		ReworkHistory:       []string{fmt.Sprintf("Replanning (%d): %s", st.ConsecutiveFailures+1, resp.Reason)},
		FailureSummary:      resp.FailureSummary,
		ResetFailureSummary: true,
		CurrentPhase:        ptr(phaseReplanningDone),
	}
}

// consult lets a CLI orchestrator swap the suggested recovery actions.
// Any failure keeps the suggestions.
func (r *run) consult(ctx context.Context, ft replan.FailureType, actions []replan.ActionTemplate) []replan.ActionTemplate {
	source := r.w.sources[config.RoleOrchestrator]
	resp, err := source.InvokeStructured(ctx, BuildConsultPrompt(ft, actions))
	if err == nil {
		err = llm.ValidateSchema(resp, consultSchema)
	}
	if err != nil {
		r.logger.Debug("consult skipped", "error", err.Error())
		return actions
	}
	if boolOr(resp["proceed"], true) {
		return actions
	}
	alts, _ := resp["alternative_actions"].([]any)
	if alts == nil {
		return actions
	}
	out := make([]replan.ActionTemplate, 0, len(alts))
	for _, a := range alts {
		switch v := a.(type) {
		case string:
			out = append(out, replan.ActionTemplate{Type: "shell", Cmd: v, Client: TrackBackend})
		case map[string]any:
			out = append(out, replan.ActionTemplate{
				Type:   stringOr(v["type"], "shell"),
				Cmd:    stringOr(v["cmd"], ""),
				Client: stringOr(v["client"], TrackBackend),
			})
		}
	}
	return out
}

func (r *run) replanningFallback(_ *State, err error) Update {
	return Update{
		NeedsRework:  ptr(false),
		StopReason:   ptr("Replanning error: " + err.Error()),
		FinalStatus:  ptr(FinalFailed),
		CurrentPhase: ptr(phaseReplanningStopped),
	}
}

func (r *run) saveContext(_ context.Context, st *State) Update {
	all := make(map[string]string, len(st.Backend.Files)+len(st.Frontend.Files))
	maps.Copy(all, st.Backend.Files)
	maps.Copy(all, st.Frontend.Files)

	if r.watcher != nil {
		if strays := r.watcher.Strays(); len(strays) > 0 {
			r.logger.Warn("files written outside track directories", "paths", strays)
			r.logEvent("stray_writes", map[string]any{"paths": strays})
		}
	}
	return Update{AllFiles: all, CurrentPhase: ptr(phaseContextSaved)}
}

func (r *run) saveContextFallback(*State, error) Update {
	return Update{CurrentPhase: ptr(phaseContextSaved)}
}

// deliver derives the final status from the track statuses alone.
func (r *run) deliver(_ context.Context, st *State) Update {
	var final, reason string
	switch {
	case st.Backend.Status == StatusCompleted && st.Frontend.Status == StatusCompleted && st.CompatibilityVerified:
		final, reason = FinalSuccess, "All tasks completed successfully"
	case st.Backend.Status == StatusCompleted || st.Frontend.Status == StatusCompleted:
		final, reason = FinalPartial, "Partial completion"
	default:
		final, reason = FinalFailed, st.StopReason
		if reason == "" {
			reason = "Tasks failed"
		}
	}
	return r.delivered(st, final, reason)
}

func (r *run) delivered(st *State, final, reason string) Update {
	now := r.w.deps.Now()
	r.logger.Info("delivered", "final_status", final, "stop_reason", reason)
	return Update{
		FinalStatus:          ptr(final),
		StopReason:           ptr(reason),
		CurrentPhase:         ptr(phaseDelivered),
		UpdatedAt:            ptr(now),
		TotalDurationSeconds: ptr(now.Sub(st.CreatedAt).Seconds()),
	}
}

func (r *run) deliverFallback(st *State, err error) Update {
	return r.delivered(st, FinalFailed, "Delivery error: "+err.Error())
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// stringList converts a decoded JSON array to strings, rendering non-string
// items with %v.
func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
