package workflow

import (
	"maps"
	"slices"
	"time"

	"github.com/Iron-Ham/daacs/internal/replan"
	"github.com/Iron-Ham/daacs/internal/verify"
)

// TrackUpdate is the partial update of one track. Nil pointers, nil maps and
// nil slices mean "not written".
type TrackUpdate struct {
	Files       map[string]string
	Status      *TrackStatus
	NeedsRework *bool
	Iterations  *int
	Logs        []string
	ActionType  *string
	TestResult  *string
	// Verdicts replaces the previous verification details when non-nil.
	Verdicts []verify.Verdict
}

// Update is a node's partial write to the State. Scalar fields are pointers
// so that "not written" differs from a zero value.
type Update struct {
	CurrentGoal         *string
	IterationCount      *int
	ConsecutiveFailures *int

	LLMSources map[string]string

	OrchestratorPlan *string
	NeedsBackend     *bool
	NeedsFrontend    *bool
	APISpec          map[string]any
	FrontendSpec     map[string]any

	Backend  TrackUpdate
	Frontend TrackUpdate

	OrchestratorJudgment  *string
	CompatibilityVerified *bool
	CompatibilityIssues   []string
	EndpointAnalysis      map[string]any
	Recommendations       []string
	NeedsRework           *bool
	NextActions           []replan.ActionTemplate
	JudgmentSkipped       *bool

	FailureType    *replan.FailureType
	FailureSummary []string
	// ResetFailureSummary makes FailureSummary replace the accumulated list
	// instead of extending it.
	ResetFailureSummary bool

	TurnHistory     []map[string]any
	ReworkHistory   []string
	CurrentPhase    *string
	CompletedPhases []string

	FinalStatus *string
	StopReason  *string
	AllFiles    map[string]string

	UpdatedAt            *time.Time
	TotalDurationSeconds *float64
}

// Track returns a pointer to the named track's part of the update.
func (u *Update) Track(name string) *TrackUpdate {
	if name == TrackFrontend {
		return &u.Frontend
	}
	return &u.Backend
}

func ptr[T any](v T) *T { return &v }

// replaceIfPresent is the scalar reducer: the last written value wins.
func replaceIfPresent[T any](cur T, v *T) T {
	if v == nil {
		return cur
	}
	return *v
}

// mergeMap is the map reducer: a key-wise union where new keys and
// overwrites win. Neither input is modified.
func mergeMap[K comparable, V any](cur, v map[K]V) map[K]V {
	if len(v) == 0 {
		return cur
	}
	out := make(map[K]V, len(cur)+len(v))
	maps.Copy(out, cur)
	maps.Copy(out, v)
	return out
}

// appendList is the list reducer: concatenation in writer order. Neither
// input is modified.
func appendList[T any](cur, v []T) []T {
	if len(v) == 0 {
		return cur
	}
	out := make([]T, 0, len(cur)+len(v))
	out = append(out, cur...)
	return append(out, v...)
}

// lastPtr combines two scalar writes: the later non-nil one wins.
func lastPtr[T any](a, b *T) *T {
	if b != nil {
		return b
	}
	return a
}

// Apply folds u into s using each field's reducer and returns s.
func (s *State) Apply(u Update) *State {
	s.CurrentGoal = replaceIfPresent(s.CurrentGoal, u.CurrentGoal)
	s.IterationCount = replaceIfPresent(s.IterationCount, u.IterationCount)
	s.ConsecutiveFailures = replaceIfPresent(s.ConsecutiveFailures, u.ConsecutiveFailures)

	s.LLMSources = mergeMap(s.LLMSources, u.LLMSources)

	s.OrchestratorPlan = replaceIfPresent(s.OrchestratorPlan, u.OrchestratorPlan)
	s.NeedsBackend = replaceIfPresent(s.NeedsBackend, u.NeedsBackend)
	s.NeedsFrontend = replaceIfPresent(s.NeedsFrontend, u.NeedsFrontend)
	s.APISpec = mergeMap(s.APISpec, u.APISpec)
	s.FrontendSpec = mergeMap(s.FrontendSpec, u.FrontendSpec)

	s.Backend.apply(u.Backend)
	s.Frontend.apply(u.Frontend)

	s.OrchestratorJudgment = replaceIfPresent(s.OrchestratorJudgment, u.OrchestratorJudgment)
	s.CompatibilityVerified = replaceIfPresent(s.CompatibilityVerified, u.CompatibilityVerified)
	s.CompatibilityIssues = appendList(s.CompatibilityIssues, u.CompatibilityIssues)
	s.EndpointAnalysis = mergeMap(s.EndpointAnalysis, u.EndpointAnalysis)
	s.Recommendations = appendList(s.Recommendations, u.Recommendations)
	s.NeedsRework = replaceIfPresent(s.NeedsRework, u.NeedsRework)
	s.NextActions = appendList(s.NextActions, u.NextActions)
	s.JudgmentSkipped = replaceIfPresent(s.JudgmentSkipped, u.JudgmentSkipped)

	s.FailureType = replaceIfPresent(s.FailureType, u.FailureType)
	if u.ResetFailureSummary {
		s.FailureSummary = append([]string{}, u.FailureSummary...)
	} else {
		s.FailureSummary = appendList(s.FailureSummary, u.FailureSummary)
	}

	s.TurnHistory = appendList(s.TurnHistory, u.TurnHistory)
	s.ReworkHistory = appendList(s.ReworkHistory, u.ReworkHistory)
	s.CurrentPhase = replaceIfPresent(s.CurrentPhase, u.CurrentPhase)
	s.CompletedPhases = appendList(s.CompletedPhases, u.CompletedPhases)

	s.FinalStatus = replaceIfPresent(s.FinalStatus, u.FinalStatus)
	s.StopReason = replaceIfPresent(s.StopReason, u.StopReason)
	s.AllFiles = mergeMap(s.AllFiles, u.AllFiles)

	s.UpdatedAt = replaceIfPresent(s.UpdatedAt, u.UpdatedAt)
	s.TotalDurationSeconds = replaceIfPresent(s.TotalDurationSeconds, u.TotalDurationSeconds)
	return s
}

func (t *TrackState) apply(u TrackUpdate) {
	t.Files = mergeMap(t.Files, u.Files)
	t.Status = replaceIfPresent(t.Status, u.Status)
	t.NeedsRework = replaceIfPresent(t.NeedsRework, u.NeedsRework)
	t.Iterations = replaceIfPresent(t.Iterations, u.Iterations)
	t.Logs = appendList(t.Logs, u.Logs)
	t.ActionType = replaceIfPresent(t.ActionType, u.ActionType)
	t.TestResult = replaceIfPresent(t.TestResult, u.TestResult)
	if u.Verdicts != nil {
		t.Verdicts = slices.Clone(u.Verdicts)
	}
}

// MergeUpdates combines two updates as if b were applied after a.
func MergeUpdates(a, b Update) Update {
	failures, reset := appendList(a.FailureSummary, b.FailureSummary), a.ResetFailureSummary
	if b.ResetFailureSummary {
		failures, reset = b.FailureSummary, true
	}
	return Update{
		CurrentGoal:         lastPtr(a.CurrentGoal, b.CurrentGoal),
		IterationCount:      lastPtr(a.IterationCount, b.IterationCount),
		ConsecutiveFailures: lastPtr(a.ConsecutiveFailures, b.ConsecutiveFailures),

		LLMSources: mergeMap(a.LLMSources, b.LLMSources),

		OrchestratorPlan: lastPtr(a.OrchestratorPlan, b.OrchestratorPlan),
		NeedsBackend:     lastPtr(a.NeedsBackend, b.NeedsBackend),
		NeedsFrontend:    lastPtr(a.NeedsFrontend, b.NeedsFrontend),
		APISpec:          mergeMap(a.APISpec, b.APISpec),
		FrontendSpec:     mergeMap(a.FrontendSpec, b.FrontendSpec),

		Backend:  mergeTrackUpdates(a.Backend, b.Backend),
		Frontend: mergeTrackUpdates(a.Frontend, b.Frontend),

		OrchestratorJudgment:  lastPtr(a.OrchestratorJudgment, b.OrchestratorJudgment),
		CompatibilityVerified: lastPtr(a.CompatibilityVerified, b.CompatibilityVerified),
		CompatibilityIssues:   appendList(a.CompatibilityIssues, b.CompatibilityIssues),
		EndpointAnalysis:      mergeMap(a.EndpointAnalysis, b.EndpointAnalysis),
		Recommendations:       appendList(a.Recommendations, b.Recommendations),
		NeedsRework:           lastPtr(a.NeedsRework, b.NeedsRework),
		NextActions:           appendList(a.NextActions, b.NextActions),
		JudgmentSkipped:       lastPtr(a.JudgmentSkipped, b.JudgmentSkipped),

		FailureType:         lastPtr(a.FailureType, b.FailureType),
		FailureSummary:      failures,
		ResetFailureSummary: reset,

		TurnHistory:     appendList(a.TurnHistory, b.TurnHistory),
		ReworkHistory:   appendList(a.ReworkHistory, b.ReworkHistory),
		CurrentPhase:    lastPtr(a.CurrentPhase, b.CurrentPhase),
		CompletedPhases: appendList(a.CompletedPhases, b.CompletedPhases),

		FinalStatus: lastPtr(a.FinalStatus, b.FinalStatus),
		StopReason:  lastPtr(a.StopReason, b.StopReason),
		AllFiles:    mergeMap(a.AllFiles, b.AllFiles),

		UpdatedAt:            lastPtr(a.UpdatedAt, b.UpdatedAt),
		TotalDurationSeconds: lastPtr(a.TotalDurationSeconds, b.TotalDurationSeconds),
	}
}

func mergeTrackUpdates(a, b TrackUpdate) TrackUpdate {
	verdicts := a.Verdicts
	if b.Verdicts != nil {
		verdicts = b.Verdicts
	}
	return TrackUpdate{
		Files:       mergeMap(a.Files, b.Files),
		Status:      lastPtr(a.Status, b.Status),
		NeedsRework: lastPtr(a.NeedsRework, b.NeedsRework),
		Iterations:  lastPtr(a.Iterations, b.Iterations),
		Logs:        appendList(a.Logs, b.Logs),
		ActionType:  lastPtr(a.ActionType, b.ActionType),
		TestResult:  lastPtr(a.TestResult, b.TestResult),
		Verdicts:    verdicts,
	}
}

// Keys names the fields u writes, in State field order, using the JSON
// names of the persisted state. Track fields are prefixed with the track.
func (u Update) Keys() []string {
	var keys []string
	add := func(name string, set bool) {
		if set {
			keys = append(keys, name)
		}
	}
	add("current_goal", u.CurrentGoal != nil)
	add("iteration_count", u.IterationCount != nil)
	add("consecutive_failures", u.ConsecutiveFailures != nil)
	add("llm_sources", len(u.LLMSources) > 0)
	add("orchestrator_plan", u.OrchestratorPlan != nil)
	add("needs_backend", u.NeedsBackend != nil)
	add("needs_frontend", u.NeedsFrontend != nil)
	add("api_spec", len(u.APISpec) > 0)
	add("frontend_spec", len(u.FrontendSpec) > 0)
	for _, tr := range []struct {
		name string
		u    TrackUpdate
	}{{TrackBackend, u.Backend}, {TrackFrontend, u.Frontend}} {
		add(tr.name+"_files", len(tr.u.Files) > 0)
		add(tr.name+"_status", tr.u.Status != nil)
		add(tr.name+"_needs_rework", tr.u.NeedsRework != nil)
		add(tr.name+"_subgraph_iterations", tr.u.Iterations != nil)
		add(tr.name+"_logs", len(tr.u.Logs) > 0)
		add(tr.name+"_action_type", tr.u.ActionType != nil)
		add(tr.name+"_test_result", tr.u.TestResult != nil)
		add(tr.name+"_verification_details", tr.u.Verdicts != nil)
	}
	add("orchestrator_judgment", u.OrchestratorJudgment != nil)
	add("compatibility_verified", u.CompatibilityVerified != nil)
	add("compatibility_issues", len(u.CompatibilityIssues) > 0)
	add("endpoint_analysis", len(u.EndpointAnalysis) > 0)
	add("recommendations", len(u.Recommendations) > 0)
	add("needs_rework", u.NeedsRework != nil)
	add("next_actions", len(u.NextActions) > 0)
	add("judgment_skipped", u.JudgmentSkipped != nil)
	add("failure_type", u.FailureType != nil)
	add("failure_summary", len(u.FailureSummary) > 0 || u.ResetFailureSummary)
	add("turn_history", len(u.TurnHistory) > 0)
	add("rework_history", len(u.ReworkHistory) > 0)
	add("current_phase", u.CurrentPhase != nil)
	add("completed_phases", len(u.CompletedPhases) > 0)
	add("final_status", u.FinalStatus != nil)
	add("stop_reason", u.StopReason != nil)
	add("all_files", len(u.AllFiles) > 0)
	add("updated_at", u.UpdatedAt != nil)
	add("total_duration_seconds", u.TotalDurationSeconds != nil)
	return keys
}
