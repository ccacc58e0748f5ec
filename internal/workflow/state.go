// Package workflow implements the dual-track orchestration graph: planning,
// backend and frontend generation subgraphs, cross-track judgment,
// replanning, and delivery.
//
// Every node reads the shared State and returns a partial Update. Updates are
// folded into the State by per-field reducers, which is what makes running
// the two track subgraphs concurrently safe without locking the State.
package workflow

import (
	"maps"
	"slices"
	"time"

	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/replan"
	"github.com/Iron-Ham/daacs/internal/verify"
)

// Track names.
const (
	TrackBackend  = "backend"
	TrackFrontend = "frontend"
)

// TrackStatus is the per-track lifecycle status.
type TrackStatus string

// Track statuses.
const (
	StatusPending   TrackStatus = "pending"
	StatusWorking   TrackStatus = "working"
	StatusCompleted TrackStatus = "completed"
	StatusFailed    TrackStatus = "failed"
)

// Final run statuses.
const (
	FinalSuccess = "success"
	FinalPartial = "partial"
	FinalFailed  = "failed"
)

// TrackState holds one track's artifacts.
type TrackState struct {
	Files       map[string]string `json:"files"`
	Status      TrackStatus       `json:"status"`
	NeedsRework bool              `json:"needs_rework"`
	Iterations  int               `json:"iterations"`
	Logs        []string          `json:"logs"`
	ActionType  string            `json:"action_type,omitempty"`
	TestResult  string            `json:"test_result,omitempty"`
	Verdicts    []verify.Verdict  `json:"verification_details,omitempty"`
}

// FileNames returns the track's file names sorted.
func (t TrackState) FileNames() []string {
	return slices.Sorted(maps.Keys(t.Files))
}

// State is the record threaded through every node of a run.
type State struct {
	SessionID   string `json:"session_id"`
	InitialGoal string `json:"initial_goal"`
	CurrentGoal string `json:"current_goal"`
	ProjectDir  string `json:"project_dir"`

	Mode                  string `json:"mode"`
	ParallelExecution     bool   `json:"parallel_execution"`
	FullVerification      bool   `json:"full_verification"`
	JudgmentFallback      string `json:"judgment_fallback"`
	MaxIterations         int    `json:"max_iterations"`
	MaxSubgraphIterations int    `json:"max_subgraph_iterations"`
	MaxFailures           int    `json:"max_failures"`
	IterationCount        int    `json:"iteration_count"`
	ConsecutiveFailures   int    `json:"consecutive_failures"`

	LLMSources   map[string]string `json:"llm_sources"`
	CLIAssistant string            `json:"cli_assistant"`

	OrchestratorPlan string         `json:"orchestrator_plan"`
	NeedsBackend     bool           `json:"needs_backend"`
	NeedsFrontend    bool           `json:"needs_frontend"`
	APISpec          map[string]any `json:"api_spec"`
	FrontendSpec     map[string]any `json:"frontend_spec"`

	Backend  TrackState `json:"backend"`
	Frontend TrackState `json:"frontend"`

	OrchestratorJudgment  string                  `json:"orchestrator_judgment"`
	CompatibilityVerified bool                    `json:"compatibility_verified"`
	CompatibilityIssues   []string                `json:"compatibility_issues"`
	EndpointAnalysis      map[string]any          `json:"endpoint_analysis"`
	Recommendations       []string                `json:"recommendations"`
	NeedsRework           bool                    `json:"needs_rework"`
	NextActions           []replan.ActionTemplate `json:"next_actions"`
	JudgmentSkipped       bool                    `json:"judgment_skipped"`

	// FailureType is empty when no failure has been classified.
	FailureType    replan.FailureType `json:"failure_type,omitempty"`
	FailureSummary []string           `json:"failure_summary"`

	TurnHistory     []map[string]any `json:"turn_history"`
	ReworkHistory   []string         `json:"rework_history"`
	CurrentPhase    string           `json:"current_phase"`
	CompletedPhases []string         `json:"completed_phases"`

	FinalStatus string            `json:"final_status"`
	StopReason  string            `json:"stop_reason"`
	AllFiles    map[string]string `json:"all_files"`

	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	TotalDurationSeconds float64   `json:"total_duration_seconds"`
}

// NewState returns the initial state of a run: counters zeroed and both
// tracks pending.
func NewState(goal, sessionID, projectDir string, exec config.ExecutionConfig, now time.Time) *State {
	newTrack := func() TrackState {
		return TrackState{Files: map[string]string{}, Status: StatusPending}
	}
	return &State{
		SessionID:             sessionID,
		InitialGoal:           goal,
		CurrentGoal:           goal,
		ProjectDir:            projectDir,
		Mode:                  exec.Mode,
		ParallelExecution:     exec.ParallelExecution,
		FullVerification:      exec.FullVerification,
		JudgmentFallback:      exec.JudgmentFallback,
		MaxIterations:         exec.MaxIterations,
		MaxSubgraphIterations: exec.MaxSubgraphIterations,
		MaxFailures:           exec.MaxFailures,
		LLMSources:            map[string]string{},
		APISpec:               map[string]any{},
		FrontendSpec:          map[string]any{},
		Backend:               newTrack(),
		Frontend:              newTrack(),
		EndpointAnalysis:      map[string]any{},
		AllFiles:              map[string]string{},
		CurrentPhase:          "initialization",
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// Track returns the named track's state.
func (s *State) Track(name string) *TrackState {
	if name == TrackFrontend {
		return &s.Frontend
	}
	return &s.Backend
}

// Clone returns a copy that shares no maps or slices with s. Nested values
// inside APISpec and friends are treated as immutable and shared.
func (s *State) Clone() *State {
	c := *s
	c.LLMSources = maps.Clone(s.LLMSources)
	c.APISpec = maps.Clone(s.APISpec)
	c.FrontendSpec = maps.Clone(s.FrontendSpec)
	c.Backend = s.Backend.clone()
	c.Frontend = s.Frontend.clone()
	c.CompatibilityIssues = slices.Clone(s.CompatibilityIssues)
	c.EndpointAnalysis = maps.Clone(s.EndpointAnalysis)
	c.Recommendations = slices.Clone(s.Recommendations)
	c.NextActions = slices.Clone(s.NextActions)
	c.FailureSummary = slices.Clone(s.FailureSummary)
	c.TurnHistory = slices.Clone(s.TurnHistory)
	c.ReworkHistory = slices.Clone(s.ReworkHistory)
	c.CompletedPhases = slices.Clone(s.CompletedPhases)
	c.AllFiles = maps.Clone(s.AllFiles)
	return &c
}

func (t TrackState) clone() TrackState {
	c := t
	c.Files = maps.Clone(t.Files)
	c.Logs = slices.Clone(t.Logs)
	c.Verdicts = slices.Clone(t.Verdicts)
	return c
}
