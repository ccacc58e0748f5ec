package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/daacs/internal/config"
	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/event"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/replan"
	"github.com/Iron-Ham/daacs/internal/verify"
)

// funcSource answers every call through respond.
type funcSource struct {
	desc    string
	respond func(prompt string) (string, error)
	calls   atomic.Int64
}

func (s *funcSource) Invoke(_ context.Context, prompt string, _ ...llm.InvokeOption) (string, error) {
	s.calls.Add(1)
	return s.respond(prompt)
}

func (s *funcSource) InvokeStructured(ctx context.Context, prompt string, _ ...llm.InvokeOption) (map[string]any, error) {
	text, err := s.Invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return llm.ParseJSON(text)
}

func (s *funcSource) Describe() string {
	if s.desc == "" {
		return "fake"
	}
	return s.desc
}

func failingSource(msg string) *funcSource {
	return &funcSource{respond: func(string) (string, error) { return "", errors.New(msg) }}
}

// stubVerifier passes or fails every request; failFirst fails the first n
// requests per kind.
type stubVerifier struct {
	ok        bool
	failFirst int

	mu    sync.Mutex
	calls map[verify.Kind]int
}

func (v *stubVerifier) Run(_ context.Context, req verify.Request) verify.Result {
	v.mu.Lock()
	if v.calls == nil {
		v.calls = make(map[verify.Kind]int)
	}
	v.calls[req.Kind]++
	n := v.calls[req.Kind]
	v.mu.Unlock()

	if v.ok && n > v.failFirst {
		return verify.Result{OK: true, Summary: verify.AllPassedSummary, Verdicts: []verify.Verdict{{OK: true, Check: verify.FilesExist, Reason: "ok"}}}
	}
	return verify.Result{
		OK:       false,
		Summary:  "Failed: Missing endpoints: GET /api/health",
		Verdicts: []verify.Verdict{{OK: false, Check: verify.APISpecCompliance, Reason: "Missing endpoints: GET /api/health"}},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Roles.Orchestrator.Source = config.SourceMock
	cfg.Roles.Backend.Source = config.SourceMock
	cfg.Roles.Frontend.Source = config.SourceMock
	cfg.Execution.ProjectRoot = t.TempDir()
	cfg.Execution.LogDir = t.TempDir()
	return cfg
}

func compile(t *testing.T, cfg *config.Config, deps Deps) *Workflow {
	t.Helper()
	if deps.Verifier == nil {
		deps.Verifier = &stubVerifier{ok: true}
	}
	w, err := Compile(cfg, deps)
	require.NoError(t, err)
	return w
}

var fullCycle = []string{
	string(PhasePlanning), string(PhaseStartParallel), string(PhaseBackend),
	string(PhaseFrontend), string(PhaseJudgment), string(PhaseSaveContext), string(PhaseDeliver),
}

func TestRun_DualTrackSuccess(t *testing.T) {
	cfg := testConfig(t)
	w := compile(t, cfg, Deps{})

	st, err := w.Run(context.Background(), "health check page", WithSessionID("daacs-0000abcd"))
	require.NoError(t, err)

	assert.Equal(t, FinalSuccess, st.FinalStatus)
	assert.Equal(t, "All tasks completed successfully", st.StopReason)
	assert.Equal(t, StatusCompleted, st.Backend.Status)
	assert.Equal(t, StatusCompleted, st.Frontend.Status)
	assert.True(t, st.CompatibilityVerified)
	assert.False(t, st.JudgmentSkipped)
	assert.Equal(t, 1, st.IterationCount)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, fullCycle, st.CompletedPhases)
	assert.Equal(t, "delivered", st.CurrentPhase)

	assert.Equal(t, []string{"main.py", "requirements.txt"}, st.Backend.FileNames())
	assert.Equal(t, []string{"package.json", "src/App.jsx"}, st.Frontend.FileNames())
	assert.Len(t, st.AllFiles, 4)

	wantDir := filepath.Join(cfg.Execution.ProjectRoot, "project_0000abcd")
	assert.Equal(t, wantDir, st.ProjectDir)
	_, err = os.Stat(filepath.Join(wantDir, "backend", "main.py"))
	assert.NoError(t, err, "parsed backend files are written to the track dir")
	_, err = os.Stat(filepath.Join(wantDir, "frontend", "src", "App.jsx"))
	assert.NoError(t, err)

	assert.Equal(t, "mock:orchestrator", st.LLMSources[config.RoleOrchestrator])
	assert.NotEmpty(t, st.APISpec["endpoints"])
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	run := func(parallel bool) *State {
		cfg := testConfig(t)
		cfg.Execution.ParallelExecution = parallel
		st, err := compile(t, cfg, Deps{}).Run(context.Background(), "health check page")
		require.NoError(t, err)
		return st
	}

	seq, par := run(false), run(true)
	assert.Equal(t, seq.FinalStatus, par.FinalStatus)
	assert.Equal(t, seq.CompletedPhases, par.CompletedPhases)
	assert.Equal(t, seq.Backend.FileNames(), par.Backend.FileNames())
	assert.Equal(t, seq.Frontend.FileNames(), par.Frontend.FileNames())
	assert.Equal(t, seq.Backend.Logs, par.Backend.Logs)
	assert.Equal(t, seq.Frontend.Logs, par.Frontend.Logs)
}

func TestRun_TerminatesWithFailingSources(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Execution.MaxIterations = 3
			cfg.Execution.MaxSubgraphIterations = 2
			cfg.Execution.ParallelExecution = parallel

			w := compile(t, cfg, Deps{
				Orchestrator: failingSource("orchestrator down"),
				Backend:      failingSource("boom"),
				Frontend:     failingSource("boom"),
			})

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			st, err := w.Run(ctx, "anything")
			require.NoError(t, err)

			assert.Equal(t, FinalFailed, st.FinalStatus)
			assert.Equal(t, "Tasks failed", st.StopReason)
			assert.Equal(t, 3, st.IterationCount)
			assert.Equal(t, 2, st.Backend.Iterations)
			assert.Equal(t, 2, st.Frontend.Iterations)
			assert.Equal(t, string(PhaseDeliver), st.CompletedPhases[len(st.CompletedPhases)-1])
			assert.Contains(t, st.Backend.Logs, "Backend coder error: Error: boom")
			assert.Contains(t, st.Backend.Logs, "Backend verifier: No files to verify")
			assert.Equal(t, "Create a fullstack application for: anything", st.OrchestratorPlan)
		})
	}
}

func TestRun_PlanningFailureLoggedAsPlanningError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.MaxIterations = 1
	var buf bytes.Buffer
	w := compile(t, cfg, Deps{
		Orchestrator: failingSource("orchestrator down"),
		Logger:       logging.NewWriterLogger(&buf, logging.LevelDebug),
	})

	st, err := w.Run(context.Background(), "health check page")
	require.NoError(t, err)
	assert.Equal(t, "Create a fullstack application for: health check page", st.OrchestratorPlan)
	assert.Contains(t, buf.String(), "planning error [role=orchestrator]: no usable plan: orchestrator down")
}

func TestRun_EmptyResponseUsesFilesOnDisk(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.MaxIterations = 1
	cfg.Execution.MaxSubgraphIterations = 1
	backendDir := filepath.Join(cfg.Execution.ProjectRoot, "project_0000abcd", "backend")

	// The backend assistant writes its files and prints nothing; the
	// frontend prints nothing and writes nothing.
	agentic := &funcSource{respond: func(string) (string, error) {
		if err := os.MkdirAll(backendDir, 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(backendDir, "main.py"), []byte("print('ok')\n"), 0o644); err != nil {
			return "", err
		}
		return "", daacserrors.ErrEmptyResponse
	}}
	silent := &funcSource{respond: func(string) (string, error) { return "", nil }}

	var buf bytes.Buffer
	w := compile(t, cfg, Deps{
		Backend:  agentic,
		Frontend: silent,
		Logger:   logging.NewWriterLogger(&buf, logging.LevelDebug),
	})
	st, err := w.Run(context.Background(), "health check page", WithSessionID("daacs-0000abcd"))
	require.NoError(t, err)

	assert.Equal(t, []string{"main.py"}, st.Backend.FileNames())
	assert.Equal(t, StatusCompleted, st.Backend.Status)
	assert.Equal(t, StatusFailed, st.Frontend.Status)
	assert.Contains(t, st.Frontend.Logs, "Frontend coder failed: No files generated")
	assert.Contains(t, buf.String(), "generation error [track=frontend, iteration=1]")
	assert.Equal(t, FinalPartial, st.FinalStatus)
}

func TestRun_ConsecutiveFailureCeiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.MaxFailures = 2
	cfg.Execution.MaxSubgraphIterations = 1

	w := compile(t, cfg, Deps{
		Backend:  failingSource("boom"),
		Frontend: failingSource("boom"),
	})
	st, err := w.Run(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, FinalFailed, st.FinalStatus)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.Equal(t, 2, st.IterationCount)
	assert.Equal(t, []string{"Replanning (2): Generic verification failure - retrying"}, st.ReworkHistory)
}

func TestRun_PermissionErrorStops(t *testing.T) {
	cfg := testConfig(t)
	denied := "bash: /root/.codex/sessions: Operation not permitted"
	w := compile(t, cfg, Deps{
		Backend:  failingSource(denied),
		Frontend: failingSource(denied),
	})

	st, err := w.Run(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, replan.PermissionDenied, st.FailureType)
	assert.Equal(t, FinalFailed, st.FinalStatus)
	assert.Equal(t, "Permission error - requires manual intervention", st.StopReason)
	assert.Equal(t, 1, st.IterationCount)
	assert.Less(t, st.ConsecutiveFailures, st.MaxFailures)
	assert.Contains(t, st.CompletedPhases, string(PhaseReplanning))
}

// scriptedOrchestrator plans like the mock and answers judgment prompts
// through judge.
func scriptedOrchestrator(judge func() (string, error)) *funcSource {
	mock := llm.NewMockSource(config.RoleOrchestrator)
	return &funcSource{respond: func(prompt string) (string, error) {
		if strings.Contains(strings.ToLower(prompt), "compatib") {
			return judge()
		}
		return mock.Invoke(context.Background(), prompt)
	}}
}

func TestRun_JudgmentFallback(t *testing.T) {
	judgeDown := func() (string, error) { return "", errors.New("judge unavailable") }

	t.Run("assume compatible", func(t *testing.T) {
		cfg := testConfig(t)
		w := compile(t, cfg, Deps{Orchestrator: scriptedOrchestrator(judgeDown)})

		st, err := w.Run(context.Background(), "health check page")
		require.NoError(t, err)
		assert.Equal(t, FinalSuccess, st.FinalStatus)
		assert.True(t, st.JudgmentSkipped)
		assert.Equal(t, "Judgment completed with assumptions", st.OrchestratorJudgment)
	})

	t.Run("assume incompatible", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Execution.JudgmentFallback = config.JudgmentAssumeIncompatible
		cfg.Execution.MaxIterations = 2
		w := compile(t, cfg, Deps{Orchestrator: scriptedOrchestrator(judgeDown)})

		st, err := w.Run(context.Background(), "health check page")
		require.NoError(t, err)
		assert.Equal(t, FinalPartial, st.FinalStatus)
		assert.True(t, st.JudgmentSkipped)
		assert.False(t, st.CompatibilityVerified)
		assert.Equal(t, 2, st.IterationCount)
		assert.Equal(t, 2, st.ConsecutiveFailures)
	})
}

func TestRun_IncompatibleJudgmentFeedsNextAttempt(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.MaxIterations = 2

	var judged atomic.Int64
	orch := scriptedOrchestrator(func() (string, error) {
		if judged.Add(1) == 1 {
			return `{"compatible": false, "issues": ["frontend calls /api/status"], "recommendations": ["call /api/health"], "summary": "mismatch"}`, nil
		}
		return `{"compatible": true, "issues": [], "summary": "ok"}`, nil
	})

	var prompts []string
	var mu sync.Mutex
	backendMock := llm.NewMockSource(config.RoleBackend)
	backend := &funcSource{respond: func(prompt string) (string, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return backendMock.Invoke(context.Background(), prompt)
	}}

	w := compile(t, cfg, Deps{Orchestrator: orch, Backend: backend})
	st, err := w.Run(context.Background(), "health check page")
	require.NoError(t, err)

	assert.Equal(t, FinalSuccess, st.FinalStatus)
	assert.Equal(t, 2, st.IterationCount)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "PREVIOUS FAILURE REASONS")
	assert.Contains(t, prompts[1], "- COMPATIBILITY ISSUE: frontend calls /api/status")
	assert.Contains(t, prompts[1], "- RECOMMENDATION: call /api/health")
	assert.Contains(t, prompts[1], "- FAILURE REASON: Generic verification failure - retrying")
}

func TestRun_NoTracksNeeded(t *testing.T) {
	cfg := testConfig(t)
	orch := &funcSource{respond: func(string) (string, error) {
		return `{"needs_backend": false, "needs_frontend": false, "plan": "nothing to build"}`, nil
	}}
	w := compile(t, cfg, Deps{Orchestrator: orch})

	st, err := w.Run(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, []string{string(PhasePlanning), string(PhaseDeliver)}, st.CompletedPhases)
	assert.Equal(t, FinalFailed, st.FinalStatus)
	assert.Equal(t, "Tasks failed", st.StopReason)
}

func TestRun_TrackReworkWithinCycle(t *testing.T) {
	cfg := testConfig(t)
	v := &stubVerifier{ok: true, failFirst: 1}
	w := compile(t, cfg, Deps{Verifier: v})

	st, err := w.Run(context.Background(), "health check page")
	require.NoError(t, err)

	assert.Equal(t, FinalSuccess, st.FinalStatus)
	assert.Equal(t, 2, st.Backend.Iterations)
	assert.Equal(t, 2, st.Frontend.Iterations)
	assert.Equal(t, 1, st.IterationCount)
	assert.Contains(t, st.FailureSummary, "backend: Missing endpoints: GET /api/health")
	assert.Equal(t, []string{
		"Backend coder generated: [main.py requirements.txt]",
		"Backend verifier: Failed: Missing endpoints: GET /api/health",
		"Backend coder generated: [main.py requirements.txt]",
		"Backend verifier: All verifications passed",
	}, st.Backend.Logs)
}

func TestRun_SubgraphCeilingExitsFailing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.MaxIterations = 1
	cfg.Execution.MaxSubgraphIterations = 1
	w := compile(t, cfg, Deps{Verifier: &stubVerifier{ok: false}})

	st, err := w.Run(context.Background(), "health check page")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Backend.Iterations)
	assert.Equal(t, StatusFailed, st.Backend.Status)
	assert.Equal(t, FinalFailed, st.FinalStatus)
}

type panickingSource struct{ llm.Source }

func (panickingSource) InvokeStructured(context.Context, string, ...llm.InvokeOption) (map[string]any, error) {
	panic("judge exploded")
}

func TestRun_NodePanicBecomesFallback(t *testing.T) {
	cfg := testConfig(t)
	orch := llm.NewMockSource(config.RoleOrchestrator)
	w := compile(t, cfg, Deps{Orchestrator: panickingSource{Source: orch}})

	st, err := w.Run(context.Background(), "health check page")
	require.NoError(t, err)

	// planning fell back to both tracks; judgment to the compatible policy
	assert.Equal(t, "Create a fullstack application for: health check page", st.OrchestratorPlan)
	assert.True(t, st.JudgmentSkipped)
	assert.Equal(t, FinalSuccess, st.FinalStatus)
}

func TestRun_Canceled(t *testing.T) {
	cfg := testConfig(t)
	w := compile(t, cfg, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := w.Run(ctx, "health check page")
	require.NoError(t, err)

	assert.Equal(t, []string{string(PhaseSaveContext), string(PhaseDeliver)}, st.CompletedPhases)
	assert.Equal(t, FinalFailed, st.FinalStatus)
	assert.Equal(t, "Canceled: context canceled", st.StopReason)
}

func TestRun_WritesRunLog(t *testing.T) {
	cfg := testConfig(t)
	w := compile(t, cfg, Deps{})

	st, err := w.Run(context.Background(), "health check page", WithSessionID("daacs-feedface"))
	require.NoError(t, err)

	rl, err := logging.NewRunLog(filepath.Join(cfg.Execution.LogDir, "daacs-feedface"), nil)
	require.NoError(t, err)

	summary, err := rl.ReadSummary()
	require.NoError(t, err)
	assert.Equal(t, FinalSuccess, summary.FinalStatus)
	assert.Equal(t, st.SessionID, summary.SessionID)
	assert.Equal(t, []string{"main.py", "requirements.txt"}, summary.Backend.Files)

	turns, err := rl.ReadTurns()
	require.NoError(t, err)
	require.Len(t, turns, len(fullCycle))
	assert.Equal(t, "delivered", turns[len(turns)-1]["phase"])

	data, err := os.ReadFile(filepath.Join(rl.Dir(), logging.WorkflowFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"node_start"`)
	assert.Contains(t, string(data), `"event_type":"workflow_end"`)
}

func TestRun_PublishesEvents(t *testing.T) {
	cfg := testConfig(t)
	bus := event.NewBus(nil)

	var mu sync.Mutex
	seen := map[string]int{}
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		seen[e.EventType()]++
		mu.Unlock()
	})

	w := compile(t, cfg, Deps{Bus: bus})
	_, err := w.Run(context.Background(), "health check page")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[event.TypeWorkflowDone])
	assert.Equal(t, 1, seen[event.TypeJudged])
	assert.Equal(t, 2, seen[event.TypeVerified])
	assert.Equal(t, 2, seen[event.TypeTrackUpdated])
	assert.Equal(t, len(fullCycle), seen[event.TypeNodeFinished])
	assert.NotZero(t, seen[event.TypePhaseChanged])
}

func TestStream_EmitsInVisitOrder(t *testing.T) {
	cfg := testConfig(t)
	w := compile(t, cfg, Deps{})

	var phases []string
	var last StreamUpdate
	for u := range w.Stream(context.Background(), "health check page") {
		require.NoError(t, u.Err)
		phases = append(phases, string(u.Phase))
		last = u
	}

	assert.Equal(t, fullCycle, phases)
	require.NotNil(t, last.State)
	assert.Equal(t, FinalSuccess, last.State.FinalStatus)
	assert.ElementsMatch(t, []string{"final_status", "stop_reason", "current_phase", "completed_phases", "updated_at", "total_duration_seconds"}, last.Update.Keys())
}

func TestStream_StartError(t *testing.T) {
	w := compile(t, testConfig(t), Deps{})
	var updates []StreamUpdate
	for u := range w.Stream(context.Background(), "   ") {
		updates = append(updates, u)
	}
	require.Len(t, updates, 1)
	assert.Error(t, updates[0].Err)
}

func TestCompile_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.Mode = "fast"
	_, err := Compile(cfg, Deps{})
	var verrs config.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "execution.mode", verrs[0].Field, "fields use the config key path")
}

func TestRouters(t *testing.T) {
	tests := []struct {
		name  string
		state State
		route func(*State) Phase
		want  Phase
	}{
		{"planning needs backend", State{NeedsBackend: true}, routeAfterPlanning, PhaseStartParallel},
		{"planning needs nothing", State{}, routeAfterPlanning, PhaseDeliver},
		{"judgment iteration ceiling wins", State{IterationCount: 3, MaxIterations: 3, MaxFailures: 5, NeedsRework: true}, routeAfterJudgment, PhaseSaveContext},
		{"judgment failure ceiling wins", State{IterationCount: 1, MaxIterations: 3, ConsecutiveFailures: 5, MaxFailures: 5, NeedsRework: true}, routeAfterJudgment, PhaseSaveContext},
		{"judgment rework", State{IterationCount: 1, MaxIterations: 3, MaxFailures: 5, NeedsRework: true}, routeAfterJudgment, PhaseReplanning},
		{"judgment done", State{IterationCount: 1, MaxIterations: 3, MaxFailures: 5}, routeAfterJudgment, PhaseSaveContext},
		{"replanning stopped", State{StopReason: "stop"}, routeAfterReplanning, PhaseSaveContext},
		{"replanning continues", State{}, routeAfterReplanning, PhasePlanning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.route(&tt.state))
		})
	}
}

func TestRouteTrack(t *testing.T) {
	st := &State{MaxSubgraphIterations: 2}
	st.Backend = TrackState{Iterations: 1, NeedsRework: true}
	assert.True(t, routeTrack(st, TrackBackend))

	st.Backend.Iterations = 2
	assert.False(t, routeTrack(st, TrackBackend), "ceiling exits regardless of rework")

	st.Backend = TrackState{Iterations: 1}
	assert.False(t, routeTrack(st, TrackBackend))
}

func TestConsult_AlternativeActions(t *testing.T) {
	orch := &funcSource{
		desc: "cli_assistant:codex",
		respond: func(string) (string, error) {
			return `{"proceed": false, "alternative_actions": ["pip install fastapi", {"type": "test", "cmd": "pytest -x"}]}`, nil
		},
	}
	w := &Workflow{sources: map[string]llm.Source{config.RoleOrchestrator: orch}}
	r := &run{w: w, logger: logging.NopLogger()}

	got := r.consult(context.Background(), replan.TestsFail, []replan.ActionTemplate{{Type: "test", Cmd: "pytest -v", Client: "backend"}})
	assert.Equal(t, []replan.ActionTemplate{
		{Type: "shell", Cmd: "pip install fastapi", Client: "backend"},
		{Type: "test", Cmd: "pytest -x", Client: "backend"},
	}, got)
}

func TestConsult_KeepsSuggestionsOnFailure(t *testing.T) {
	orch := failingSource("offline")
	w := &Workflow{sources: map[string]llm.Source{config.RoleOrchestrator: orch}}
	r := &run{w: w, logger: logging.NopLogger()}

	in := []replan.ActionTemplate{{Type: "test", Cmd: "pytest -v", Client: "backend"}}
	assert.Equal(t, in, r.consult(context.Background(), replan.TestsFail, in))
}

func TestPrompts_OrchestratorDispatch(t *testing.T) {
	plan := strings.ToLower(BuildPlanningPrompt("todo app"))
	assert.NotContains(t, plan, "compatib")
	assert.NotContains(t, plan, "proceed")
	assert.NotContains(t, plan, `"actions"`)

	st := NewState("todo app", "daacs-1", "/tmp/p", config.Default().Execution, time.Now())
	assert.Contains(t, strings.ToLower(BuildJudgmentPrompt(st)), "compatib")
	assert.Contains(t, BuildConsultPrompt(replan.TestsFail, nil), "proceed")
}

func TestBuildTrackPrompt(t *testing.T) {
	st := NewState("todo app", "daacs-1", "/tmp/p", config.Default().Execution, time.Now())
	st.LLMSources = map[string]string{TrackBackend: "cli_assistant:claude_code", TrackFrontend: "plugin:openai/gpt-4o"}
	st.FailureSummary = []string{"Missing endpoints: GET /api/todos"}

	backend := BuildTrackPrompt(TrackBackend, st, "/tmp/p/backend")
	assert.Contains(t, backend, "AGENTIC MODE (CLAUDE)")
	assert.Contains(t, backend, "- Missing endpoints: GET /api/todos")
	assert.Contains(t, backend, "No API spec provided")
	assert.Contains(t, backend, "/tmp/p/backend")

	frontend := BuildTrackPrompt(TrackFrontend, st, "/tmp/p/frontend")
	assert.Contains(t, frontend, "=== FILE CREATION ===")
	assert.Contains(t, frontend, "/tmp/p/frontend/src/App.jsx")
	assert.Contains(t, frontend, "No frontend spec provided")
}

func TestBuildTrackPrompt_OnlyOwnFailures(t *testing.T) {
	st := NewState("todo app", "daacs-1", "/tmp/p", config.Default().Execution, time.Now())
	st.Apply(Update{
		Backend:        TrackUpdate{Verdicts: []verify.Verdict{{Check: verify.APISpecCompliance, Reason: "Missing endpoints: GET /api/todos"}}},
		Frontend:       TrackUpdate{Verdicts: []verify.Verdict{{Check: verify.FilesExist, OK: true}}},
		FailureSummary: []string{trackReason(TrackBackend, "Missing endpoints: GET /api/todos")},
	})
	st.Apply(Update{FailureSummary: []string{"FAILURE REASON: Compatibility issue"}, ResetFailureSummary: true})

	backend := BuildTrackPrompt(TrackBackend, st, "/tmp/p/backend")
	assert.Contains(t, backend, "- Missing endpoints: GET /api/todos")
	assert.Contains(t, backend, "- FAILURE REASON: Compatibility issue")
	assert.NotContains(t, backend, "- backend: ")

	frontend := BuildTrackPrompt(TrackFrontend, st, "/tmp/p/frontend")
	assert.NotContains(t, frontend, "- Missing endpoints")
	assert.Contains(t, frontend, "- FAILURE REASON: Compatibility issue")
	assert.Equal(t, []string{"FAILURE REASON: Compatibility issue"}, trackFailures(st, TrackFrontend))
}

func TestCodeSamples_TruncatesLongFiles(t *testing.T) {
	long := strings.Repeat("line\n", 150)
	out := codeSamples(map[string]string{"main.py": long})
	assert.Equal(t, sampleLines, strings.Count(out, "line"))
}
