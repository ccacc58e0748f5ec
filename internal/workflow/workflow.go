package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/event"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/verify"
	"github.com/Iron-Ham/daacs/internal/watch"
)

// Verifier judges a track's generated files.
type Verifier interface {
	Run(ctx context.Context, req verify.Request) verify.Result
}

// Deps are the collaborators a workflow runs with. Nil sources are built
// from the configuration; a nil Verifier uses the built-in engine.
type Deps struct {
	Orchestrator llm.Source
	Backend      llm.Source
	Frontend     llm.Source
	Verifier     Verifier
	Logger       *logging.Logger
	Bus          *event.Bus
	// RunLog replaces the per-session run log under execution.log_dir.
	RunLog *logging.RunLog
	// WatchStrays flags files written outside the track directories.
	WatchStrays bool

	Now          func() time.Time
	NewSessionID func() string
}

// Workflow is a compiled dual-track graph. A Workflow may run many goals,
// one run at a time or concurrently; runs share no state.
type Workflow struct {
	exec    config.ExecutionConfig
	cliType string
	deps    Deps
	sources map[string]llm.Source
	logger  *logging.Logger
}

// NewSessionID returns a fresh "daacs-xxxxxxxx" session id.
func NewSessionID() string {
	return "daacs-" + uuid.NewString()[:8]
}

// Compile validates cfg, resolves the role sources and checks the graph.
func Compile(cfg *config.Config, deps Deps) (*Workflow, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", config.ValidationErrors(errs))
	}
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = NewSessionID
	}
	if deps.Verifier == nil {
		deps.Verifier = verify.NewEngine(verify.WithLogger(deps.Logger))
	}

	sources := map[string]*llm.Source{
		config.RoleOrchestrator: &deps.Orchestrator,
		config.RoleBackend:      &deps.Backend,
		config.RoleFrontend:     &deps.Frontend,
	}
	resolved := make(map[string]llm.Source, len(sources))
	for role, src := range sources {
		if *src == nil {
			s, err := llm.NewFromConfig(cfg, role, deps.Logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s source: %w", role, err)
			}
			*src = s
		}
		resolved[role] = *src
	}

	w := &Workflow{
		exec:    cfg.Execution,
		cliType: cfg.CLIAssistant.Type,
		deps:    deps,
		sources: resolved,
		logger:  deps.Logger,
	}
	if err := w.buildGraph(&run{w: w, logger: w.logger}).Validate(); err != nil {
		return nil, fmt.Errorf("failed to compile workflow: %w", err)
	}
	return w, nil
}

// Sources returns the source description per role.
func (w *Workflow) Sources() map[string]string {
	out := make(map[string]string, len(w.sources))
	for role, s := range w.sources {
		out[role] = s.Describe()
	}
	return out
}

func (w *Workflow) buildGraph(r *run) *Graph {
	g := NewGraph(PhasePlanning)

	g.AddNode(PhasePlanning, r.node(PhasePlanning, r.planning, r.planningFallback))
	g.AddConditionalEdge(PhasePlanning, routeAfterPlanning)

	g.AddNode(PhaseStartParallel, r.node(PhaseStartParallel, r.startParallel, r.startParallelFallback))
	g.AddNode(PhaseBackend, r.node(PhaseBackend, r.trackNode(TrackBackend), r.trackFallback(TrackBackend)))
	g.AddNode(PhaseFrontend, r.node(PhaseFrontend, r.trackNode(TrackFrontend), r.trackFallback(TrackFrontend)))
	g.AddFork(PhaseStartParallel, PhaseJudgment, w.exec.ParallelExecution, PhaseBackend, PhaseFrontend)

	g.AddNode(PhaseJudgment, r.node(PhaseJudgment, r.judgment, r.judgmentFallback))
	g.AddConditionalEdge(PhaseJudgment, routeAfterJudgment)

	g.AddNode(PhaseReplanning, r.node(PhaseReplanning, r.replanning, r.replanningFallback))
	g.AddConditionalEdge(PhaseReplanning, routeAfterReplanning)

	g.AddNode(PhaseSaveContext, r.node(PhaseSaveContext, r.saveContext, r.saveContextFallback))
	g.AddEdge(PhaseSaveContext, PhaseDeliver)

	g.AddNode(PhaseDeliver, r.node(PhaseDeliver, r.deliver, r.deliverFallback))
	g.AddEdge(PhaseDeliver, PhaseEnd)

	g.OnCancel(PhaseSaveContext, PhaseSaveContext, PhaseDeliver)
	return g
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	sessionID string
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) RunOption {
	return func(o *runOptions) {
		o.sessionID = id
	}
}

// StreamUpdate is one applied node update. State is a snapshot taken after
// the update; Err is set only on the final update of a run that could not
// start or could not finish.
type StreamUpdate struct {
	Phase    Phase
	Update   Update
	State    *State
	Duration time.Duration
	Err      error
}

// Run executes goal to completion and returns the terminal state. Node
// failures never surface here; an error means the run could not start or
// the graph itself misbehaved.
func (w *Workflow) Run(ctx context.Context, goal string, opts ...RunOption) (*State, error) {
	r, st, err := w.start(goal, opts)
	if err != nil {
		return nil, err
	}
	err = r.execute(ctx, st, nil)
	return st, err
}

// Stream executes goal and emits every node update in visit order. The
// channel is closed when the run ends; callers must drain it.
func (w *Workflow) Stream(ctx context.Context, goal string, opts ...RunOption) <-chan StreamUpdate {
	ch := make(chan StreamUpdate)
	go func() {
		defer close(ch)
		r, st, err := w.start(goal, opts)
		if err != nil {
			ch <- StreamUpdate{Err: err}
			return
		}
		err = r.execute(ctx, st, func(step Step, s *State) {
			ch <- StreamUpdate{Phase: step.Phase, Update: step.Update, State: s.Clone(), Duration: step.Duration}
		})
		if err != nil {
			ch <- StreamUpdate{State: st.Clone(), Err: err}
		}
	}()
	return ch
}

// run is the per-session context shared by the nodes of one execution.
type run struct {
	w         *Workflow
	sessionID string
	logger    *logging.Logger
	runLog    *logging.RunLog
	watcher   *watch.Watcher
	graph     *Graph
	lastPhase string
}

func (w *Workflow) start(goal string, opts []RunOption) (*run, *State, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(goal) == "" {
		return nil, nil, fmt.Errorf("goal must not be empty")
	}
	id := o.sessionID
	if id == "" {
		id = w.deps.NewSessionID()
	}

	projectDir, err := filepath.Abs(filepath.Join(w.exec.ProjectRoot, "project_"+strings.TrimPrefix(id, "daacs-")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}
	for _, dir := range []string{projectDir, filepath.Join(projectDir, TrackBackend), filepath.Join(projectDir, TrackFrontend)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create project dir: %w", err)
		}
	}

	r := &run{w: w, sessionID: id, logger: w.logger.WithSession(id), runLog: w.deps.RunLog}
	if r.runLog == nil && w.exec.LogDir != "" {
		rl, err := logging.NewRunLog(filepath.Join(w.exec.LogDir, id), r.logger)
		if err != nil {
			return nil, nil, err
		}
		r.runLog = rl
	}

	if w.deps.WatchStrays {
		bus := w.deps.Bus
		wt, err := watch.New(projectDir,
			[]string{filepath.Join(projectDir, TrackBackend), filepath.Join(projectDir, TrackFrontend)},
			watch.WithLogger(r.logger),
			watch.WithCallback(func(path string) { bus.Publish(event.NewStrayWriteEvent(path)) }),
		)
		if err != nil {
			r.logger.Warn("stray-write watcher unavailable", "error", err.Error())
		} else {
			wt.Start()
			r.watcher = wt
		}
	}

	st := NewState(goal, id, projectDir, w.exec, w.deps.Now())
	st.LLMSources = w.Sources()
	st.CLIAssistant = w.cliType
	r.lastPhase = st.CurrentPhase
	r.graph = w.buildGraph(r)

	r.logger.Info("workflow started",
		"goal", goal,
		"project_dir", projectDir,
		"parallel", w.exec.ParallelExecution,
		"sources", llm.SourcesDescription(w.sources),
	)
	r.logEvent("workflow_start", map[string]any{
		"session_id":  id,
		"goal":        goal,
		"project_dir": projectDir,
		"parallel":    w.exec.ParallelExecution,
		"llm_sources": st.LLMSources,
	})
	return r, st, nil
}

// execute drives the graph and always finalizes the run.
func (r *run) execute(ctx context.Context, st *State, emit func(Step, *State)) error {
	err := r.graph.Execute(ctx, st, func(step Step, s *State) {
		r.observe(step, s)
		if emit != nil {
			emit(step, s)
		}
	})
	r.finish(st, err)
	return err
}

func (r *run) logEvent(eventType string, data map[string]any) {
	if r.runLog != nil {
		r.runLog.LogWorkflowEvent(eventType, data)
	}
}

// observe records one applied step: a turn record, a node event, and a
// phase change when the coarse phase moved.
func (r *run) observe(step Step, st *State) {
	bus := r.w.deps.Bus
	bus.Publish(event.NewNodeFinishedEvent(r.sessionID, string(step.Phase), step.Update.Keys(), step.Duration, nil))
	if st.CurrentPhase != r.lastPhase {
		bus.Publish(event.NewPhaseChangedEvent(r.sessionID, r.lastPhase, st.CurrentPhase, st.IterationCount))
		r.lastPhase = st.CurrentPhase
	}

	if r.runLog == nil {
		return
	}
	r.runLog.LogTurn(logging.TurnRecord{
		Turn:                st.IterationCount,
		Goal:                st.CurrentGoal,
		Mode:                st.Mode,
		ScenarioID:          st.SessionID,
		ScenarioType:        "dual_track",
		StopReason:          st.StopReason,
		ConsecutiveFailures: st.ConsecutiveFailures,
		FailureType:         string(st.FailureType),
		FailureSummary:      st.FailureSummary,
		Timestamp:           r.w.deps.Now(),
		Phase:               st.CurrentPhase,
		ParallelExecution:   st.ParallelExecution,
		LLMSources:          st.LLMSources,
		CLIAssistant:        st.CLIAssistant,
		Backend:             trackRecord(st.Backend),
		Frontend:            trackRecord(st.Frontend),
		Judgment:            st.OrchestratorJudgment,
		Compatible:          st.CompatibilityVerified,
		CompatibilityIssues: st.CompatibilityIssues,
		Event:               map[string]any{"node": string(step.Phase), "keys": step.Update.Keys()},
	})
}

func trackRecord(t TrackState) logging.TrackRecord {
	return logging.TrackRecord{Status: string(t.Status), Files: t.FileNames(), Iterations: t.Iterations}
}

// finish writes the summary, publishes the terminal event and releases the
// run's resources.
func (r *run) finish(st *State, err error) {
	if r.watcher != nil {
		r.watcher.Stop()
	}
	if err != nil && st.FinalStatus == "" {
		st.FinalStatus = FinalFailed
		st.StopReason = err.Error()
	}

	now := r.w.deps.Now()
	if r.runLog != nil {
		r.runLog.WriteSummary(logging.Summary{
			SessionID:           st.SessionID,
			Goal:                st.InitialGoal,
			FinalStatus:         st.FinalStatus,
			StopReason:          st.StopReason,
			TotalIterations:     st.IterationCount,
			ConsecutiveFailures: st.ConsecutiveFailures,
			Mode:                st.Mode,
			ParallelExecution:   st.ParallelExecution,
			CLIAssistant:        st.CLIAssistant,
			Backend:             trackRecord(st.Backend),
			Frontend:            trackRecord(st.Frontend),
			Compatible:          st.CompatibilityVerified,
			JudgmentSkipped:     st.JudgmentSkipped,
			CompatibilityIssues: st.CompatibilityIssues,
			CreatedAt:           st.CreatedAt,
			CompletedAt:         now,
			DurationSeconds:     now.Sub(st.CreatedAt).Seconds(),
		})
	}
	r.logEvent("workflow_end", map[string]any{
		"final_status": st.FinalStatus,
		"stop_reason":  st.StopReason,
		"iterations":   st.IterationCount,
	})
	r.w.deps.Bus.Publish(event.NewWorkflowFinishedEvent(st.SessionID, st.FinalStatus, st.StopReason, err))
	r.logger.Info("workflow finished",
		"final_status", st.FinalStatus,
		"stop_reason", st.StopReason,
		"iterations", st.IterationCount,
		"duration_seconds", now.Sub(st.CreatedAt).Seconds(),
	)
}
