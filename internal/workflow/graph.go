package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
)

// Phase names a node of the workflow graph.
type Phase string

// Graph phases.
const (
	PhasePlanning      Phase = "planning"
	PhaseStartParallel Phase = "start_parallel"
	PhaseBackend       Phase = "backend_subgraph"
	PhaseFrontend      Phase = "frontend_subgraph"
	PhaseJudgment      Phase = "judgment"
	PhaseReplanning    Phase = "replanning"
	PhaseSaveContext   Phase = "save_context"
	PhaseDeliver       Phase = "deliver"

	// PhaseEnd is the terminal pseudo-phase; an edge returning it stops the run.
	PhaseEnd Phase = ""
)

// maxSteps bounds a single run. Routers terminate well before this.
const maxSteps = 1000

// Node reads the state and returns its partial update. Nodes must not
// mutate the state they are given.
type Node func(ctx context.Context, st *State) Update

// Edge picks the next phase from the state after a node's update is applied.
type Edge func(st *State) Phase

// fork schedules branches after a phase and joins them at join.
type fork struct {
	branches []Phase
	parallel bool
	join     Phase
}

// Graph is a small directed-graph executor: nodes are applied in turn and
// conditional edges resolve the next phase until PhaseEnd.
type Graph struct {
	entry Phase
	nodes map[Phase]Node
	edges map[Phase]Edge
	forks map[Phase]fork

	// finishing phases still run after the context is canceled
	finishing map[Phase]bool
	cancelTo  Phase
}

// NewGraph creates an empty graph starting at entry.
func NewGraph(entry Phase) *Graph {
	return &Graph{
		entry:     entry,
		nodes:     make(map[Phase]Node),
		edges:     make(map[Phase]Edge),
		forks:     make(map[Phase]fork),
		finishing: make(map[Phase]bool),
	}
}

// AddNode registers the node for phase p.
func (g *Graph) AddNode(p Phase, n Node) {
	g.nodes[p] = n
}

// AddEdge adds an unconditional edge.
func (g *Graph) AddEdge(from, to Phase) {
	g.edges[from] = func(*State) Phase { return to }
}

// AddConditionalEdge adds an edge resolved against the state.
func (g *Graph) AddConditionalEdge(from Phase, e Edge) {
	g.edges[from] = e
}

// AddFork runs branches after from and continues at join once every branch
// has finished. Parallel branches run concurrently on state snapshots;
// otherwise they run in order, each seeing the previous branch's writes.
func (g *Graph) AddFork(from, join Phase, parallel bool, branches ...Phase) {
	g.forks[from] = fork{branches: branches, parallel: parallel, join: join}
}

// OnCancel routes a canceled run to phase p. Phases listed in finishing keep
// running after cancellation so the run still reaches its terminal node.
func (g *Graph) OnCancel(p Phase, finishing ...Phase) {
	g.cancelTo = p
	for _, f := range finishing {
		g.finishing[f] = true
	}
}

// Validate checks that every referenced phase has a node and every node
// has a way out.
func (g *Graph) Validate() error {
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry phase %q has no node", g.entry)
	}
	for p := range g.nodes {
		_, hasEdge := g.edges[p]
		_, hasFork := g.forks[p]
		if !hasEdge && !hasFork && !g.isBranch(p) {
			return fmt.Errorf("phase %q has no outgoing edge", p)
		}
	}
	for from, f := range g.forks {
		if _, ok := g.nodes[f.join]; !ok {
			return fmt.Errorf("fork from %q joins at unknown phase %q", from, f.join)
		}
		for _, b := range f.branches {
			if _, ok := g.nodes[b]; !ok {
				return fmt.Errorf("fork from %q has unknown branch %q", from, b)
			}
		}
	}
	if g.cancelTo != PhaseEnd {
		if _, ok := g.nodes[g.cancelTo]; !ok {
			return fmt.Errorf("cancel phase %q has no node", g.cancelTo)
		}
	}
	return nil
}

func (g *Graph) isBranch(p Phase) bool {
	for _, f := range g.forks {
		for _, b := range f.branches {
			if b == p {
				return true
			}
		}
	}
	return false
}

// Step is one applied node update.
type Step struct {
	Phase    Phase
	Update   Update
	Duration time.Duration
}

// Execute drives st from the entry phase to PhaseEnd, applying each node's
// update and calling emit after every step with the state as it stands.
// Canceled contexts divert the run to the cancel phase.
func (g *Graph) Execute(ctx context.Context, st *State, emit func(Step, *State)) error {
	cur := g.entry
	for steps := 0; cur != PhaseEnd; steps++ {
		if steps >= maxSteps {
			return fmt.Errorf("workflow exceeded %d steps at phase %q", maxSteps, cur)
		}
		if ctx.Err() != nil && g.cancelTo != PhaseEnd && !g.finishing[cur] {
			reason := "Canceled: " + context.Cause(ctx).Error()
			u := Update{StopReason: &reason}
			st.Apply(u)
			emit(Step{Phase: cur, Update: u}, st)
			cur = g.cancelTo
			continue
		}

		step := g.run(ctx, cur, st)
		st.Apply(step.Update)
		emit(step, st)

		if f, ok := g.forks[cur]; ok {
			for _, branch := range g.runFork(ctx, f, st) {
				st.Apply(branch.Update)
				emit(branch, st)
			}
			cur = f.join
			continue
		}

		edge, ok := g.edges[cur]
		if !ok {
			return fmt.Errorf("phase %q has no outgoing edge", cur)
		}
		cur = edge(st)
	}
	return nil
}

func (g *Graph) run(ctx context.Context, p Phase, st *State) Step {
	start := time.Now()
	u := g.nodes[p](ctx, st)
	return Step{Phase: p, Update: u, Duration: time.Since(start)}
}

// runFork runs the branches of f and returns their steps in branch order.
// Parallel branches each read their own snapshot of st; the caller folds
// the results in through the reducers after the join.
func (g *Graph) runFork(ctx context.Context, f fork, st *State) []Step {
	steps := make([]Step, len(f.branches))
	if !f.parallel {
		local := st.Clone()
		for i, b := range f.branches {
			steps[i] = g.run(ctx, b, local)
			local.Apply(steps[i].Update)
		}
		return steps
	}

	var wg conc.WaitGroup
	for i, b := range f.branches {
		snapshot := st.Clone()
		wg.Go(func() {
			steps[i] = g.run(ctx, b, snapshot)
		})
	}
	wg.Wait()
	return steps
}
