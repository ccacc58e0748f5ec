package session

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/event"
	"github.com/Iron-Ham/daacs/internal/workflow"
)

func testState() *workflow.State {
	return workflow.NewState("todo app", "daacs-1", "/tmp/project_1", config.Default().Execution, time.Unix(0, 0))
}

func TestDescribe(t *testing.T) {
	stop := "Canceled: context canceled"

	tests := []struct {
		name      string
		phase     workflow.Phase
		update    workflow.Update
		iteration int
		plan      string
		skipped   bool
		final     string
		want      string
	}{
		{name: "planning", phase: workflow.PhasePlanning, iteration: 2, plan: "build a todo API", want: "iteration 2: build a todo API"},
		{name: "sequential start", phase: workflow.PhaseStartParallel, want: "tracks started (sequential)"},
		{name: "judgment skipped", phase: workflow.PhaseJudgment, skipped: true, want: "fallback applied"},
		{
			name:   "incompatible",
			phase:  workflow.PhaseJudgment,
			update: workflow.Update{CompatibilityIssues: []string{"missing /api/todos"}},
			want:   "missing /api/todos",
		},
		{name: "deliver", phase: workflow.PhaseDeliver, final: workflow.FinalPartial, want: "partial"},
		{name: "cancel hand-off", phase: workflow.PhaseSaveContext, update: workflow.Update{StopReason: &stop}, want: stop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testState()
			st.IterationCount = tt.iteration
			st.OrchestratorPlan = tt.plan
			st.JudgmentSkipped = tt.skipped
			st.FinalStatus = tt.final
			got := describe(workflow.StreamUpdate{Phase: tt.phase, Update: tt.update, State: st})
			if !strings.Contains(got, tt.want) {
				t.Errorf("describe() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestRendererSubscribe(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	bus := event.NewBus(nil)
	r.subscribe(bus)

	bus.Publish(event.NewStrayWriteEvent("/tmp/project_1/stray.py"))

	if !strings.Contains(buf.String(), "stray write: /tmp/project_1/stray.py") {
		t.Errorf("expected stray write line, got %q", buf.String())
	}
}

func TestRendererSummary(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	st := testState()
	st.FinalStatus = workflow.FinalSuccess
	st.StopReason = "All tracks completed"
	r.summary(st, "/var/log/daacs")

	out := buf.String()
	for _, want := range []string{"daacs-1", "success", "All tracks completed", "/var/log/daacs/daacs-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
