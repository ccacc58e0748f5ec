package session

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/daacs/internal/cmd/styles"
	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/Iron-Ham/daacs/internal/event"
	"github.com/Iron-Ham/daacs/internal/util"
	"github.com/Iron-Ham/daacs/internal/workflow"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// defaultWidth is used when the output is not a terminal.
const defaultWidth = 120

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	return defaultWidth
}

// renderer prints workflow progress. Bus handlers may fire from parallel
// track goroutines, so writes are serialized.
type renderer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, width: terminalWidth(out)}
}

func (r *renderer) line(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, util.TruncateANSI(s, r.width))
}

func (r *renderer) header(goal string, sources map[string]string, exec config.ExecutionConfig) {
	mode := "sequential"
	if exec.ParallelExecution {
		mode = "parallel"
	}
	r.line(styles.Title.Render("DAACS") + " " + goal)
	roles := slices.Sorted(maps.Keys(sources))
	parts := make([]string, 0, len(roles))
	for _, role := range roles {
		parts = append(parts, role+"="+sources[role])
	}
	r.line(styles.Muted.Render(fmt.Sprintf("mode=%s tracks=%s max_iterations=%d %s",
		exec.Mode, mode, exec.MaxIterations, strings.Join(parts, " "))))
	r.line("")
}

// subscribe prints track-level events as indented detail lines.
func (r *renderer) subscribe(bus *event.Bus) {
	bus.Subscribe(event.TypeTrackUpdated, func(e event.Event) {
		ev, ok := e.(event.TrackUpdatedEvent)
		if !ok {
			return
		}
		r.line(fmt.Sprintf("  %s attempt %d: %s %s", ev.Track, ev.Iteration,
			styles.TrackStatus(ev.Status), styles.Muted.Render(styles.List(ev.Files))))
	})
	bus.Subscribe(event.TypeVerified, func(e event.Event) {
		ev, ok := e.(event.VerifiedEvent)
		if !ok {
			return
		}
		r.line(fmt.Sprintf("  %s %s verifier: %s", styles.Check(ev.OK), ev.Track, ev.Summary))
	})
	bus.Subscribe(event.TypeReplanned, func(e event.Event) {
		ev, ok := e.(event.ReplannedEvent)
		if !ok {
			return
		}
		kind := ev.FailureType
		if kind == "" {
			kind = "unknown"
		}
		r.line(fmt.Sprintf("  replan (%s): %s", kind, ev.Reason))
	})
	bus.Subscribe(event.TypeStrayWrite, func(e event.Event) {
		ev, ok := e.(event.StrayWriteEvent)
		if !ok {
			return
		}
		r.line("  " + styles.Warning.Render("stray write: "+ev.Path))
	})
}

func (r *renderer) step(u workflow.StreamUpdate) {
	elapsed := styles.Muted.Render(u.Duration.Round(time.Millisecond).String())
	r.line(styles.Phase.Render(string(u.Phase)) + describe(u) + " " + elapsed)
}

// describe summarizes what a step changed.
func describe(u workflow.StreamUpdate) string {
	st := u.State
	// A step that completed no node is the cancellation hand-off.
	if len(u.Update.CompletedPhases) == 0 && u.Update.StopReason != nil {
		return styles.Warning.Render(*u.Update.StopReason)
	}

	switch u.Phase {
	case workflow.PhasePlanning:
		return fmt.Sprintf("iteration %d: %s", st.IterationCount, st.OrchestratorPlan)
	case workflow.PhaseStartParallel:
		if st.ParallelExecution {
			return "tracks started (parallel)"
		}
		return "tracks started (sequential)"
	case workflow.PhaseBackend, workflow.PhaseFrontend:
		t := st.Backend
		if u.Phase == workflow.PhaseFrontend {
			t = st.Frontend
		}
		return fmt.Sprintf("%s, %d files, %d attempts", styles.TrackStatus(string(t.Status)), len(t.Files), t.Iterations)
	case workflow.PhaseJudgment:
		switch {
		case st.JudgmentSkipped:
			return styles.Warning.Render("judgment unavailable, fallback applied")
		case st.CompatibilityVerified:
			return styles.Secondary.Render("compatible")
		default:
			return styles.Error.Render("incompatible") + ": " + styles.List(u.Update.CompatibilityIssues)
		}
	case workflow.PhaseReplanning:
		if st.StopReason != "" {
			return styles.Error.Render("stopped") + ": " + st.StopReason
		}
		return st.OrchestratorPlan
	case workflow.PhaseSaveContext:
		return fmt.Sprintf("%d files saved", len(st.AllFiles))
	case workflow.PhaseDeliver:
		return styles.FinalStatus(st.FinalStatus)
	}
	return strings.Join(u.Update.Keys(), ", ")
}

func trackLine(t workflow.TrackState) string {
	return fmt.Sprintf("%s  %s", styles.TrackStatus(string(t.Status)), styles.List(t.FileNames()))
}

func (r *renderer) summary(st *workflow.State, logDir string) {
	compat := styles.Check(st.CompatibilityVerified)
	if st.JudgmentSkipped {
		compat += styles.Muted.Render(" (assumed)")
	}
	rows := []string{
		styles.Row("Session", st.SessionID),
		styles.Row("Status", styles.FinalStatus(st.FinalStatus)),
		styles.Row("Reason", st.StopReason),
		styles.Row("Iterations", fmt.Sprintf("%d/%d", st.IterationCount, st.MaxIterations)),
		styles.Row("Backend", trackLine(st.Backend)),
		styles.Row("Frontend", trackLine(st.Frontend)),
		styles.Row("Compatible", compat),
		styles.Row("Project", st.ProjectDir),
		styles.Row("Logs", filepath.Join(logDir, st.SessionID)),
		styles.Row("Duration", fmt.Sprintf("%.1fs", st.TotalDurationSeconds)),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, styles.SummaryBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}
