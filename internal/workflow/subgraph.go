package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/event"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/verify"
)

// Track action types recorded on generation.
const (
	actionFiles   = "files"
	actionCodegen = "codegen"
)

func trackTitle(track string) string {
	return strings.ToUpper(track[:1]) + track[1:]
}

func trackKind(track string, full bool) verify.Kind {
	kind := verify.KindBackend
	if track == TrackFrontend {
		kind = verify.KindFrontend
	}
	if full {
		return kind.Full()
	}
	return kind
}

// trackNode runs the generate/verify cycle of one track on a private copy
// of the state and returns the accumulated update. The loop ends when the
// router exits; the iteration counter advances on every attempt, so the
// loop is bounded by the per-track ceiling.
func (r *run) trackNode(track string) Node {
	return func(ctx context.Context, st *State) Update {
		local := st.Clone()
		var acc Update
		for {
			gen := r.generate(ctx, local, track)
			local.Apply(gen)
			acc = MergeUpdates(acc, gen)

			ver := r.verifyTrack(ctx, local, track)
			local.Apply(ver)
			acc = MergeUpdates(acc, ver)

			if !routeTrack(local, track) {
				return acc
			}
			r.logger.WithTrack(track).Info("track needs rework", "iteration", local.Track(track).Iterations)
		}
	}
}

// routeTrack reports whether the track loops back to generate: never at
// the ceiling, otherwise only when verification asked for rework.
func routeTrack(st *State, track string) bool {
	t := st.Track(track)
	if t.Iterations >= st.MaxSubgraphIterations {
		return false
	}
	return t.NeedsRework
}

func (r *run) trackFallback(track string) func(*State, error) Update {
	return func(st *State, err error) Update {
		var u Update
		tu := u.Track(track)
		tu.Status = ptr(StatusFailed)
		tu.NeedsRework = ptr(true)
		tu.Iterations = ptr(st.Track(track).Iterations + 1)
		tu.Logs = []string{fmt.Sprintf("%s subgraph error: %v", trackTitle(track), err)}
		return u
	}
}

func (r *run) trackDir(st *State, track string) string {
	return filepath.Join(st.ProjectDir, track)
}

// generate asks the track's source for files. Agentic sources write into
// the track directory themselves; otherwise the files are parsed from the
// response and written there.
func (r *run) generate(ctx context.Context, st *State, track string) Update {
	title := trackTitle(track)
	logger := r.logger.WithTrack(track)
	iteration := st.Track(track).Iterations + 1

	var u Update
	tu := u.Track(track)
	tu.Iterations = ptr(iteration)
	failed := func(msg string, cause error) Update {
		logger.Failure("generation failed",
			daacserrors.NewGenerationError(msg, cause).WithTrack(track).WithIteration(iteration))
		tu.Files = nil
		tu.Status = ptr(StatusFailed)
		tu.ActionType = ptr(actionCodegen)
		tu.Logs = []string{msg}
		r.publishTrack(track, StatusFailed, nil, iteration)
		return u
	}

	dir := r.trackDir(st, track)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failed(fmt.Sprintf("%s coder error: %v", title, err), err)
	}

	logger.Info("generating", "iteration", iteration, "dir", dir)
	source := r.w.sources[track]
	resp, err := source.Invoke(ctx, BuildTrackPrompt(track, st, dir), llm.WithWorkDir(dir))
	// An empty response still counts when the assistant wrote the files
	// itself; the scan below decides.
	if err != nil && !errors.Is(err, daacserrors.ErrEmptyResponse) {
		return failed(fmt.Sprintf("%s coder error: %s", title, llm.ErrorText(err)), err)
	}

	files, err := verify.Scan(dir, trackKind(track, false))
	if err != nil {
		return failed(fmt.Sprintf("%s coder error: %v", title, err), err)
	}
	if len(files) == 0 {
		files = ParseFiles(resp)
		if len(files) > 0 {
			if err := writeFiles(dir, files); err != nil {
				return failed(fmt.Sprintf("%s coder error: %v", title, err), err)
			}
			logger.Debug("wrote parsed files", "count", len(files))
		}
	}
	if len(files) == 0 {
		return failed(title+" coder failed: No files generated", daacserrors.ErrNoFilesGenerated)
	}

	tu.Files = files
	tu.Status = ptr(StatusWorking)
	tu.ActionType = ptr(actionFiles)
	names := TrackState{Files: files}.FileNames()
	tu.Logs = []string{fmt.Sprintf("%s coder generated: %v", title, names)}
	logger.Info("generated", "files", len(files))
	r.publishTrack(track, StatusWorking, names, iteration)
	return u
}

// publishTrack announces a track status change.
func (r *run) publishTrack(track string, status TrackStatus, files []string, iteration int) {
	r.w.deps.Bus.Publish(event.NewTrackUpdatedEvent(track, string(status), files, iteration))
}

// verifyTrack runs the verification engine over the track's files.
func (r *run) verifyTrack(ctx context.Context, st *State, track string) Update {
	title := trackTitle(track)
	t := st.Track(track)

	var u Update
	tu := u.Track(track)

	names := t.FileNames()
	if len(names) == 0 {
		tu.NeedsRework = ptr(true)
		tu.Status = ptr(StatusFailed)
		tu.Verdicts = []verify.Verdict{}
		tu.Logs = []string{title + " verifier: No files to verify"}
		r.w.deps.Bus.Publish(event.NewVerifiedEvent(track, false, "No files to verify"))
		return u
	}

	res := r.w.deps.Verifier.Run(ctx, verify.Request{
		Kind:    trackKind(track, st.FullVerification),
		Files:   names,
		Dir:     r.trackDir(st, track),
		Output:  t.TestResult,
		APISpec: st.APISpec,
	})

	tu.NeedsRework = ptr(!res.OK)
	tu.Verdicts = res.Verdicts
	if tu.Verdicts == nil {
		tu.Verdicts = []verify.Verdict{}
	}
	tu.Logs = []string{title + " verifier: " + res.Summary}
	if res.OK {
		tu.Status = ptr(StatusCompleted)
	} else {
		tu.Status = ptr(StatusFailed)
		for _, reason := range res.FailedReasons() {
			u.FailureSummary = append(u.FailureSummary, trackReason(track, reason))
		}
	}
	r.logger.WithTrack(track).Info("verified", "ok", res.OK, "summary", res.Summary)
	r.w.deps.Bus.Publish(event.NewVerifiedEvent(track, res.OK, res.Summary))
	return u
}
