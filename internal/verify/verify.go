// Package verify implements the verification engine that judges generated
// artifacts.
//
// A verification run selects a list of checks from a table keyed by action or
// track kind, runs each check against the request, and folds the verdicts into
// a single pass/fail result. Checks that shell out (compilers, package
// installers, server boot) are bounded by timeouts and never leave a process
// running after they return.
package verify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/Iron-Ham/daacs/internal/util"
)

// maxDetailLen bounds Verdict.Detail.
const maxDetailLen = 200

// Verdict is the outcome of a single check. Verdicts are never mutated after
// creation.
type Verdict struct {
	OK     bool    `json:"ok"`
	Check  CheckID `json:"check"`
	Target string  `json:"target,omitempty"`
	Reason string  `json:"reason"`
	Detail string  `json:"detail,omitempty"`
}

func pass(id CheckID, reason string) Verdict {
	return Verdict{OK: true, Check: id, Reason: reason}
}

func fail(id CheckID, reason, detail string) Verdict {
	return Verdict{OK: false, Check: id, Reason: reason, Detail: util.TruncateString(detail, maxDetailLen)}
}

// Request describes what to verify.
type Request struct {
	// Kind selects the check set from the registry
	Kind Kind
	// Files are the artifacts under test; relative paths resolve against Dir
	Files []string
	// Dir is the artifact directory (project dir for install/boot checks)
	Dir string
	// Output is raw test/lint/build output; output checks are skipped when
	// both Output and ExitCode are unset
	Output string
	// ExitCode is the exit status of the build or deploy command, if known
	ExitCode *int
	// APISpec is the planned API specification (endpoints + data models)
	APISpec map[string]any
}

func (r Request) hasOutput() bool {
	return r.Output != "" || r.ExitCode != nil
}

// paths returns Files resolved against Dir.
func (r Request) paths() []string {
	out := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		if r.Dir != "" && !filepath.IsAbs(f) {
			f = filepath.Join(r.Dir, f)
		}
		out = append(out, f)
	}
	return out
}

// Result is the aggregate outcome of a verification run.
type Result struct {
	OK       bool      `json:"ok"`
	Verdicts []Verdict `json:"verdicts"`
	Summary  string    `json:"summary"`
}

// FailedReasons returns the reasons of failing verdicts in run order.
func (r Result) FailedReasons() []string {
	var reasons []string
	for _, v := range r.Verdicts {
		if !v.OK {
			reasons = append(reasons, v.Reason)
		}
	}
	return reasons
}

// FailedChecks returns the identifiers of failing verdicts in run order.
func (r Result) FailedChecks() []CheckID {
	var ids []CheckID
	for _, v := range r.Verdicts {
		if !v.OK {
			ids = append(ids, v.Check)
		}
	}
	return ids
}

// AllPassedSummary is the summary of a run with no failing verdicts.
const AllPassedSummary = "All verifications passed"

func newResult(verdicts []Verdict) Result {
	res := Result{OK: true, Verdicts: verdicts}
	for _, v := range verdicts {
		if !v.OK {
			res.OK = false
		}
	}
	if res.OK {
		res.Summary = AllPassedSummary
	} else {
		res.Summary = "Failed: " + strings.Join(res.FailedReasons(), ", ")
	}
	return res
}

// CheckFunc runs one check. It returns false when the check does not apply
// to the request (for example an output check without output), in which case
// no verdict is recorded.
type CheckFunc func(ctx context.Context, req Request) (Verdict, bool)

// Engine runs verification requests against a registry of checks.
type Engine struct {
	mu     sync.RWMutex
	kinds  map[Kind][]CheckID
	checks map[CheckID]CheckFunc

	logger         *logging.Logger
	concurrency    int
	python         string
	serverPort     int
	fileTimeout    time.Duration
	installTimeout time.Duration
	bootTimeout    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConcurrency bounds how many per-file compiler processes run at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithPython sets the Python interpreter used by syntax and boot checks.
func WithPython(bin string) Option {
	return func(e *Engine) {
		e.python = bin
	}
}

// WithServerPort sets the port the backend boot check binds.
func WithServerPort(port int) Option {
	return func(e *Engine) {
		e.serverPort = port
	}
}

// WithTimeouts overrides the per-file compile, install and boot timeouts.
// Zero values keep the defaults.
func WithTimeouts(perFile, install, boot time.Duration) Option {
	return func(e *Engine) {
		if perFile > 0 {
			e.fileTimeout = perFile
		}
		if install > 0 {
			e.installTimeout = install
		}
		if boot > 0 {
			e.bootTimeout = boot
		}
	}
}

// NewEngine creates an engine with the built-in check set and kind table.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		kinds:          defaultKinds(),
		logger:         logging.NopLogger(),
		concurrency:    4,
		serverPort:     8080,
		fileTimeout:    10 * time.Second,
		installTimeout: 120 * time.Second,
		bootTimeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.checks = e.builtinChecks()
	return e
}

// Run verifies req using the check set registered for req.Kind.
func (e *Engine) Run(ctx context.Context, req Request) Result {
	ids := e.ChecksFor(req.Kind)
	specs := make([]string, len(ids))
	for i, id := range ids {
		specs[i] = string(id)
	}
	return e.RunChecks(ctx, specs, req)
}

// RunChecks runs an explicit list of check specs. A spec is a check id,
// optionally followed by ":target" to scope a file check to one path
// (for example "files_exist:files.txt"). Unknown ids pass with a note.
func (e *Engine) RunChecks(ctx context.Context, specs []string, req Request) Result {
	verdicts := make([]Verdict, 0, len(specs))
	for _, spec := range specs {
		id, target := ParseCheckSpec(spec)

		e.mu.RLock()
		fn, ok := e.checks[id]
		e.mu.RUnlock()

		if !ok {
			verdicts = append(verdicts, Verdict{OK: true, Check: id, Reason: fmt.Sprintf("unknown verifier ignored: %s", spec)})
			continue
		}

		scoped := req
		if target != "" {
			scoped.Files = []string{target}
		}
		v, applies := fn(ctx, scoped)
		if !applies {
			continue
		}
		v.Check = id
		v.Target = target
		verdicts = append(verdicts, v)
	}

	res := newResult(verdicts)
	e.logger.Debug("verification finished",
		"kind", string(req.Kind),
		"files", len(req.Files),
		"ok", res.OK,
		"failed", len(res.FailedReasons()),
	)
	return res
}

// ParseCheckSpec splits "id:target" into its parts.
func ParseCheckSpec(spec string) (CheckID, string) {
	id, target, _ := strings.Cut(spec, ":")
	return CheckID(strings.TrimSpace(id)), strings.TrimSpace(target)
}
