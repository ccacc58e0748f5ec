package verify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// lintErrorPattern matches error words and flake8/pylint style codes.
var lintErrorPattern = regexp.MustCompile(`(?i)error|\b[EW][0-9]{3}\b`)

func checkTestsPass(_ context.Context, req Request) (Verdict, bool) {
	if !req.hasOutput() {
		return Verdict{}, false
	}
	lower := strings.ToLower(req.Output)
	if strings.Contains(lower, "fail") || strings.Contains(lower, "error") {
		return fail(TestsPass, "Tests failed - check output", req.Output), true
	}
	return pass(TestsPass, "Tests passed"), true
}

func checkTestsNoError(_ context.Context, req Request) (Verdict, bool) {
	if !req.hasOutput() {
		return Verdict{}, false
	}
	if strings.Contains(strings.ToLower(req.Output), "error") {
		return fail(TestsNoError, "Test output contains errors", req.Output), true
	}
	return pass(TestsNoError, "No errors in test output"), true
}

func checkLintPass(_ context.Context, req Request) (Verdict, bool) {
	if !req.hasOutput() {
		return Verdict{}, false
	}
	if lintErrorPattern.MatchString(req.Output) {
		return fail(LintPass, "Lint errors found", req.Output), true
	}
	return pass(LintPass, "Lint passed"), true
}

// exitCheck judges a build or deploy step by exit code when one is known,
// falling back to scanning the output for failure markers.
func exitCheck(id CheckID, label string) CheckFunc {
	return func(_ context.Context, req Request) (Verdict, bool) {
		if !req.hasOutput() {
			return Verdict{}, false
		}
		if req.ExitCode != nil {
			if *req.ExitCode != 0 {
				return fail(id, fmt.Sprintf("%s failed (code %d)", label, *req.ExitCode), req.Output), true
			}
			return pass(id, label+" succeeded"), true
		}
		lower := strings.ToLower(req.Output)
		if strings.Contains(lower, strings.ToLower(label)+" failed") || strings.Contains(lower, "error") {
			return fail(id, label+" failed - check output", req.Output), true
		}
		return pass(id, label+" succeeded"), true
	}
}
