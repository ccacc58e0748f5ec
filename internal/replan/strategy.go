package replan

import (
	"fmt"
)

// Severity rates how serious a failure category is.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// UnknownFailureReason is the reason reported when no failure category is
// known. Replanning omits it from the failure summary.
const UnknownFailureReason = "Unknown failure - generic retry"

// ActionTemplate is a suggested follow-up step for a failure category.
type ActionTemplate struct {
	Type   string `json:"type"`
	Cmd    string `json:"cmd"`
	Client string `json:"client"`
}

// Strategy is the remediation policy for one failure category.
type Strategy struct {
	Stop        bool             `json:"stop"`
	Reason      string           `json:"reason"`
	NextActions []ActionTemplate `json:"next_actions"`
	Severity    Severity         `json:"severity"`
}

func backendStep(typ, cmd string) ActionTemplate {
	return ActionTemplate{Type: typ, Cmd: cmd, Client: "backend"}
}

var strategies = map[FailureType]Strategy{
	PermissionDenied: {
		Stop:     true,
		Reason:   "Permission error - requires manual intervention",
		Severity: SeverityCritical,
	},
	TestsFail: {
		Reason: "Tests failed - retrying with verbose mode",
		NextActions: []ActionTemplate{
			backendStep("test", "pytest -v --tb=short"),
			backendStep("shell", "cat pytest.log"),
		},
		Severity: SeverityMedium,
	},
	LintFail: {
		Reason: "Lint errors - attempting auto-fix",
		NextActions: []ActionTemplate{
			backendStep("lint", "autopep8 --in-place --recursive ."),
			backendStep("lint", "black . --check"),
			backendStep("lint", "flake8 --count --statistics"),
		},
		Severity: SeverityLow,
	},
	BuildFail: {
		Reason: "Build failed - checking dependencies",
		NextActions: []ActionTemplate{
			backendStep("shell", "pip install --upgrade pip"),
			backendStep("shell", "pip install -r requirements.txt"),
			backendStep("build", "python setup.py build"),
		},
		Severity: SeverityHigh,
	},
	DeployFail: {
		Reason: "Deployment failed - checking configuration",
		NextActions: []ActionTemplate{
			backendStep("shell", "docker build -t app . --no-cache"),
			backendStep("deploy", "docker run -p 8080:8080 app"),
		},
		Severity: SeverityHigh,
	},
	CodegenFail: {
		Reason: "Code generation incomplete - regenerating",
		NextActions: []ActionTemplate{
			backendStep("codegen", "Regenerate missing files with more details"),
		},
		Severity: SeverityMedium,
	},
	RefactorFail: {
		Reason: "Refactoring broke tests - reverting",
		NextActions: []ActionTemplate{
			backendStep("shell", "git checkout HEAD -- ."),
			backendStep("test", "pytest"),
		},
		Severity: SeverityHigh,
	},
	VerifyFail: {
		Reason:   "Generic verification failure - retrying",
		Severity: SeverityLow,
	},
}

// StrategyFor returns the policy for a failure category. The empty category
// yields a low-severity generic retry; unrecognized categories yield a
// medium-severity retry naming the category. The returned value is a copy.
func StrategyFor(ft FailureType) Strategy {
	if ft == "" {
		return Strategy{Reason: UnknownFailureReason, Severity: SeverityLow}
	}
	s, ok := strategies[ft]
	if !ok {
		return Strategy{
			Reason:   fmt.Sprintf("Unknown failure type: %s", ft),
			Severity: SeverityMedium,
		}
	}
	s.NextActions = append([]ActionTemplate(nil), s.NextActions...)
	return s
}

// ShouldStop reports whether replanning must stop: the category says stop,
// the consecutive-failure ceiling is reached, or the severity is critical.
func ShouldStop(ft FailureType, consecutiveFailures, maxFailures int) bool {
	s := StrategyFor(ft)
	return s.Stop || consecutiveFailures >= maxFailures || s.Severity == SeverityCritical
}

// Context carries judgment output that is folded into the next attempt's
// failure summary.
type Context struct {
	CompatibilityIssues []string
	Recommendations     []string
}

// Response is the replanning decision.
type Response struct {
	Stop        bool
	Reason      string
	NextGoal    string
	NextActions []ActionTemplate
	NeedsRework bool
	Severity    Severity
	// FailureSummary holds the extra lines for the next generation attempt.
	FailureSummary []string
}

// Limits on how much judgment context is carried into the failure summary.
const (
	maxIssueLines          = 5
	maxRecommendationLines = 3
)

// CreateReplanResponse packages the stop decision. When continuing, the goal
// is kept and the strategy's next actions are suggested along with failure
// summary lines built from ctx.
func CreateReplanResponse(ft FailureType, goal string, consecutiveFailures, maxFailures int, ctx Context) Response {
	s := StrategyFor(ft)

	if ShouldStop(ft, consecutiveFailures, maxFailures) {
		reason := s.Reason
		if !s.Stop && s.Severity != SeverityCritical {
			reason = fmt.Sprintf("Max consecutive failures reached (%d/%d): %s", consecutiveFailures, maxFailures, s.Reason)
		}
		return Response{
			Stop:     true,
			Reason:   reason,
			Severity: s.Severity,
		}
	}

	return Response{
		Reason:         s.Reason,
		NextGoal:       goal,
		NextActions:    s.NextActions,
		NeedsRework:    true,
		Severity:       s.Severity,
		FailureSummary: SummaryLines(s.Reason, ctx),
	}
}

// SummaryLines formats judgment context and the strategy reason as
// failure-summary lines for the next generation attempt.
func SummaryLines(reason string, ctx Context) []string {
	var lines []string
	for i, issue := range ctx.CompatibilityIssues {
		if i >= maxIssueLines {
			break
		}
		lines = append(lines, "COMPATIBILITY ISSUE: "+issue)
	}
	for i, rec := range ctx.Recommendations {
		if i >= maxRecommendationLines {
			break
		}
		lines = append(lines, "RECOMMENDATION: "+rec)
	}
	if reason != "" && reason != UnknownFailureReason {
		lines = append(lines, "FAILURE REASON: "+reason)
	}
	return lines
}
