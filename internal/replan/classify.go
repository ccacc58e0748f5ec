// Package replan classifies failures and maps each failure category to a
// remediation policy. Both the single-track loop and the dual-track workflow
// consult it after a failed verification.
package replan

import (
	"strings"
)

// FailureType is a discrete failure category. The empty value means no
// failure evidence was available.
type FailureType string

// Failure categories in classification priority order.
const (
	PermissionDenied FailureType = "permission_denied"
	TestsFail        FailureType = "tests_fail"
	LintFail         FailureType = "lint_fail"
	BuildFail        FailureType = "build_fail"
	DeployFail       FailureType = "deploy_fail"
	CodegenFail      FailureType = "codegen_fail"
	RefactorFail     FailureType = "refactor_fail"
	VerifyFail       FailureType = "verify_fail"
)

// AllFailureTypes returns every known category in priority order.
func AllFailureTypes() []FailureType {
	return []FailureType{
		PermissionDenied, TestsFail, LintFail, BuildFail,
		DeployFail, CodegenFail, RefactorFail, VerifyFail,
	}
}

// String returns the category name.
func (f FailureType) String() string {
	return string(f)
}

// IsPermissionError reports whether text carries one of the phrases that
// mark a non-retriable sandbox or permission problem.
func IsPermissionError(text string) bool {
	return strings.Contains(text, "Operation not permitted") ||
		strings.Contains(text, "rollout recorder") ||
		strings.Contains(strings.ToLower(text), "permission denied")
}

// DetectFailureType maps failure reasons and raw execution output to one
// category. The match is priority ordered: permission problems win over
// everything, VerifyFail is the catch-all when evidence exists but nothing
// matched, and ok is false when there is no evidence at all.
func DetectFailureType(reasons []string, output string) (ft FailureType, ok bool) {
	if len(reasons) == 0 && strings.TrimSpace(output) == "" {
		return "", false
	}

	lowered := make([]string, len(reasons))
	for i, r := range reasons {
		lowered[i] = strings.ToLower(r)
	}
	anyReason := func(match func(raw, lower string) bool) bool {
		for i, r := range reasons {
			if match(r, lowered[i]) {
				return true
			}
		}
		return false
	}
	containsLower := func(subs ...string) func(string, string) bool {
		return func(_, lower string) bool {
			for _, s := range subs {
				if strings.Contains(lower, s) {
					return true
				}
			}
			return false
		}
	}

	switch {
	case anyReason(func(raw, lower string) bool {
		return strings.Contains(lower, "permission") || strings.Contains(raw, "Operation not permitted")
	}):
		return PermissionDenied, true
	case strings.Contains(output, "rollout recorder") || strings.Contains(output, "Operation not permitted"):
		return PermissionDenied, true
	case anyReason(func(raw, lower string) bool {
		return strings.Contains(lower, "tests") || strings.Contains(raw, "FAILED")
	}):
		return TestsFail, true
	case anyReason(containsLower("lint")):
		return LintFail, true
	case anyReason(containsLower("build")):
		return BuildFail, true
	case anyReason(containsLower("deploy")):
		return DeployFail, true
	case anyReason(containsLower("missing files", "empty files")):
		return CodegenFail, true
	case anyReason(containsLower("refactor")):
		return RefactorFail, true
	}
	return VerifyFail, true
}
