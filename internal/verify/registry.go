package verify

import (
	"slices"
)

// CheckID identifies a check implementation.
type CheckID string

// Built-in checks.
const (
	FilesExist            CheckID = "files_exist"
	FilesNotEmpty         CheckID = "files_not_empty"
	FilesNoHidden         CheckID = "files_no_hidden"
	FilesMatchListing     CheckID = "files_match_listing"
	PythonSyntaxValid     CheckID = "python_syntax_valid"
	PythonImportTest      CheckID = "python_import_test"
	JavaScriptSyntaxValid CheckID = "javascript_syntax_valid"
	APISpecCompliance     CheckID = "api_spec_compliance"
	FrontendBuildTest     CheckID = "frontend_build_test"
	BackendServerTest     CheckID = "backend_server_test"
	TestsPass             CheckID = "tests_pass"
	TestsNoError          CheckID = "tests_no_error"
	LintPass              CheckID = "lint_pass"
	BuildSuccess          CheckID = "build_success"
	DeploySuccess         CheckID = "deploy_success"
)

// Kind is an action type or track whose correctness is defined by a check
// set.
type Kind string

// Track kinds.
const (
	KindBackend      Kind = "backend"
	KindFrontend     Kind = "frontend"
	KindBackendFull  Kind = "backend_full"
	KindFrontendFull Kind = "frontend_full"
)

// Action kinds.
const (
	KindShell    Kind = "shell"
	KindEdit     Kind = "edit"
	KindFiles    Kind = "files"
	KindListing  Kind = "listing"
	KindTest     Kind = "test"
	KindLint     Kind = "lint"
	KindBuild    Kind = "build"
	KindDeploy   Kind = "deploy"
	KindCodegen  Kind = "codegen"
	KindRefactor Kind = "refactor"
)

// Base returns the track a full-verification kind belongs to.
func (k Kind) Base() Kind {
	switch k {
	case KindBackendFull:
		return KindBackend
	case KindFrontendFull:
		return KindFrontend
	default:
		return k
	}
}

// Full returns the full-verification variant of a track kind.
func (k Kind) Full() Kind {
	switch k {
	case KindBackend:
		return KindBackendFull
	case KindFrontend:
		return KindFrontendFull
	default:
		return k
	}
}

// defaultKinds is the single table that defines what "correct" means for
// each kind. Kinds that are not listed get files_exist.
func defaultKinds() map[Kind][]CheckID {
	return map[Kind][]CheckID{
		KindFiles:    {FilesExist, FilesNotEmpty, FilesNoHidden},
		KindListing:  {FilesExist, FilesNotEmpty, FilesNoHidden, FilesMatchListing},
		KindShell:    {FilesExist},
		KindEdit:     {FilesExist},
		KindTest:     {FilesExist, TestsPass, TestsNoError},
		KindLint:     {FilesExist, LintPass},
		KindBuild:    {FilesExist, BuildSuccess},
		KindDeploy:   {FilesExist, DeploySuccess},
		KindCodegen:  {FilesExist, FilesNotEmpty},
		KindRefactor: {FilesExist, FilesNotEmpty, TestsPass},

		KindBackend:      {FilesExist, FilesNotEmpty, PythonSyntaxValid, PythonImportTest, APISpecCompliance},
		KindFrontend:     {FilesExist, FilesNotEmpty, JavaScriptSyntaxValid, FrontendBuildTest},
		KindBackendFull:  {FilesExist, FilesNotEmpty, PythonSyntaxValid, PythonImportTest, BackendServerTest, APISpecCompliance},
		KindFrontendFull: {FilesExist, FilesNotEmpty, JavaScriptSyntaxValid, FrontendBuildTest},
	}
}

// ChecksFor returns the check set registered for kind.
func (e *Engine) ChecksFor(kind Kind) []CheckID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids, ok := e.kinds[kind]
	if !ok {
		return []CheckID{FilesExist}
	}
	return slices.Clone(ids)
}

// Kinds returns every registered kind.
func (e *Engine) Kinds() []Kind {
	e.mu.RLock()
	defer e.mu.RUnlock()

	kinds := make([]Kind, 0, len(e.kinds))
	for k := range e.kinds {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Register sets the check set for kind, replacing any existing entry.
func (e *Engine) Register(kind Kind, checks ...CheckID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds[kind] = slices.Clone(checks)
}

// RegisterCheck adds or replaces a check implementation.
func (e *Engine) RegisterCheck(id CheckID, fn CheckFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checks[id] = fn
}

func (e *Engine) builtinChecks() map[CheckID]CheckFunc {
	return map[CheckID]CheckFunc{
		FilesExist:            always(checkFilesExist),
		FilesNotEmpty:         always(checkFilesNotEmpty),
		FilesNoHidden:         always(checkFilesNoHidden),
		FilesMatchListing:     always(checkFilesMatchListing),
		PythonSyntaxValid:     e.checkPythonSyntax,
		PythonImportTest:      e.checkPythonImport,
		JavaScriptSyntaxValid: always(checkJavaScriptSyntax),
		APISpecCompliance:     checkAPISpecCompliance,
		FrontendBuildTest:     e.checkFrontendBuild,
		BackendServerTest:     e.checkBackendServer,
		TestsPass:             checkTestsPass,
		TestsNoError:          checkTestsNoError,
		LintPass:              checkLintPass,
		BuildSuccess:          exitCheck(BuildSuccess, "Build"),
		DeploySuccess:         exitCheck(DeploySuccess, "Deploy"),
	}
}
