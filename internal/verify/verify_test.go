package verify

import (
	"context"
	"slices"
	"testing"

	"github.com/Iron-Ham/daacs/internal/testutil"
)

func TestChecksFor(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		kind Kind
		want []CheckID
	}{
		{KindBackend, []CheckID{FilesExist, FilesNotEmpty, PythonSyntaxValid, PythonImportTest, APISpecCompliance}},
		{KindFrontend, []CheckID{FilesExist, FilesNotEmpty, JavaScriptSyntaxValid, FrontendBuildTest}},
		{KindTest, []CheckID{FilesExist, TestsPass, TestsNoError}},
		{KindListing, []CheckID{FilesExist, FilesNotEmpty, FilesNoHidden, FilesMatchListing}},
		{"unknown", []CheckID{FilesExist}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := e.ChecksFor(tt.kind); !slices.Equal(got, tt.want) {
				t.Errorf("ChecksFor(%q) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}

	if !slices.Contains(e.ChecksFor(KindBackendFull), BackendServerTest) {
		t.Error("backend_full should include backend_server_test")
	}
}

func TestKindBaseAndFull(t *testing.T) {
	if KindBackendFull.Base() != KindBackend || KindFrontend.Full() != KindFrontendFull {
		t.Error("Base/Full mapping broken")
	}
	if KindShell.Full() != KindShell || KindShell.Base() != KindShell {
		t.Error("action kinds should map to themselves")
	}
}

func TestRegister(t *testing.T) {
	e := NewEngine()
	e.RegisterCheck("has_readme", func(_ context.Context, req Request) (Verdict, bool) {
		for _, f := range req.Files {
			if f == "README.md" {
				return Verdict{OK: true, Reason: "readme present"}, true
			}
		}
		return Verdict{OK: false, Reason: "readme missing"}, true
	})
	e.Register("docs", FilesExist, "has_readme")

	dir := testutil.SetupProjectDir(t, map[string]string{"README.md": "# hi"})
	res := e.Run(context.Background(), Request{Kind: "docs", Dir: dir, Files: []string{"README.md"}})
	if !res.OK || len(res.Verdicts) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Verdicts[1].Check != "has_readme" {
		t.Errorf("Check = %q, want has_readme", res.Verdicts[1].Check)
	}
	if !slices.Contains(e.Kinds(), Kind("docs")) {
		t.Error("Kinds() should include registered kind")
	}
}

func TestRunChecks_UnknownIgnored(t *testing.T) {
	res := NewEngine().RunChecks(context.Background(), []string{"made_up:thing"}, Request{})
	if !res.OK {
		t.Fatalf("unknown check should pass: %+v", res)
	}
	if res.Verdicts[0].Reason != "unknown verifier ignored: made_up:thing" {
		t.Errorf("Reason = %q", res.Verdicts[0].Reason)
	}
}

func TestRun_NoVerdictsPasses(t *testing.T) {
	res := NewEngine().RunChecks(context.Background(), []string{"tests_pass"}, Request{})
	if !res.OK || res.Summary != AllPassedSummary || len(res.Verdicts) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_Deterministic(t *testing.T) {
	dir := testutil.SetupProjectDir(t, map[string]string{
		"main.py":  "",
		"style.js": "function (",
	})
	e := NewEngine()
	req := Request{Kind: KindCodegen, Dir: dir, Files: []string{"main.py", "style.js", "gone.py"}}

	first := e.Run(context.Background(), req)
	for i := 0; i < 5; i++ {
		got := e.Run(context.Background(), req)
		if got.OK != first.OK || !slices.Equal(got.FailedChecks(), first.FailedChecks()) {
			t.Fatalf("run %d = %+v, want %+v", i, got, first)
		}
	}
	if !slices.Equal(first.FailedChecks(), []CheckID{FilesExist, FilesNotEmpty}) {
		t.Errorf("FailedChecks = %v", first.FailedChecks())
	}
}

func TestParseCheckSpec(t *testing.T) {
	id, target := ParseCheckSpec("files_exist:files.txt")
	if id != FilesExist || target != "files.txt" {
		t.Errorf("ParseCheckSpec = (%q, %q)", id, target)
	}
	id, target = ParseCheckSpec("tests_pass")
	if id != TestsPass || target != "" {
		t.Errorf("ParseCheckSpec = (%q, %q)", id, target)
	}
}
