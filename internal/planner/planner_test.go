package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/llm"
	"github.com/Iron-Ham/daacs/internal/testutil"
	"github.com/Iron-Ham/daacs/internal/verify"
)

// scriptedSource returns canned responses in order; the last one repeats.
type scriptedSource struct {
	responses []string
	err       error
	prompts   []string
}

func (s *scriptedSource) Invoke(_ context.Context, prompt string, _ ...llm.InvokeOption) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	i := len(s.prompts) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedSource) InvokeStructured(ctx context.Context, prompt string, _ ...llm.InvokeOption) (map[string]any, error) {
	text, err := s.Invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return llm.ParseJSON(text)
}

func (s *scriptedSource) Describe() string { return "scripted" }

func TestCreatePlan_ListingFallback(t *testing.T) {
	p := New(nil, verify.NewEngine())
	plan := p.CreatePlan(context.Background(), "list files into files.txt")

	require.Len(t, plan.Actions, 1)
	a := plan.Actions[0]
	assert.Equal(t, TypeShell, a.Type)
	assert.Equal(t, ClientFrontend, a.Client)
	assert.Contains(t, a.Instruction, "find . -maxdepth 1 -mindepth 1 -not -name 'files.txt' -not -path './.*'")
	assert.Contains(t, a.Instruction, "-printf '%f\\n' | sort > files.txt")
	assert.ElementsMatch(t, listingChecks, a.Verify)
	assert.Equal(t, []string{ListingFile}, a.Targets)
	assert.True(t, plan.NeedsFrontend)
	assert.False(t, plan.NeedsBackend)
}

func TestCreatePlan_KoreanListingGoal(t *testing.T) {
	plan := New(nil, nil).CreatePlan(context.Background(), "현재 폴더 파일 목록 만들기")
	require.Len(t, plan.Actions, 1)
	assert.Contains(t, plan.Actions[0].Instruction, ListingCommand)
}

func TestCreatePlan_PassThroughFallback(t *testing.T) {
	plan := New(nil, nil).CreatePlan(context.Background(), "build a calculator")
	require.Len(t, plan.Actions, 1)
	a := plan.Actions[0]
	assert.Equal(t, "Please implement the following: build a calculator Sort names one per line.", a.Instruction)
	assert.Empty(t, a.Verify)
	assert.Equal(t, "pass-through instruction", a.Comment)
}

func TestCreatePlan_ModelActions(t *testing.T) {
	src := &scriptedSource{responses: []string{"```json\n" + `{
		"goal": "todo cli",
		"actions": [
			{"type": "codegen", "instruction": "Create todo.py", "client": "backend", "targets": ["todo.py"]},
			{"type": "test", "instruction": "Run pytest -q"}
		],
		"next_goal": "add persistence"
	}` + "\n```"}}

	p := New(src, nil, WithMode("prod"))
	plan := p.CreatePlan(context.Background(), "todo cli")

	require.Len(t, plan.Actions, 2)
	assert.Equal(t, TypeCodegen, plan.Actions[0].Type)
	assert.Equal(t, []string{"tests_pass", "tests_no_error", "lint_pass"}, plan.Actions[0].Verify)
	assert.Equal(t, ClientFrontend, plan.Actions[1].Client)
	assert.Equal(t, "add persistence", plan.NextGoal)
	assert.Equal(t, "prod", plan.Mode)
	assert.False(t, plan.Constraints)
	assert.True(t, plan.NeedsBackend)
	assert.True(t, plan.NeedsFrontend)

	require.Len(t, src.prompts, 1)
	assert.True(t, strings.HasPrefix(src.prompts[0], promptHeader))
	assert.Contains(t, src.prompts[0], "DAACS PROD MODE is active")
}

func TestCreatePlan_TestModePrompt(t *testing.T) {
	src := &scriptedSource{responses: []string{"not json"}}
	New(src, nil).CreatePlan(context.Background(), "anything")

	require.Len(t, src.prompts, 1)
	assert.Contains(t, src.prompts[0], "DAACS TEST MODE is active")
	assert.Contains(t, src.prompts[0], "tests/test_basic.py")
	assert.Contains(t, src.prompts[0], `"goal":"anything"`)
}

func TestCreatePlan_FallbackOnBadModelOutput(t *testing.T) {
	tests := []struct {
		name string
		src  *scriptedSource
	}{
		{name: "call error", src: &scriptedSource{err: errors.New("codex exploded")}},
		{name: "not json", src: &scriptedSource{responses: []string{"I cannot help"}}},
		{name: "empty actions", src: &scriptedSource{responses: []string{`{"actions": []}`}}},
		{name: "actions wrong type", src: &scriptedSource{responses: []string{`{"actions": "do it"}`}}},
		{name: "only invalid actions", src: &scriptedSource{responses: []string{`{"actions": [{"type": "dance", "instruction": "x"}]}`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := New(tt.src, nil).CreatePlan(context.Background(), "ship it")
			require.Len(t, plan.Actions, 1)
			assert.Equal(t, "pass-through instruction", plan.Actions[0].Comment)
		})
	}
}

func TestSanitize_RewritesUnsafeListing(t *testing.T) {
	out := Sanitize([]Action{{Instruction: "ls -la to list files.txt"}})
	require.Len(t, out, 1)
	a := out[0]

	assert.NotContains(t, a.Instruction, "ls -la")
	assert.Contains(t, a.Instruction, "find . -maxdepth 1 -mindepth 1 -not -name 'files.txt' -not -path './.*' -printf '%f\\n' | sort > files.txt")
	assert.True(t, strings.HasSuffix(a.Instruction, " Exclude files.txt from the output."))
	assert.Equal(t, TypeShell, a.Type)
	assert.Equal(t, ClientFrontend, a.Client)
	assert.Equal(t, DevInstruction, a.Action)
	assert.Equal(t, listingChecks, a.Verify)
}

func TestSanitize_Rules(t *testing.T) {
	tests := []struct {
		name       string
		in         Action
		wantInstr  string
		wantVerify []string
	}{
		{
			name:       "ls -A without listing file",
			in:         Action{Type: TypeShell, Instruction: "run ls -A and sort"},
			wantInstr:  "run ls -1 and sort",
			wantVerify: []string{},
		},
		{
			name:       "shell without listing gets no template",
			in:         Action{Type: TypeShell, Instruction: "echo hi"},
			wantInstr:  "echo hi Sort names one per line.",
			wantVerify: []string{},
		},
		{
			name:       "build template",
			in:         Action{Type: TypeBuild, Instruction: "make build", Verify: []string{"custom"}},
			wantInstr:  "make build Sort names one per line.",
			wantVerify: []string{"custom", "build_success"},
		},
		{
			name:       "declared template check is not repeated",
			in:         Action{Type: TypeCodegen, Instruction: "write app.py, sort", Verify: []string{"lint_pass"}},
			wantInstr:  "write app.py, sort",
			wantVerify: []string{"lint_pass", "tests_pass", "tests_no_error"},
		},
		{
			name:       "edit keeps declared and adds listing checks",
			in:         Action{Type: TypeEdit, Instruction: "append a line to files.txt, exclude files.txt, sort"},
			wantInstr:  "append a line to files.txt, exclude files.txt, sort",
			wantVerify: []string{"files_exist:files.txt", "files_not_empty:files.txt", "files_no_hidden:files.txt", "files_match_listing:files.txt"},
		},
		{
			name:       "rg --files forces canonical listing",
			in:         Action{Type: TypeShell, Instruction: "rg --files > files.txt"},
			wantInstr:  ListingCommand + " Exclude files.txt from the output.",
			wantVerify: listingChecks,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize([]Action{tt.in})[0]
			assert.Equal(t, tt.wantInstr, got.Instruction)
			assert.Equal(t, tt.wantVerify, got.Verify)
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []Action{
		{Instruction: "ls -la to list files.txt"},
		{Type: TypeCodegen, Instruction: "Create app.py", Client: ClientBackend},
		{Type: TypeDeploy, Instruction: "deploy", Verify: []string{"build_success", "deploy_success"}},
		{Type: TypeShell, Instruction: "echo hi"},
	}
	inputs = append(inputs, FallbackActions("write files.txt")...)
	inputs = append(inputs, skeletonActions()...)

	once := Sanitize(inputs)
	twice := Sanitize(once)
	assert.Equal(t, once, twice)
}

func TestNextInstruction(t *testing.T) {
	p := New(nil, nil)
	plan := &Plan{Actions: []Action{{Instruction: "a"}, {Instruction: "b"}}}

	a, ok := p.NextInstruction(plan)
	require.True(t, ok)
	assert.Equal(t, "a", a.Instruction)
	assert.Equal(t, 1, plan.Cursor)

	a, ok = p.NextInstruction(plan)
	require.True(t, ok)
	assert.Equal(t, "b", a.Instruction)

	_, ok = p.NextInstruction(plan)
	assert.False(t, ok)
	assert.Equal(t, 2, plan.Cursor)
}

func TestPlan_SpliceAndRewind(t *testing.T) {
	plan := &Plan{Actions: []Action{{Instruction: "a"}, {Instruction: "b"}, {Instruction: "c"}}, Cursor: 2}
	plan.Splice([]Action{{Instruction: "fix"}})

	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "fix", plan.Actions[0].Instruction)
	assert.Equal(t, "c", plan.Actions[1].Instruction)
	assert.Equal(t, 0, plan.Cursor)

	plan.Rewind()
	assert.Equal(t, 0, plan.Cursor)
	plan.Cursor = 2
	plan.Rewind()
	assert.Equal(t, 1, plan.Cursor)
}

func TestReviewResult_ListingRoundTrip(t *testing.T) {
	dir := testutil.SetupProjectDir(t, map[string]string{
		"main.py":         "print('hi')\n",
		"README.md":       "# readme\n",
		"src/app.py":      "x = 1\n",
		".hidden/secrets": "nope\n",
	})

	p := New(nil, verify.NewEngine(), WithWorkDir(dir))
	plan := p.CreatePlan(context.Background(), "list files into files.txt")
	action, ok := p.NextInstruction(plan)
	require.True(t, ok)

	t.Run("missing listing fails", func(t *testing.T) {
		review := p.ReviewResult(context.Background(), action, "done")
		assert.False(t, review.Success)
		assert.True(t, review.NeedsRetry)
		assert.Contains(t, review.Verify.FailedChecks(), verify.FilesExist)
	})

	t.Run("hidden entry fails", func(t *testing.T) {
		testutil.WriteFiles(t, dir, map[string]string{"files.txt": ".hidden\nREADME.md\nmain.py\nsrc\n"})
		review := p.ReviewResult(context.Background(), action, "done")
		assert.False(t, review.Success)
		assert.Contains(t, review.Verify.FailedChecks(), verify.FilesNoHidden)
	})

	t.Run("exact listing passes", func(t *testing.T) {
		testutil.WriteFiles(t, dir, map[string]string{"files.txt": "README.md\nmain.py\nsrc\n"})
		review := p.ReviewResult(context.Background(), action, "done")
		assert.True(t, review.Success, review.Verify.Summary)
		assert.True(t, review.IsComplete)
		assert.Equal(t, 0, p.FailedStreak())
	})
}

func TestReviewResult_ErrorMarkerShortCircuits(t *testing.T) {
	p := New(nil, verify.NewEngine())
	action := Sanitize([]Action{{Type: TypeTest, Instruction: "pytest"}})[0]

	review := p.ReviewResult(context.Background(), action, "Traceback: ValueError")
	assert.False(t, review.Success)
	require.Len(t, review.Verify.Verdicts, 1)
	assert.Equal(t, "result contains error", review.Verify.Verdicts[0].Reason)
	assert.Equal(t, 1, p.FailedStreak())

	review = p.ReviewResult(context.Background(), action, "3 passed in 0.1s")
	assert.True(t, review.Success)
	assert.Equal(t, 0, p.FailedStreak())
}

func TestReviewResult_EmptyResultFails(t *testing.T) {
	p := New(nil, verify.NewEngine())
	action := Sanitize([]Action{{Type: TypeShell, Instruction: "make a thing"}})[0]
	action.Verify = nil

	for _, result := range []string{"", "  \n\t"} {
		review := p.ReviewResult(context.Background(), action, result)
		assert.False(t, review.Success, "result %q", result)
		assert.True(t, review.NeedsRetry)
		require.Len(t, review.Verify.Verdicts, 1)
		assert.Equal(t, "result is empty", review.Verify.Verdicts[0].Reason)
	}
	assert.Equal(t, 2, p.FailedStreak())
}

func TestPlanNext(t *testing.T) {
	ctx := context.Background()

	failWith := func(p *Planner, action Action, result string) {
		review := p.ReviewResult(ctx, action, result)
		p.AddFeedback(action, result, review)
	}

	t.Run("no feedback", func(t *testing.T) {
		step := New(nil, nil).PlanNext("goal")
		assert.False(t, step.Stop)
		assert.Empty(t, step.NextActions)
		assert.Equal(t, "goal", step.NextGoal)
	})

	t.Run("streak exceeded", func(t *testing.T) {
		p := New(nil, verify.NewEngine())
		a := Sanitize([]Action{{Type: TypeTest, Instruction: "pytest"}})[0]
		for range MaxFailedStreak {
			failWith(p, a, "Exception raised")
		}
		step := p.PlanNext("goal")
		assert.True(t, step.Stop)
		assert.Equal(t, StopFailedStreak, step.Reason)
	})

	t.Run("permission error stops", func(t *testing.T) {
		p := New(nil, verify.NewEngine())
		a := Sanitize([]Action{{Type: TypeShell, Instruction: "touch x"}})[0]
		failWith(p, a, "Error: bash: Operation not permitted")
		step := p.PlanNext("goal")
		assert.True(t, step.Stop)
		assert.Equal(t, StopPermissionDenied, step.Reason)
	})

	t.Run("listing failure", func(t *testing.T) {
		p := New(nil, verify.NewEngine(), WithWorkDir(t.TempDir()))
		a := Sanitize(FallbackActions("files.txt please"))[0]
		failWith(p, a, "done")
		step := p.PlanNext("goal")
		require.Len(t, step.NextActions, 1)
		assert.Equal(t, TypeShell, step.NextActions[0].Type)
		assert.Contains(t, step.NextActions[0].Instruction, ListingCommand)
	})

	t.Run("tests failure", func(t *testing.T) {
		p := New(nil, verify.NewEngine())
		a := Sanitize([]Action{{Type: TypeTest, Instruction: "pytest"}})[0]
		failWith(p, a, "1 failed, 2 passed")
		step := p.PlanNext("goal")
		require.Len(t, step.NextActions, 1)
		assert.Equal(t, TypeTest, step.NextActions[0].Type)
		assert.Equal(t, ClientBackend, step.NextActions[0].Client)
	})

	t.Run("codegen lint failure", func(t *testing.T) {
		p := New(nil, verify.NewEngine())
		a := Sanitize([]Action{{Type: TypeCodegen, Instruction: "write app"}})[0]
		failWith(p, a, "lint: app.py:1:1: W291 trailing whitespace")
		step := p.PlanNext("goal")
		types := actionTypes(step.NextActions)
		assert.Equal(t, []string{TypeRefactor}, types)
	})

	t.Run("deploy", func(t *testing.T) {
		p := New(nil, verify.NewEngine())
		a := Sanitize([]Action{{Type: TypeDeploy, Instruction: "deploy"}})[0]
		failWith(p, a, "build failed")
		step := p.PlanNext("goal")
		assert.Equal(t, []string{TypeBuild, TypeBuild, TypeDeploy}, actionTypes(step.NextActions))
	})

	t.Run("timeout degrades into skeleton", func(t *testing.T) {
		p := New(nil, verify.NewEngine())
		a := Sanitize([]Action{{Type: TypeCodegen, Instruction: "write a big app"}})[0]
		failWith(p, a, "Error: Timeout after 3m0s")
		step := p.PlanNext("goal")
		assert.Equal(t, []string{TypeTest, TypeShell, TypeCodegen, TypeCodegen, TypeTest}, actionTypes(step.NextActions))
		assert.Equal(t, step.NextActions, Sanitize(step.NextActions))
	})
}

func actionTypes(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Type
	}
	return out
}

func TestAction_Validate(t *testing.T) {
	valid := Action{Type: TypeTest, Instruction: "pytest", Client: ClientBackend}
	assert.NoError(t, valid.Validate())

	err := Action{Type: "lint", Instruction: "x", Client: "mobile"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type")
	assert.Contains(t, err.Error(), "client")
	assert.ErrorIs(t, err, daacserrors.ErrInvalidInput)

	var verr *daacserrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
	assert.Equal(t, "lint", verr.Value)
}
