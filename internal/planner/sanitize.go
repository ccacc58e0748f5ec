package planner

import (
	"slices"
	"strings"

	"github.com/Iron-Ham/daacs/internal/util"
)

// ListingFile is the file the listing actions produce.
const ListingFile = "files.txt"

// ListingCommand lists the non-hidden entries of the current directory,
// excluding the listing itself, one sorted name per line.
const ListingCommand = `find . -maxdepth 1 -mindepth 1 -not -name 'files.txt' -not -path './.*' -printf '%f\n' | sort > files.txt`

// listingChecks are attached to every instruction that writes files.txt.
var listingChecks = []string{
	"files_exist:" + ListingFile,
	"files_not_empty:" + ListingFile,
	"files_no_hidden:" + ListingFile,
	"files_match_listing:" + ListingFile,
}

// verifyTemplates is the minimal check set per action type.
var verifyTemplates = map[string][]string{
	TypeShell:    listingChecks,
	TypeEdit:     {"files_exist:" + ListingFile},
	TypeTest:     {"tests_pass", "tests_no_error"},
	TypeCodegen:  {"tests_pass", "tests_no_error", "lint_pass"},
	TypeRefactor: {"tests_pass", "tests_no_error", "lint_pass"},
	TypeBuild:    {"build_success"},
	TypeDeploy:   {"build_success"},
}

// VerifyTemplate returns a copy of the default checks for an action type.
func VerifyTemplate(actionType string) []string {
	return slices.Clone(verifyTemplates[actionType])
}

var unsafeListings = []string{"ls -la", "ls -al", "ls -a", "ls -A"}

// Sanitize rewrites unsafe listing idioms, fills in missing metadata and
// attaches default checks. Applying it to its own output is a no-op.
func Sanitize(actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		out = append(out, sanitizeAction(a))
	}
	return out
}

func sanitizeAction(a Action) Action {
	instr := a.Instruction
	for _, unsafe := range unsafeListings {
		instr = strings.ReplaceAll(instr, unsafe, "ls -1")
	}

	lower := strings.ToLower(instr)
	if strings.Contains(instr, ListingFile) && util.ContainsAny(lower, "list", "ls", "rg --files") {
		instr = ListingCommand
		lower = strings.ToLower(instr)
	}
	if strings.Contains(instr, ListingFile) && !strings.Contains(lower, "exclude files.txt") {
		instr += " Exclude files.txt from the output."
	}
	if !strings.Contains(strings.ToLower(instr), "sort") {
		instr += " Sort names one per line."
	}
	a.Instruction = instr

	if a.Action == "" {
		a.Action = DevInstruction
	}
	if a.Type == "" {
		a.Type = TypeShell
	}
	if a.Client == "" {
		a.Client = ClientFrontend
	}

	verify := slices.Clone(a.Verify)
	if a.Type != TypeShell || strings.Contains(instr, ListingFile) {
		verify = util.AppendUnique(verify, verifyTemplates[a.Type]...)
	}
	if strings.Contains(instr, ListingFile) {
		for _, check := range listingChecks {
			if !slices.ContainsFunc(verify, func(v string) bool { return strings.HasPrefix(v, check) }) {
				verify = append(verify, check)
			}
		}
	}
	if verify == nil {
		verify = []string{}
	}
	a.Verify = verify
	if a.Targets == nil {
		a.Targets = []string{}
	}
	return a
}
