package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/daacs/internal/util"
)

var jsExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"}

// entryModules are tried in order by the import test.
var entryModules = []string{"main.py", "app.py"}

// pythonBin resolves the interpreter, preferring an explicit setting.
func (e *Engine) pythonBin() (string, error) {
	if e.python != "" {
		return exec.LookPath(e.python)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", errors.New("no python interpreter in PATH")
}

// compilePython byte-compiles one file in its own process. A timeout is
// reported as a failure message.
func (e *Engine) compilePython(ctx context.Context, python, path string) string {
	cctx, cancel := context.WithTimeout(ctx, e.fileTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, python, "-m", "py_compile", path)
	out, err := cmd.CombinedOutput()
	if cctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("%s: Timeout", filepath.Base(path))
	}
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Sprintf("%s: %s", filepath.Base(path), util.TruncateString(msg, 100))
	}
	return ""
}

func existingWithExt(paths []string, exts ...string) []string {
	var out []string
	for _, p := range paths {
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(p))) {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) checkPythonSyntax(ctx context.Context, req Request) (Verdict, bool) {
	files := existingWithExt(req.paths(), ".py")
	if len(files) == 0 {
		return pass(PythonSyntaxValid, "No Python files to check"), true
	}

	python, err := e.pythonBin()
	if err != nil {
		v := pass(PythonSyntaxValid, "Python syntax check skipped")
		v.Detail = err.Error()
		return v, true
	}

	results := make([]string, len(files))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, path := range files {
		g.Go(func() error {
			results[i] = e.compilePython(ctx, python, path)
			return nil
		})
	}
	_ = g.Wait()

	var errs []string
	for _, r := range results {
		if r != "" {
			errs = append(errs, r)
		}
	}
	if len(errs) > 0 {
		names := make([]string, len(errs))
		for i, msg := range errs {
			names[i], _, _ = strings.Cut(msg, ":")
		}
		return fail(PythonSyntaxValid, "Python syntax errors: "+strings.Join(names, ", "), strings.Join(errs[:min(len(errs), 5)], "\n")), true
	}
	return pass(PythonSyntaxValid, "All Python files have valid syntax"), true
}

func (e *Engine) checkPythonImport(ctx context.Context, req Request) (Verdict, bool) {
	var entry string
	for _, name := range entryModules {
		for _, p := range existingWithExt(req.paths(), ".py") {
			if filepath.Base(p) == name {
				entry = p
				break
			}
		}
		if entry != "" {
			break
		}
	}
	if entry == "" {
		return pass(PythonImportTest, "No entry module to test"), true
	}

	python, err := e.pythonBin()
	if err != nil {
		v := pass(PythonImportTest, "Import test skipped")
		v.Detail = err.Error()
		return v, true
	}

	if msg := e.compilePython(ctx, python, entry); msg != "" {
		return fail(PythonImportTest, "Compile errors: "+filepath.Base(entry), msg), true
	}
	return pass(PythonImportTest, fmt.Sprintf("Entry module %s compiles", filepath.Base(entry))), true
}

type openDelim struct {
	char byte
	line int
}

var closerFor = map[byte]byte{'(': ')', '{': '}', '[': ']'}

// ScanDelimiters checks that parentheses, braces and brackets balance,
// ignoring string and template literal contents, escaped characters and
// comments. Single and double quoted strings end at a newline so stray
// apostrophes in JSX text do not swallow the rest of the file.
func ScanDelimiters(src string) error {
	var (
		stack []openDelim
		line  = 1
		quote byte
	)

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\n' {
			line++
		}

		if quote != 0 {
			switch {
			case c == '\\':
				i++
				if i < len(src) && src[i] == '\n' {
					line++
				}
			case c == quote:
				quote = 0
			case c == '\n' && quote != '`':
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'', '`':
			quote = c
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				for i < len(src) && src[i] != '\n' {
					i++
				}
				line++
			} else if i+1 < len(src) && src[i+1] == '*' {
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					return fmt.Errorf("unterminated comment at line %d", line)
				}
				line += strings.Count(src[i:i+2+end], "\n")
				i += end + 3
			}
		case '(', '{', '[':
			stack = append(stack, openDelim{char: c, line: line})
		case ')', '}', ']':
			if len(stack) == 0 {
				return fmt.Errorf("unmatched closing bracket '%c' at line %d", c, line)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if closerFor[top.char] != c {
				return fmt.Errorf("mismatched brackets: '%c' at line %d closed by '%c' at line %d", top.char, top.line, c, line)
			}
		}
	}

	if quote == '`' {
		return fmt.Errorf("unterminated template literal")
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fmt.Errorf("unclosed bracket '%c' from line %d", top.char, top.line)
	}
	return nil
}

func checkJavaScriptSyntax(req Request) Verdict {
	var names, details []string
	for _, p := range existingWithExt(req.paths(), jsExtensions...) {
		content, err := os.ReadFile(p)
		if err != nil {
			names = append(names, filepath.Base(p))
			details = append(details, fmt.Sprintf("%s: %v", filepath.Base(p), err))
			continue
		}
		if err := ScanDelimiters(string(content)); err != nil {
			names = append(names, filepath.Base(p))
			details = append(details, fmt.Sprintf("%s: %v", filepath.Base(p), err))
		}
	}
	if len(names) > 0 {
		return fail(JavaScriptSyntaxValid, "JS syntax issues: "+strings.Join(names, ", "), strings.Join(details[:min(len(details), 5)], "\n"))
	}
	return pass(JavaScriptSyntaxValid, "All JS files have valid syntax")
}
