package verify

import (
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/daacs/internal/testutil"
)

func TestScan(t *testing.T) {
	dir := testutil.SetupProjectDir(t, map[string]string{
		"backend/main.py":                  "app = 1",
		"backend/requirements.txt":         "fastapi",
		"backend/config.yaml":              "a: 1",
		"backend/README.md":                "# not scanned",
		"backend/__pycache__/main.pyc":     "bytes",
		"backend/venv/lib/site.py":         "x",
		"backend/routers/todos.py":         "r = 1",
		"frontend/package.json":            "{}",
		"frontend/src/App.jsx":             "export default 1",
		"frontend/src/index.css":           "body {}",
		"frontend/node_modules/react/x.js": "nope",
		"frontend/dist/bundle.js":          "nope",
	})

	backend, err := Scan(filepath.Join(dir, "backend"), KindBackend)
	if err != nil {
		t.Fatalf("Scan backend: %v", err)
	}
	for _, want := range []string{"main.py", "requirements.txt", "config.yaml", "routers/todos.py"} {
		if _, ok := backend[want]; !ok {
			t.Errorf("backend scan missing %s: %v", want, keys(backend))
		}
	}
	if len(backend) != 4 {
		t.Errorf("backend scan = %v, want 4 files", keys(backend))
	}

	frontend, err := Scan(filepath.Join(dir, "frontend"), KindFrontendFull)
	if err != nil {
		t.Fatalf("Scan frontend: %v", err)
	}
	if len(frontend) != 3 {
		t.Errorf("frontend scan = %v, want 3 files", keys(frontend))
	}
	if frontend["src/App.jsx"] != "export default 1" {
		t.Errorf("App.jsx content = %q", frontend["src/App.jsx"])
	}
}

func TestScan_MissingDir(t *testing.T) {
	files, err := Scan(filepath.Join(t.TempDir(), "nope"), KindBackend)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %v, want empty", files)
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
