package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestNew_InvalidRoot(t *testing.T) {
	tmp := t.TempDir()

	_, err := New(filepath.Join(tmp, "missing"), nil)
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("expected missing-root error, got %v", err)
	}

	file := filepath.Join(tmp, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = New(file, nil)
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("expected not-a-directory error, got %v", err)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	w.Start()
	w.Stop()
	w.Stop()
}

func TestWatcher_FlagsStrayWrites(t *testing.T) {
	root := t.TempDir()
	backend := filepath.Join(root, "backend")
	frontend := filepath.Join(root, "frontend")

	var mu sync.Mutex
	var reported []string
	w, err := New(root, []string{backend, frontend}, WithCallback(func(p string) {
		mu.Lock()
		reported = append(reported, p)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	w.Start()
	defer w.Stop()

	// Track dirs are created after the watcher starts, as the workflow does.
	for _, dir := range []string{backend, filepath.Join(frontend, "src")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(100 * time.Millisecond)

	writes := map[string]string{
		filepath.Join(backend, "main.py"):           "app = 1",
		filepath.Join(frontend, "src", "App.jsx"):   "export default 1",
		filepath.Join(root, "main.py"):              "stray",
		filepath.Join(root, "node_modules", "x.js"): "ignored",
	}
	_ = os.MkdirAll(filepath.Join(root, "node_modules"), 0o755)
	for path, content := range writes {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if !waitFor(t, func() bool { return len(w.Strays()) > 0 }) {
		t.Fatal("expected a stray write to be flagged")
	}
	// Allow any late events to settle.
	time.Sleep(150 * time.Millisecond)

	strays := w.Strays()
	if len(strays) != 1 || strays[0] != "main.py" {
		t.Errorf("expected only main.py flagged, got %v", strays)
	}
	mu.Lock()
	if len(reported) != 1 {
		t.Errorf("expected one callback, got %v", reported)
	}
	mu.Unlock()

	w.Reset()
	if len(w.Strays()) != 0 {
		t.Error("Reset should clear strays")
	}
}
