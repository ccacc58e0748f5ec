// Package testutil provides testing utilities for DAACS tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// SetupProjectDir creates a temporary project directory populated with files.
// The files map contains slash-separated relative paths to file contents.
// The directory is automatically cleaned up when the test completes.
func SetupProjectDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// WriteFiles writes files under dir, creating parent directories as needed.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		fullPath := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// ReadFile returns the content of path, failing the test if it cannot be read.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(content)
}

// RunShell runs command through sh in dir and returns its combined output.
func RunShell(t *testing.T, dir, command string) string {
	t.Helper()

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("command %q failed: %v\n%s", command, err, output)
	}
	return string(output)
}

// FakeCLI installs an executable shell script named name at the front of
// PATH for the rest of the test. The script body follows a /bin/sh shebang.
func FakeCLI(t *testing.T, name, script string) string {
	t.Helper()
	SkipIfNoShell(t)

	bin := t.TempDir()
	path := filepath.Join(bin, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatalf("failed to write fake %s: %v", name, err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	return path
}

// SkipIfNoShell skips the test on platforms without a POSIX shell.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell scripts not supported on windows, skipping test")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}

// SkipIfNoPython skips the test if no python interpreter is installed and
// returns the interpreter path otherwise.
func SkipIfNoPython(t *testing.T) string {
	t.Helper()

	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("python not found in PATH, skipping test")
	return ""
}

// SkipIfNoNpm skips the test if npm is not installed.
func SkipIfNoNpm(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("npm"); err != nil {
		t.Skip("npm not found in PATH, skipping test")
	}
}

// SkipIfNoGNUFind skips the test unless find supports -printf.
func SkipIfNoGNUFind(t *testing.T) {
	t.Helper()

	if err := exec.Command("find", ".", "-maxdepth", "0", "-printf", "").Run(); err != nil {
		t.Skip("GNU find not available, skipping test")
	}
}
