package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
)

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in log directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		logPath := filepath.Join(dir, DebugLogFile)
		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
	})

	t.Run("writes to stderr when logDir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.file != nil {
			t.Error("expected file to be nil when logDir is empty")
		}
	})
}

func readEntries(t *testing.T, content []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line is not valid JSON: %v: %s", err, line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelDebug)

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")

	entries := readEntries(t, buf.Bytes())
	if len(entries) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(entries))
	}

	expectedLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, entry := range entries {
		if entry["level"] != expectedLevels[i] {
			t.Errorf("line %d: level = %v, want %s", i, entry["level"], expectedLevels[i])
		}
		if entry["key"] != "value" {
			t.Errorf("line %d: key = %v, want value", i, entry["key"])
		}
	}
}

func TestFailureLevelFollowsSeverity(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{name: "timeout is a warning", err: daacserrors.NewTimeoutError("codex exec", time.Minute), level: "WARN"},
		{name: "planning is a warning", err: daacserrors.NewPlanningError("no plan", daacserrors.ErrInvalidJSON), level: "WARN"},
		{name: "generation is an error", err: daacserrors.NewGenerationError("no files", daacserrors.ErrNoFilesGenerated), level: "ERROR"},
		{name: "plain error", err: errors.New("boom"), level: "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriterLogger(&buf, LevelDebug)
			logger.Failure("call failed", tt.err, "track", "backend")

			entries := readEntries(t, buf.Bytes())
			if len(entries) != 1 {
				t.Fatalf("expected 1 log line, got %d", len(entries))
			}
			if entries[0]["level"] != tt.level {
				t.Errorf("level = %v, want %s", entries[0]["level"], tt.level)
			}
			if entries[0]["error"] != tt.err.Error() || entries[0]["track"] != "backend" {
				t.Errorf("unexpected fields: %v", entries[0])
			}
		})
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "warning")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	if got := len(readEntries(t, buf.Bytes())); got != 2 {
		t.Fatalf("expected 2 log lines (WARN and ERROR only), got %d", got)
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo)

	child := logger.WithSession("daacs-1a2b3c4d").WithTrack("backend").WithPhase("verify")
	child.Info("verification finished", "ok", false)

	entries := readEntries(t, buf.Bytes())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]

	checks := map[string]any{
		"session_id": "daacs-1a2b3c4d",
		"track":      "backend",
		"phase":      "verify",
		"ok":         false,
	}
	for key, want := range checks {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo)

	logger.With("foo", "bar", 7, "skipped", "count", 42).Info("test message")

	entry := readEntries(t, buf.Bytes())[0]
	if entry["foo"] != "bar" {
		t.Errorf("foo = %v, want bar", entry["foo"])
	}
	if entry["count"] != float64(42) {
		t.Errorf("count = %v, want 42", entry["count"])
	}
}

func TestChildDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo)

	_ = logger.WithTrack("frontend")
	logger.Info("parent")

	entry := readEntries(t, buf.Bytes())[0]
	if _, ok := entry["track"]; ok {
		t.Error("parent logger picked up child attribute")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	if err := logger.Close(); err != nil {
		t.Errorf("NopLogger.Close() returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestClose(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.WithSession("s").Info("test message")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() returned error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, DebugLogFile))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(content) == 0 {
		t.Error("log file is empty, expected content")
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 100; j++ {
				logger.Info("concurrent write", "goroutine", n, "iteration", j)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	_ = logger.Close()

	content, err := os.ReadFile(filepath.Join(dir, DebugLogFile))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if got := len(readEntries(t, content)); got != 1000 {
		t.Errorf("expected 1000 log lines, got %d", got)
	}
}
