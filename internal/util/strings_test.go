package util

import (
	"slices"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"very small maxLen returns ellipsis", "hello", 3, "..."},
		{"negative maxLen returns ellipsis", "hello", -5, "..."},
		{"empty string unchanged", "", 10, ""},
		{"unicode characters counted correctly", "파일 목록 생성 테스트", 7, "파일 목..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestTruncateANSI(t *testing.T) {
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	if got := TruncateANSI("hello", 10); got != "hello" {
		t.Errorf("TruncateANSI short = %q, want hello", got)
	}
	if got := TruncateANSI("hello world", 8); got != "hello..." {
		t.Errorf("TruncateANSI plain = %q, want hello...", got)
	}
	if got := TruncateANSI("hello", 2); got != "..." {
		t.Errorf("TruncateANSI tiny = %q, want ...", got)
	}

	styled := green.Render("backend/main.py backend/models.py")
	if w := lipgloss.Width(TruncateANSI(styled, 12)); w > 12 {
		t.Errorf("styled result width %d exceeds 12", w)
	}
	short := green.Render("ok")
	if got := TruncateANSI(short, 10); got != short {
		t.Error("styled string was modified when it fits")
	}
}

func TestFirstLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"fewer lines than limit", "a\nb", 5, "a\nb"},
		{"exactly limit", "a\nb\nc", 3, "a\nb\nc"},
		{"truncated", "a\nb\nc\nd", 2, "a\nb"},
		{"zero", "a", 0, ""},
		{"empty", "", 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstLines(tt.input, tt.n); got != tt.want {
				t.Errorf("FirstLines(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	if !ContainsAny("Operation not permitted", "denied", "not permitted") {
		t.Error("ContainsAny should match second substring")
	}
	if ContainsAny("all good", "error", "fail") {
		t.Error("ContainsAny matched unexpectedly")
	}
	if ContainsAny("anything") {
		t.Error("ContainsAny with no substrings should be false")
	}
}

func TestAppendUnique(t *testing.T) {
	got := AppendUnique([]string{"files_exist:files.txt"}, "files_exist:files.txt", "tests_pass", "tests_pass")
	want := []string{"files_exist:files.txt", "tests_pass"}
	if !slices.Equal(got, want) {
		t.Errorf("AppendUnique() = %v, want %v", got, want)
	}
}
