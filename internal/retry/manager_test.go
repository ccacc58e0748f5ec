package retry

import (
	"sort"
	"sync"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	m := NewManager(-1)
	if m == nil {
		t.Fatal("NewManager() returned nil")
	}
	if m.maxRetries != 0 {
		t.Errorf("maxRetries = %d, want 0 for negative input", m.maxRetries)
	}
}

func TestGetState_Unknown(t *testing.T) {
	m := NewManager(2)
	if m.GetState(Key("shell", "list files into files.txt")) != nil {
		t.Error("GetState() for an unattempted action should be nil")
	}
	m.RecordAttempt("a", false, nil, "")
	if s := m.GetState("a"); s == nil || s.MaxRetries != 2 {
		t.Errorf("GetState() = %+v, want MaxRetries 2", s)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		attempts   []bool
		want       bool
	}{
		{"never attempted", 1, nil, true},
		{"one failure within budget", 1, []bool{false}, true},
		{"budget exhausted", 1, []bool{false, false}, false},
		{"zero retries after failure", 0, []bool{false}, false},
		{"succeeded", 3, []bool{false, true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.maxRetries)
			for _, ok := range tt.attempts {
				m.RecordAttempt("a", ok, nil, "")
			}
			if got := m.ShouldRetry("a"); got != tt.want {
				t.Errorf("ShouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordAttempt_KeepsLatestFailure(t *testing.T) {
	m := NewManager(3)
	m.RecordAttempt("a", false, []string{"files_exist"}, "Missing files: files.txt")
	m.RecordAttempt("a", false, []string{"files_match_listing"}, "does not match")

	s := m.GetState("a")
	if s.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", s.Attempts)
	}
	if len(s.FailedChecks) != 1 || s.FailedChecks[0] != "files_match_listing" {
		t.Errorf("FailedChecks = %v", s.FailedChecks)
	}

	m.RecordAttempt("a", true, nil, "")
	s = m.GetState("a")
	if !s.Succeeded || s.LastError != "" || s.FailedChecks != nil {
		t.Errorf("state after success = %+v", s)
	}
}

func TestExhaustedAndReset(t *testing.T) {
	m := NewManager(0)
	m.RecordAttempt("b", false, nil, "")
	m.RecordAttempt("a", false, nil, "")
	m.RecordAttempt("c", true, nil, "")

	got := m.Exhausted()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Exhausted() = %v, want [a b]", got)
	}

	m.ResetAll()
	if !m.ShouldRetry("a") {
		t.Error("ShouldRetry() after ResetAll should be true")
	}
	if m.GetState("b") != nil || len(m.Exhausted()) != 0 {
		t.Error("ResetAll() left states behind")
	}
}

func TestRecordAttempt_CopiesFailedChecks(t *testing.T) {
	m := NewManager(1)
	checks := []string{"tests_pass"}
	m.RecordAttempt("a", false, checks, "")
	checks[0] = "mutated"

	if m.GetState("a").FailedChecks[0] != "tests_pass" {
		t.Error("RecordAttempt() shares the caller's slice")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		turn int
		want time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.turn); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.turn, got, tt.want)
		}
	}
}

func TestManager_Concurrent(t *testing.T) {
	m := NewManager(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				m.RecordAttempt("shared", false, []string{"x"}, "")
				_ = m.ShouldRetry("shared")
			}
		}()
	}
	wg.Wait()

	if got := m.GetState("shared").Attempts; got != 100 {
		t.Errorf("Attempts = %d, want 100", got)
	}
}
