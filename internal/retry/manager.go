// Package retry tracks per-action attempts for the single-track loop.
//
// The loop keys each action by its position-independent identity (type plus
// instruction), records every attempt, and asks the manager whether another
// attempt is allowed before it rewinds the plan cursor. Backoff computes the
// sleep between attempts.
package retry

import (
	"sync"
	"time"
)

// MaxBackoff caps the delay between attempts.
const MaxBackoff = 5 * time.Second

// ActionState tracks attempts for one action.
type ActionState struct {
	ActionKey    string   `json:"action_key"`
	Attempts     int      `json:"attempts"`
	MaxRetries   int      `json:"max_retries"`
	LastError    string   `json:"last_error,omitempty"`
	FailedChecks []string `json:"failed_checks,omitempty"` // Failed check ids of the latest attempt
	Succeeded    bool     `json:"succeeded,omitempty"`
}

// CanRetry reports whether another attempt is allowed.
func (s *ActionState) CanRetry() bool {
	return !s.Succeeded && s.Attempts <= s.MaxRetries
}

// Manager manages attempt state for actions.
// It is thread-safe and can be used concurrently.
type Manager struct {
	mu         sync.RWMutex
	maxRetries int
	states     map[string]*ActionState
}

// NewManager creates a manager that allows maxRetries retries per action
// after the first attempt.
func NewManager(maxRetries int) *Manager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Manager{
		maxRetries: maxRetries,
		states:     make(map[string]*ActionState),
	}
}

// Key derives the action key from its type and instruction.
func Key(actionType, instruction string) string {
	return actionType + "\x00" + instruction
}

// GetState returns the attempt state for an action, or nil if not found.
func (m *Manager) GetState(key string) *ActionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[key]
}

// RecordAttempt records one attempt. A failed attempt keeps the failing
// check ids and error text for the run history.
func (m *Manager) RecordAttempt(key string, success bool, failedChecks []string, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[key]
	if !exists {
		state = &ActionState{ActionKey: key, MaxRetries: m.maxRetries}
		m.states[key] = state
	}
	state.Attempts++
	if success {
		state.Succeeded = true
		state.FailedChecks = nil
		state.LastError = ""
		return
	}
	state.FailedChecks = append([]string(nil), failedChecks...)
	state.LastError = errMsg
}

// ShouldRetry reports whether an action may be attempted again.
// Unknown actions have not been attempted and may run.
func (m *Manager) ShouldRetry(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[key]
	if !exists {
		return true
	}
	return state.CanRetry()
}

// Exhausted returns the keys of actions that used every attempt without
// succeeding.
func (m *Manager) Exhausted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for key, state := range m.states {
		if !state.CanRetry() && !state.Succeeded {
			out = append(out, key)
		}
	}
	return out
}

// ResetAll clears all attempt state.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*ActionState)
}

// Backoff returns the delay before retrying on the given turn (1-based):
// 2^(turn-1) seconds, capped at MaxBackoff.
func Backoff(turn int) time.Duration {
	if turn < 1 {
		turn = 1
	}
	if turn > 4 {
		return MaxBackoff
	}
	d := time.Duration(1<<(turn-1)) * time.Second
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
