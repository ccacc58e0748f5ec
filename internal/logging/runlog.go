package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
)

// Run log file names.
const (
	TurnsFile    = "turns.jsonl"
	WorkflowFile = "workflow.jsonl"
	SummaryFile  = "summary.json"
)

// TrackRecord is the per-track portion of a turn or summary record.
type TrackRecord struct {
	Status     string   `json:"status"`
	Files      []string `json:"files"`
	Iterations int      `json:"iterations"`
}

// TurnRecord is one line of turns.jsonl.
type TurnRecord struct {
	Turn                int               `json:"turn"`
	Goal                string            `json:"goal"`
	Mode                string            `json:"mode"`
	ScenarioID          string            `json:"scenario_id"`
	ScenarioType        string            `json:"scenario_type"`
	StopReason          string            `json:"stop_reason"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	FailureType         string            `json:"failure_type,omitempty"`
	FailureSummary      []string          `json:"failure_summary"`
	Timestamp           time.Time         `json:"timestamp"`
	Phase               string            `json:"phase"`
	ParallelExecution   bool              `json:"parallel_execution"`
	LLMSources          map[string]string `json:"llm_sources,omitempty"`
	CLIAssistant        string            `json:"cli_assistant,omitempty"`
	Backend             TrackRecord       `json:"backend"`
	Frontend            TrackRecord       `json:"frontend"`
	Judgment            string            `json:"orchestrator_judgment"`
	Compatible          bool              `json:"compatibility_verified"`
	CompatibilityIssues []string          `json:"compatibility_issues"`
	Event               map[string]any    `json:"event,omitempty"`
}

// Summary is the content of summary.json.
type Summary struct {
	SessionID           string      `json:"session_id"`
	Goal                string      `json:"goal"`
	FinalStatus         string      `json:"final_status"`
	StopReason          string      `json:"stop_reason"`
	TotalIterations     int         `json:"total_iterations"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	Mode                string      `json:"mode"`
	ParallelExecution   bool        `json:"parallel_execution"`
	CLIAssistant        string      `json:"cli_assistant,omitempty"`
	Backend             TrackRecord `json:"backend"`
	Frontend            TrackRecord `json:"frontend"`
	Compatible          bool        `json:"compatibility_verified"`
	JudgmentSkipped     bool        `json:"judgment_skipped"`
	CompatibilityIssues []string    `json:"compatibility_issues"`
	CreatedAt           time.Time   `json:"created_at"`
	CompletedAt         time.Time   `json:"completed_at"`
	DurationSeconds     float64     `json:"duration_seconds"`
}

// workflowEvent is one line of workflow.jsonl.
type workflowEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// RunLog appends run records under a single directory. It is safe for
// concurrent use; parallel tracks share one RunLog.
type RunLog struct {
	dir    string
	logger *Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewRunLog creates the log directory if needed and returns a RunLog over it.
func NewRunLog(dir string, logger *Logger) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &RunLog{dir: dir, logger: logger, now: time.Now}, nil
}

// Dir returns the directory the run log writes to.
func (r *RunLog) Dir() string { return r.dir }

// LogTurn appends a turn record to turns.jsonl. A zero Timestamp is filled in.
func (r *RunLog) LogTurn(rec TurnRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	if err := r.appendLine(TurnsFile, rec); err != nil {
		r.logger.Warn("failed to write turn log", "error", err)
	}
}

// AppendTurns appends arbitrary history entries to turns.jsonl in order.
func (r *RunLog) AppendTurns(entries ...any) error {
	for _, entry := range entries {
		if err := r.appendLine(TurnsFile, entry); err != nil {
			return err
		}
	}
	return nil
}

// LogWorkflowEvent appends a node or edge event to workflow.jsonl.
func (r *RunLog) LogWorkflowEvent(eventType string, data map[string]any) {
	ev := workflowEvent{Timestamp: r.now(), EventType: eventType, Data: data}
	if err := r.appendLine(WorkflowFile, ev); err != nil {
		r.logger.Warn("failed to write workflow log", "error", err)
	}
}

// WriteSummary overwrites summary.json. A zero CompletedAt is filled in.
func (r *RunLog) WriteSummary(s Summary) {
	if s.CompletedAt.IsZero() {
		s.CompletedAt = r.now()
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		r.logger.Warn("failed to encode summary", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.WriteFile(filepath.Join(r.dir, SummaryFile), data, 0644); err != nil {
		r.logger.Warn("failed to write summary log", "error", err)
	}
}

// ReadTurns returns every record in turns.jsonl as a generic map.
// A missing file yields an empty slice.
func (r *RunLog) ReadTurns() ([]map[string]any, error) {
	f, err := os.Open(filepath.Join(r.dir, TurnsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open turn log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var turns []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			return turns, daacserrors.Wrapf(err, "failed to parse turn log line %d", len(turns)+1)
		}
		turns = append(turns, entry)
	}
	return turns, scanner.Err()
}

// ReadSummary loads summary.json.
func (r *RunLog) ReadSummary() (*Summary, error) {
	path := filepath.Join(r.dir, SummaryFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, daacserrors.NewNotFoundError("summary", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &s, nil
}

func (r *RunLog) appendLine(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(append(data, '\n'))
	return err
}
