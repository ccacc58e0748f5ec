// Package observability provides the CLI command for inspecting the logs of
// finished and running sessions.
package observability

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/daacs/internal/cmd/styles"
	"github.com/Iron-Ham/daacs/internal/config"
	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
	"github.com/Iron-Ham/daacs/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs [session-id|dir]",
	Short: "View session logs",
	Long: `View the run log of a session: its summary and one line per recorded turn.

The argument is a session ID under execution.log_dir or a run log directory.
By default the most recent session is shown.

Examples:
  # Summary and turns of the most recent session
  daacs logs

  # A specific session as JSON
  daacs logs --json daacs-1a2b3c4d

  # Debug log lines of a session, warnings and above
  daacs logs --debug --level warn daacs-1a2b3c4d

  # Follow the debug log while a session runs
  daacs logs --debug -f`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

var (
	logsJSON   bool
	logsDebug  bool
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
)

func init() {
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Print the summary and turns as JSON")
	logsCmd.Flags().BoolVar(&logsDebug, "debug", false, "Show the structured debug log instead of the run log")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of debug lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow debug log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter debug lines by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show debug lines since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter debug lines matching pattern (regex)")
}

// RegisterLogsCmd registers the logs command with the given parent command.
func RegisterLogsCmd(parent *cobra.Command) {
	parent.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logDir := cfg.Execution.LogDir
	out := cmd.OutOrStdout()

	var target string
	if len(args) > 0 {
		target = args[0]
	}

	if logsDebug {
		filter, err := newLogFilter(logsLevel, logsSince, logsGrep)
		if err != nil {
			return err
		}
		if target != "" {
			filter.sessionID = filepath.Base(target)
		}
		logPath := filepath.Join(logDir, logging.DebugLogFile)
		if logsFollow {
			return followLogs(cmd, logPath, filter)
		}
		return displayLogs(out, logPath, logsTail, filter)
	}

	dir, err := resolveRunDir(logDir, target)
	if err != nil {
		return err
	}
	if dir == "" {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	runLog, err := logging.NewRunLog(dir, nil)
	if err != nil {
		return err
	}
	summary, err := runLog.ReadSummary()
	if err != nil && !errors.Is(err, daacserrors.ErrNotFound) {
		return err
	}
	turns, err := runLog.ReadTurns()
	if err != nil {
		return err
	}

	if logsJSON {
		data, err := json.MarshalIndent(struct {
			Dir     string           `json:"dir"`
			Summary *logging.Summary `json:"summary"`
			Turns   []map[string]any `json:"turns"`
		}{dir, summary, turns}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal logs: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	printTurns(out, turns)
	if summary == nil {
		fmt.Fprintf(out, "\nNo summary in %s (session still running or aborted)\n", dir)
		return nil
	}
	printSummary(out, dir, summary)
	return nil
}

// resolveRunDir maps the argument to a run log directory. An empty argument
// selects the most recently modified session under logDir; "" with no error
// means there are none.
func resolveRunDir(logDir, target string) (string, error) {
	if target != "" {
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return target, nil
		}
		dir := filepath.Join(logDir, target)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", fmt.Errorf("no run log for %s in %s", target, logDir)
		}
		return dir, nil
	}

	entries, err := os.ReadDir(logDir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to list sessions: %w", err)
	}

	var (
		latest   string
		latestAt time.Time
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) {
			latest, latestAt = e.Name(), info.ModTime()
		}
	}
	if latest == "" {
		return "", nil
	}
	return filepath.Join(logDir, latest), nil
}

func printTurns(w io.Writer, turns []map[string]any) {
	if len(turns) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No turns recorded."))
		return
	}
	for _, t := range turns {
		phase, _ := t["phase"].(string)
		if phase == "" {
			// Single-track loop history has no phase; show its action
			if action, ok := t["action"].(map[string]any); ok {
				phase, _ = action["type"].(string)
			}
		}
		line := fmt.Sprintf("%3v  %s", t["turn"], styles.Phase.Render(phase))
		if reason, _ := t["stop_reason"].(string); reason != "" {
			line += styles.Warning.Render(reason)
		} else if ft, _ := t["failure_type"].(string); ft != "" {
			line += styles.Error.Render(ft)
		}
		fmt.Fprintln(w, line)
	}
}

func printSummary(w io.Writer, dir string, s *logging.Summary) {
	rows := []string{
		styles.Row("Session", s.SessionID),
		styles.Row("Goal", s.Goal),
		styles.Row("Status", styles.FinalStatus(s.FinalStatus)),
		styles.Row("Reason", s.StopReason),
		styles.Row("Iterations", fmt.Sprintf("%d", s.TotalIterations)),
		styles.Row("Failures", fmt.Sprintf("%d", s.ConsecutiveFailures)),
		styles.Row("Backend", styles.TrackStatus(s.Backend.Status)+"  "+styles.List(s.Backend.Files)),
		styles.Row("Frontend", styles.TrackStatus(s.Frontend.Status)+"  "+styles.List(s.Frontend.Files)),
		styles.Row("Compatible", styles.Check(s.Compatible)),
		styles.Row("Issues", styles.List(s.CompatibilityIssues)),
		styles.Row("Duration", fmt.Sprintf("%.1fs", s.DurationSeconds)),
		styles.Row("Logs", dir),
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.SummaryBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

// logEntry represents a parsed JSON debug log line
type logEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Msg       string         `json:"msg"`
	SessionID string         `json:"session_id,omitempty"`
	Track     string         `json:"track,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Extra     map[string]any `json:"-"` // Captures additional fields
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "session_id", "track", "phase"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// levelStyle returns the style for a log level
func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return styles.Muted
	case logging.LevelInfo:
		return styles.Primary
	case logging.LevelWarn:
		return styles.Warning
	case logging.LevelError:
		return styles.Error
	default:
		return lipgloss.NewStyle()
	}
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	return slices.Index(logging.ValidLevels(), strings.ToUpper(level))
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logEntry) string {
	var sb strings.Builder
	sb.WriteString(styles.Muted.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(levelStyle(entry.Level).Render("[" + strings.ToUpper(entry.Level) + "]"))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	if entry.Track != "" {
		sb.WriteString(" " + styles.Secondary.Render("track="+entry.Track))
	}
	if entry.Phase != "" {
		sb.WriteString(" " + styles.Secondary.Render("phase="+entry.Phase))
	}

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteString(" " + styles.Muted.Render(k+"=") + fmt.Sprintf("%v", entry.Extra[k]))
	}
	return sb.String()
}

// logFilter selects debug log lines.
type logFilter struct {
	minLevel  int
	since     time.Time
	grep      *regexp.Regexp
	sessionID string
}

func newLogFilter(level, since, grep string) (logFilter, error) {
	f := logFilter{minLevel: -1}
	if level != "" {
		f.minLevel = levelPriority(logging.ParseLevel(level))
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-d)
	}
	if grep != "" {
		re, err := regexp.Compile(grep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// passes checks if a log entry passes all filter criteria
func (f logFilter) passes(entry *logEntry) bool {
	if f.sessionID != "" && entry.SessionID != f.sessionID {
		return false
	}
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		return f.grep.MatchString(searchText)
	}
	return true
}

// formatLine parses and filters one raw line. Lines that are not JSON are
// shown as-is unless a session filter is active.
func (f logFilter) formatLine(line string) (string, bool) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line, f.sessionID == ""
	}
	if !f.passes(&entry) {
		return "", false
	}
	return formatLogEntry(&entry), true
}

// displayLogs reads the debug log and prints the last tail matching lines
func displayLogs(w io.Writer, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if os.IsNotExist(err) {
		fmt.Fprintf(w, "No debug log at %s\n", logPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if formatted, ok := filter.formatLine(line); ok {
			lines = append(lines, formatted)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if len(lines) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
	}
	return nil
}

// followLogs prints lines appended to the debug log until the command's
// context ends.
func followLogs(cmd *cobra.Command, logPath string, filter logFilter) error {
	w := cmd.OutOrStdout()
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(logPath); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	fmt.Fprintf(w, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	var partial string
	drain := func() error {
		for {
			chunk, err := reader.ReadString('\n')
			if errors.Is(err, io.EOF) {
				// Hold an unterminated line until its newline arrives
				partial += chunk
				return nil
			}
			if err != nil {
				return fmt.Errorf("error reading log file: %w", err)
			}
			line := strings.TrimSpace(partial + chunk)
			partial = ""
			if line == "" {
				continue
			}
			if formatted, ok := filter.formatLine(line); ok {
				fmt.Fprintln(w, formatted)
			}
		}
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watcher failed: %w", err)
		}
	}
}
