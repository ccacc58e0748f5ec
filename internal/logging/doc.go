// Package logging provides structured logging and the persisted run layout
// for DAACS sessions.
//
// # Debug Log
//
// [Logger] wraps log/slog with a JSON handler. Child loggers carry persistent
// context attributes:
//
//	logger, err := logging.NewLogger("logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithSession("daacs-1a2b3c4d").WithTrack("backend").WithPhase("verify").
//	    Info("verification finished", "ok", false)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"verification finished","session_id":"daacs-1a2b3c4d","track":"backend","phase":"verify","ok":false}
//
// # Run Log
//
// [RunLog] owns the files an external collaborator reads after a run:
//
//   - turns.jsonl: one [TurnRecord] per workflow step or single-track turn
//   - workflow.jsonl: node start/end events
//   - summary.json: a single [Summary] written when the run is delivered
//
// Write failures on these files are logged and swallowed; they never abort a run.
//
// # Testing
//
// Use [NopLogger] to discard all output.
package logging
