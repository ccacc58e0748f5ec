package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "phase.changed".
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypePhaseChanged   = "phase.changed"
	TypeNodeFinished   = "node.finished"
	TypeTrackUpdated   = "track.updated"
	TypeVerified       = "track.verified"
	TypeJudged         = "judgment.completed"
	TypeReplanned      = "replan.completed"
	TypeStrayWrite     = "files.stray_write"
	TypeWorkflowDone   = "workflow.finished"
	TypeWorkflowFailed = "workflow.failed"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// PhaseChangedEvent is emitted when the workflow's coarse phase changes.
type PhaseChangedEvent struct {
	baseEvent
	SessionID string
	From      string
	To        string
	Iteration int
}

// NewPhaseChangedEvent creates a PhaseChangedEvent.
func NewPhaseChangedEvent(sessionID, from, to string, iteration int) PhaseChangedEvent {
	return PhaseChangedEvent{
		baseEvent: newBaseEvent(TypePhaseChanged),
		SessionID: sessionID,
		From:      from,
		To:        to,
		Iteration: iteration,
	}
}

// NodeFinishedEvent is emitted after every graph node, with the keys the node
// wrote.
type NodeFinishedEvent struct {
	baseEvent
	SessionID string
	Node      string
	Keys      []string
	Duration  time.Duration
	Err       error
}

// NewNodeFinishedEvent creates a NodeFinishedEvent.
func NewNodeFinishedEvent(sessionID, node string, keys []string, d time.Duration, err error) NodeFinishedEvent {
	return NodeFinishedEvent{
		baseEvent: newBaseEvent(TypeNodeFinished),
		SessionID: sessionID,
		Node:      node,
		Keys:      keys,
		Duration:  d,
		Err:       err,
	}
}

// TrackUpdatedEvent is emitted when a track's code generation finishes.
type TrackUpdatedEvent struct {
	baseEvent
	Track     string
	Status    string
	Files     []string
	Iteration int
}

// NewTrackUpdatedEvent creates a TrackUpdatedEvent.
func NewTrackUpdatedEvent(track, status string, files []string, iteration int) TrackUpdatedEvent {
	return TrackUpdatedEvent{
		baseEvent: newBaseEvent(TypeTrackUpdated),
		Track:     track,
		Status:    status,
		Files:     files,
		Iteration: iteration,
	}
}

// VerifiedEvent is emitted after a track's verification.
type VerifiedEvent struct {
	baseEvent
	Track   string
	OK      bool
	Summary string
}

// NewVerifiedEvent creates a VerifiedEvent.
func NewVerifiedEvent(track string, ok bool, summary string) VerifiedEvent {
	return VerifiedEvent{
		baseEvent: newBaseEvent(TypeVerified),
		Track:     track,
		OK:        ok,
		Summary:   summary,
	}
}

// JudgedEvent is emitted after the cross-track compatibility judgment.
type JudgedEvent struct {
	baseEvent
	Compatible bool
	Issues     []string
	Skipped    bool
}

// NewJudgedEvent creates a JudgedEvent.
func NewJudgedEvent(compatible bool, issues []string, skipped bool) JudgedEvent {
	return JudgedEvent{
		baseEvent:  newBaseEvent(TypeJudged),
		Compatible: compatible,
		Issues:     issues,
		Skipped:    skipped,
	}
}

// ReplannedEvent is emitted when the replanning node decides.
type ReplannedEvent struct {
	baseEvent
	FailureType string
	Reason      string
	Stop        bool
}

// NewReplannedEvent creates a ReplannedEvent.
func NewReplannedEvent(failureType, reason string, stop bool) ReplannedEvent {
	return ReplannedEvent{
		baseEvent:   newBaseEvent(TypeReplanned),
		FailureType: failureType,
		Reason:      reason,
		Stop:        stop,
	}
}

// StrayWriteEvent is emitted when a file is written under the project dir
// but outside every track dir.
type StrayWriteEvent struct {
	baseEvent
	Path string
}

// NewStrayWriteEvent creates a StrayWriteEvent.
func NewStrayWriteEvent(path string) StrayWriteEvent {
	return StrayWriteEvent{
		baseEvent: newBaseEvent(TypeStrayWrite),
		Path:      path,
	}
}

// WorkflowFinishedEvent is emitted when a run ends, normally or not.
type WorkflowFinishedEvent struct {
	baseEvent
	SessionID   string
	FinalStatus string
	StopReason  string
	Err         error
}

// NewWorkflowFinishedEvent creates a WorkflowFinishedEvent. A non-nil err
// marks an aborted run.
func NewWorkflowFinishedEvent(sessionID, finalStatus, stopReason string, err error) WorkflowFinishedEvent {
	typ := TypeWorkflowDone
	if err != nil {
		typ = TypeWorkflowFailed
	}
	return WorkflowFinishedEvent{
		baseEvent:   newBaseEvent(typ),
		SessionID:   sessionID,
		FinalStatus: finalStatus,
		StopReason:  stopReason,
		Err:         err,
	}
}
