package orchestrator

import "time"

// EventType is the client-facing streaming vocabulary. It is distinct from
// the raw agent/provider vocabulary; the orchestrator owns the translation.
type EventType string

const (
	EventPhaseChange EventType = "phase_change"
	EventThinking    EventType = "thinking"
	EventPlan        EventType = "plan"
	EventMessage     EventType = "message"
	EventProgress    EventType = "progress"
	EventFileChange  EventType = "file_change"
	EventToolUse     EventType = "tool_use"
	EventCheckpoint  EventType = "checkpoint"
	EventPreviewURL  EventType = "preview_url"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

// StreamEvent is one unit of orchestrator→client communication.
//
// Stream contract: exactly one phase_change event opens each phase, exactly
// one done event terminates every stream (success or failure), and an error
// event, if present, always appears before done.
type StreamEvent struct {
	Type      EventType      `json:"type"`
	Content   string         `json:"content"`
	Phase     string         `json:"phase,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

func event(t EventType, content string) StreamEvent {
	return StreamEvent{Type: t, Content: content, Timestamp: time.Now().UnixMilli()}
}

func phaseEvent(phase string) StreamEvent {
	ev := event(EventPhaseChange, phase)
	ev.Phase = phase
	return ev
}
