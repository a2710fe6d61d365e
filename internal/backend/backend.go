// Package backend abstracts the AI agent invocation service. The
// orchestrator hands it a prompt and consumes a raw event stream; the raw
// vocabulary (stdout/stderr/result/error/done) is deliberately the same one
// the sandbox providers speak, and is translated to the client-facing
// protocol by the orchestrator.
package backend

import "context"

// EventType is the raw agent stream vocabulary.
type EventType string

const (
	EventStdout EventType = "stdout"
	EventStderr EventType = "stderr"
	EventResult EventType = "result"
	EventError  EventType = "error"
	EventDone   EventType = "done"
)

// Event is one unit of agent output.
type Event struct {
	Type     EventType
	Content  string
	Metadata map[string]any
}

// Request is one prompt to the agent.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Backend accepts a prompt and yields a push-driven event stream. The
// returned channel is closed after a final done event; an error event, if
// any, precedes done. Cancelling ctx stops the stream.
type Backend interface {
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
