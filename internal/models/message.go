package models

import "time"

// MessageRole identifies the author of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessageType distinguishes plain chat messages from structured ones.
type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypePlan MessageType = "plan"
)

// Message is one persisted chat entry in a session.
type Message struct {
	ID        string
	SessionID string
	Role      MessageRole
	Type      MessageType
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}
