package models

import "time"

// SandboxStatus represents the persisted state of a sandbox record.
type SandboxStatus string

const (
	SandboxStatusCreating SandboxStatus = "creating"
	SandboxStatusRunning  SandboxStatus = "running"
	SandboxStatusPaused   SandboxStatus = "paused"
	SandboxStatusStopped  SandboxStatus = "stopped"
	SandboxStatusError    SandboxStatus = "error"
)

// Sandbox is the persisted record linking a repository to a remote workspace.
// It references the provider workspace but does not own it; the provider does.
type Sandbox struct {
	ID                  string
	RepositoryID        string
	ProviderWorkspaceID string
	ProviderType        string
	Status              SandboxStatus
	PreviewURL          string
	LastActiveAt        time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
