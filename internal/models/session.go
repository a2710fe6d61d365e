package models

import "time"

// SessionStatus is the orchestrator phase a session is in.
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusPlanning   SessionStatus = "planning"
	SessionStatusPlanReview SessionStatus = "plan_review"
	SessionStatusBuilding   SessionStatus = "building"
	SessionStatusReviewing  SessionStatus = "reviewing"
	SessionStatusReady      SessionStatus = "ready"
	SessionStatusError      SessionStatus = "error"
)

// Session is one feature-building work unit against a repository.
// SandboxID is populated lazily on first build.
type Session struct {
	ID           string
	RepositoryID string
	SandboxID    string
	Name         string
	BranchName   string
	Status       SessionStatus
	CreatedByID  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
