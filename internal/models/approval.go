package models

import "time"

// ApprovalStatus is the review state of a plan approval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval is a human review gate on a generated plan.
// At most one approval per session may be pending at a time.
type Approval struct {
	ID         string
	SessionID  string
	MessageID  string
	Status     ApprovalStatus
	ReviewerID string
	Comment    string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
