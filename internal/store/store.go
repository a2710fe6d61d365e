package store

import (
	"context"
	"errors"

	"github.com/hatchpad/hatchpad/internal/models"
)

// ErrNotFound is wrapped by all lookup methods when no record matches.
var ErrNotFound = errors.New("not found")

// ErrPendingApprovalExists is returned when creating an approval for a
// session that already has one pending. Only one approval may be pending
// per session at a time.
var ErrPendingApprovalExists = errors.New("a pending approval already exists for this session")

// SessionListFilter specifies filters for listing sessions.
type SessionListFilter struct {
	RepositoryID string
	Status       models.SessionStatus
	Limit        int
}

// Store defines the persistence interface for hatchpad.
type Store interface {
	// Repositories
	CreateRepository(ctx context.Context, r *models.Repository) error
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	GetRepositoryByURL(ctx context.Context, url string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)

	// Sandboxes
	CreateSandbox(ctx context.Context, sb *models.Sandbox) error
	GetSandbox(ctx context.Context, id string) (*models.Sandbox, error)
	GetSandboxByRepository(ctx context.Context, repositoryID string) (*models.Sandbox, error)
	UpdateSandbox(ctx context.Context, sb *models.Sandbox) error

	// Sessions
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filter SessionListFilter) ([]*models.Session, error)
	UpdateSession(ctx context.Context, sess *models.Session) error
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error
	LinkSessionSandbox(ctx context.Context, sessionID, sandboxID string) error

	// Messages
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)

	// Approvals
	CreateApproval(ctx context.Context, a *models.Approval) error
	GetApproval(ctx context.Context, id string) (*models.Approval, error)
	GetPendingApproval(ctx context.Context, sessionID string) (*models.Approval, error)
	// ResolveApproval flips a pending approval to the given terminal status
	// and updates the session status in the same transaction, so the
	// approval and session states are never observed out of sync. Resolving
	// an already-terminal approval is a no-op that returns the stored record.
	ResolveApproval(ctx context.Context, approvalID string, status models.ApprovalStatus, reviewerID, comment string, sessionStatus models.SessionStatus) (*models.Approval, error)

	// Checkpoints
	CreateCheckpoint(ctx context.Context, cp *models.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (*models.Checkpoint, error)
	ListCheckpoints(ctx context.Context, sessionID string) ([]*models.Checkpoint, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
