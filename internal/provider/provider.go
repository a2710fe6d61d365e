// Package provider abstracts remote sandbox compute vendors behind a single
// contract. Three vendors are supported: homestead (persistent, pausable,
// checkpointable), mayfly (ephemeral) and bolt (ephemeral with GPU). The
// orchestrator only ever sees this interface; vendor errors never leak past
// the package boundary.
package provider

import (
	"context"
	"time"
)

// WorkspaceStatus is the remote lifecycle state of a workspace.
type WorkspaceStatus string

const (
	WorkspaceStatusCreating WorkspaceStatus = "creating"
	WorkspaceStatusRunning  WorkspaceStatus = "running"
	WorkspaceStatusPaused   WorkspaceStatus = "paused"
	WorkspaceStatusStopped  WorkspaceStatus = "stopped"
	WorkspaceStatusError    WorkspaceStatus = "error"
)

// Workspace identifies one remote compute unit. It is owned by the provider
// that created it; persisted Sandbox records only reference it.
type Workspace struct {
	ID           string
	Status       WorkspaceStatus
	PreviewURL   string
	ProviderType string
	ContextID    string
	Metadata     map[string]string
}

// CreateOptions configures workspace creation and repository bootstrap.
type CreateOptions struct {
	RepoURL  string
	Branch   string
	GitToken string
	EnvVars  map[string]string
	Timeout  time.Duration
}

// ExecOptions configures a synchronous command execution.
type ExecOptions struct {
	Cwd     string
	EnvVars map[string]string
	Timeout time.Duration
}

// ExecResult is the outcome of a synchronous command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunOptions configures a streaming code run.
type RunOptions struct {
	Language string
	OnStdout func(string)
	OnStderr func(string)
}

// EventType is the raw streaming vocabulary emitted by RunCode and by the
// agent backend. The orchestrator translates it into the client protocol.
type EventType string

const (
	EventStdout EventType = "stdout"
	EventStderr EventType = "stderr"
	EventResult EventType = "result"
	EventError  EventType = "error"
	EventDone   EventType = "done"
)

// Event is one unit of a RunCode stream.
type Event struct {
	Type     EventType         `json:"type"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DevServerOptions configures dev server startup. An empty Command means
// "try the default candidates in order".
type DevServerOptions struct {
	Command string
	Port    int
}

// FileInfo describes one entry returned by ListFiles.
type FileInfo struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Provider is the uniform contract every sandbox vendor binding satisfies.
//
// Semantics all implementations must honor:
//   - GetWorkspace returns ErrWorkspaceNotFound for unknown ids, never a
//     raw vendor error.
//   - ResumeWorkspace is idempotent: resuming an already-running workspace
//     succeeds. Vendors that cannot resume return ErrUnsupported so callers
//     can recreate instead of retry.
//   - PauseWorkspace is best-effort; ephemeral vendors no-op with a warning.
//   - DeleteWorkspace is idempotent: deleting an unknown workspace is nil.
//   - RunCode always terminates the returned channel with exactly one done
//     event; an error event, if any, precedes it.
type Provider interface {
	Name() string
	Type() string
	// IsAvailable reports whether required credentials are configured.
	// It never returns an error and performs no network calls.
	IsAvailable() bool
	Capabilities() Capabilities

	CreateWorkspace(ctx context.Context, opts CreateOptions) (*Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)
	ResumeWorkspace(ctx context.Context, id string) (*Workspace, error)
	PauseWorkspace(ctx context.Context, id string) error
	DeleteWorkspace(ctx context.Context, id string) error

	ExecuteCommand(ctx context.Context, id, cmd string, opts ExecOptions) (*ExecResult, error)
	RunCode(ctx context.Context, id, code string, opts RunOptions) (<-chan Event, error)

	StartDevServer(ctx context.Context, id string, opts DevServerOptions) (string, error)
	GetPreviewURL(ctx context.Context, id string, port int) (string, error)

	ReadFile(ctx context.Context, id, path string) ([]byte, error)
	WriteFile(ctx context.Context, id, path string, content []byte) error
	ListFiles(ctx context.Context, id, path string) ([]FileInfo, error)
}

// Checkpointer is the optional snapshot capability. Only vendors that can
// snapshot workspace state implement it; callers resolve it with a type
// assertion and treat its absence as a soft failure.
type Checkpointer interface {
	CreateCheckpoint(ctx context.Context, id, label string) (string, error)
	RestoreCheckpoint(ctx context.Context, id, checkpointID string) error
}

// Capabilities describes what a provider supports, for discovery surfaces.
type Capabilities struct {
	PauseResume bool   `json:"pause_resume"`
	Checkpoints bool   `json:"checkpoints"`
	GPU         bool   `json:"gpu"`
	PreviewNote string `json:"preview_note,omitempty"`
}

// SupportsCheckpoints reports whether p implements Checkpointer.
func SupportsCheckpoints(p Provider) bool {
	_, ok := p.(Checkpointer)
	return ok
}

// DefaultDevCommands are tried in order when StartDevServer is called
// without an explicit command.
var DefaultDevCommands = []string{
	"npm run dev",
	"npm start",
	"yarn dev",
	"pnpm dev",
}
