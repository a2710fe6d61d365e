package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// TypeMayfly is the ephemeral provider: fast to start, cheap, but a
// workspace that stops is gone for good.
const TypeMayfly = "mayfly"

// Mayfly binds the mayfly vendor API. No pause/resume, no checkpoints.
type Mayfly struct {
	*restClient
}

// NewMayfly creates the ephemeral provider client.
func NewMayfly(baseURL, apiKey string, handles HandleCache, log *zap.Logger) *Mayfly {
	return &Mayfly{restClient: newRESTClient("Mayfly", TypeMayfly, baseURL, apiKey, handles, log)}
}

func (m *Mayfly) Capabilities() Capabilities {
	return Capabilities{PreviewNote: "host-mapped port"}
}

// ResumeWorkspace fails with ErrUnsupported: an ephemeral workspace cannot
// be brought back, callers should recreate instead.
func (m *Mayfly) ResumeWorkspace(ctx context.Context, id string) (*Workspace, error) {
	return nil, fmt.Errorf("resume workspace %s: %w", id, ErrUnsupported)
}

// PauseWorkspace no-ops with a warning. "Pause" means "stop billing", which
// has no equivalent for an ephemeral unit.
func (m *Mayfly) PauseWorkspace(ctx context.Context, id string) error {
	m.log.Warn("pause requested on ephemeral provider, ignoring",
		zap.String("provider", m.name),
		zap.String("workspace", id))
	return nil
}

var _ Provider = (*Mayfly)(nil)
