package provider

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// TypeHomestead is the persistent provider: workspaces survive pauses and
// support filesystem checkpoints.
const TypeHomestead = "homestead"

// Homestead binds the homestead vendor API. It is the only provider that
// implements Checkpointer.
type Homestead struct {
	*restClient
}

// NewHomestead creates the persistent provider client.
func NewHomestead(baseURL, apiKey string, handles HandleCache, log *zap.Logger) *Homestead {
	return &Homestead{restClient: newRESTClient("Homestead", TypeHomestead, baseURL, apiKey, handles, log)}
}

func (h *Homestead) Capabilities() Capabilities {
	return Capabilities{
		PauseResume: true,
		Checkpoints: true,
		PreviewNote: "host-mapped port",
	}
}

// CreateCheckpoint snapshots the workspace filesystem and returns the
// vendor's opaque checkpoint id.
func (h *Homestead) CreateCheckpoint(ctx context.Context, id, label string) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	err := h.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+id+"/checkpoints",
		map[string]any{"label": label}, &res)
	if err != nil {
		return "", fmt.Errorf("create checkpoint: %w", err)
	}
	return res.ID, nil
}

// RestoreCheckpoint rolls the workspace filesystem back to a snapshot. Any
// cached execution context is stale afterwards and is dropped so the next
// run rebuilds it.
func (h *Homestead) RestoreCheckpoint(ctx context.Context, id, checkpointID string) error {
	err := h.doJSON(ctx, http.MethodPost, "/v1/workspaces/"+id+"/checkpoints/"+checkpointID+"/restore", nil, nil)
	if err != nil {
		return fmt.Errorf("restore checkpoint: %w", err)
	}
	h.handles.Delete(id)
	return nil
}

var _ Provider = (*Homestead)(nil)
var _ Checkpointer = (*Homestead)(nil)
