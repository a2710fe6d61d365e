package provider

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// TypeBolt is the ephemeral GPU provider, used when the build needs an
// accelerator. Same lifecycle limits as mayfly.
const TypeBolt = "bolt"

// Bolt binds the bolt vendor API. GPU hosts sit behind a private network,
// so preview URLs need a tunnel set up first (a documented vendor
// limitation), unlike the host-mapped ports of the other providers.
type Bolt struct {
	*restClient
}

// NewBolt creates the GPU provider client.
func NewBolt(baseURL, apiKey string, handles HandleCache, log *zap.Logger) *Bolt {
	return &Bolt{restClient: newRESTClient("Bolt", TypeBolt, baseURL, apiKey, handles, log)}
}

func (b *Bolt) Capabilities() Capabilities {
	return Capabilities{
		GPU:         true,
		PreviewNote: "requires tunnel setup; preview URLs are slower to establish",
	}
}

// ResumeWorkspace fails with ErrUnsupported, as for any ephemeral vendor.
func (b *Bolt) ResumeWorkspace(ctx context.Context, id string) (*Workspace, error) {
	return nil, fmt.Errorf("resume workspace %s: %w", id, ErrUnsupported)
}

// PauseWorkspace no-ops with a warning.
func (b *Bolt) PauseWorkspace(ctx context.Context, id string) error {
	b.log.Warn("pause requested on ephemeral provider, ignoring",
		zap.String("provider", b.name),
		zap.String("workspace", id))
	return nil
}

// GetPreviewURL establishes a tunnel to the requested port before asking
// for the public URL.
func (b *Bolt) GetPreviewURL(ctx context.Context, id string, port int) (string, error) {
	var res struct {
		URL string `json:"url"`
	}
	err := b.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/workspaces/%s/tunnels", id),
		map[string]any{"port": port}, &res)
	if err != nil {
		return "", fmt.Errorf("open preview tunnel: %w", err)
	}
	return res.URL, nil
}

var _ Provider = (*Bolt)(nil)
