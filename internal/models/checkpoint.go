package models

import "time"

// CheckpointType distinguishes automatic post-build snapshots from
// user-requested ones.
type CheckpointType string

const (
	CheckpointTypeAuto   CheckpointType = "auto"
	CheckpointTypeManual CheckpointType = "manual"
)

// Checkpoint is a persisted reference to a provider-level snapshot of a
// sandbox. ProviderCheckpointID is opaque and round-trips unmodified into
// the provider's restore call.
type Checkpoint struct {
	ID                   string
	SessionID            string
	SandboxID            string
	Label                string
	Type                 CheckpointType
	ProviderCheckpointID string
	CreatedAt            time.Time
}
