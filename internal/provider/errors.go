package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the provider error taxonomy. Vendor SDK/API errors
// are caught at the provider boundary and mapped to these; callers branch
// with errors.Is.
var (
	// ErrWorkspaceNotFound is returned by lookups for ids unknown to the
	// vendor (or to this process, for process-local state).
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrUnsupported signals a capability the vendor lacks. Callers must
	// branch (e.g. recreate instead of resume), not retry.
	ErrUnsupported = errors.New("operation not supported by this provider")

	// ErrUnknownProvider, ErrProviderDisabled and ErrProviderUnavailable are
	// configuration-time failures raised by the registry before any network
	// call is made.
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrProviderDisabled    = errors.New("provider is disabled")
	ErrProviderUnavailable = errors.New("provider is not available (missing credentials)")

	// ErrNoDevServer is returned when every candidate dev server command
	// failed to start.
	ErrNoDevServer = errors.New("no dev server could be started")
)

// ProvisioningError reports a failed workspace create/bootstrap. The provider
// tears down any partially-created remote resources before returning it, so
// a ProvisioningError never leaves an orphaned billable workspace behind.
type ProvisioningError struct {
	Provider string
	Stage    string // "create", "clone", "bootstrap"
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("%s provisioning failed during %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
