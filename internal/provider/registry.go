package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Info is the registry's discovery metadata for one provider.
type Info struct {
	Type         string       `json:"type"`
	Name         string       `json:"name"`
	Available    bool         `json:"available"`
	Enabled      bool         `json:"enabled"`
	Default      bool         `json:"default"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds the configured providers and the mutable default pointer.
// All checks happen before any network call: Get fails fast with the
// configuration-time error taxonomy.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	enabled     map[string]bool
	defaultType string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		enabled:   make(map[string]bool),
	}
}

// Register adds a provider under its type. The first registered enabled and
// available provider becomes the default.
func (r *Registry) Register(p Provider, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Type()] = p
	r.enabled[p.Type()] = enabled
	if r.defaultType == "" && enabled && p.IsAvailable() {
		r.defaultType = p.Type()
	}
}

// Get returns the provider for the given type, failing fast with
// ErrUnknownProvider, ErrProviderDisabled or ErrProviderUnavailable.
func (r *Registry) Get(ptype string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[ptype]
	if !ok {
		return nil, fmt.Errorf("%q: %w", ptype, ErrUnknownProvider)
	}
	if !r.enabled[ptype] {
		return nil, fmt.Errorf("%q: %w", ptype, ErrProviderDisabled)
	}
	if !p.IsAvailable() {
		return nil, fmt.Errorf("%q: %w", ptype, ErrProviderUnavailable)
	}
	return p, nil
}

// Default returns the current default provider.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	ptype := r.defaultType
	r.mu.RUnlock()

	if ptype == "" {
		return nil, fmt.Errorf("no default provider configured: %w", ErrProviderUnavailable)
	}
	return r.Get(ptype)
}

// DefaultType returns the type name of the current default, or "".
func (r *Registry) DefaultType() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultType
}

// SetDefault validates the candidate before committing, so the registry is
// never left pointing at an unusable default.
func (r *Registry) SetDefault(ptype string) error {
	if _, err := r.Get(ptype); err != nil {
		return fmt.Errorf("set default provider: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultType = ptype
	return nil
}

// List returns discovery metadata for every registered provider, sorted by
// type for stable output.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.providers))
	for ptype, p := range r.providers {
		infos = append(infos, Info{
			Type:         ptype,
			Name:         p.Name(),
			Available:    p.IsAvailable(),
			Enabled:      r.enabled[ptype],
			Default:      ptype == r.defaultType,
			Capabilities: p.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}
