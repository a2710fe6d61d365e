package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ErrorTaxonomy(t *testing.T) {
	r := NewRegistry()
	r.Register(NewHomestead("https://api.homestead.dev", "key", nil, nil), true)
	r.Register(NewMayfly("https://api.mayfly.dev", "", nil, nil), true) // no key
	r.Register(NewBolt("https://api.bolt.dev", "key", nil, nil), false) // disabled

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Get(TypeBolt)
	assert.ErrorIs(t, err, ErrProviderDisabled)

	_, err = r.Get(TypeMayfly)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	p, err := r.Get(TypeHomestead)
	require.NoError(t, err)
	assert.Equal(t, TypeHomestead, p.Type())
}

func TestRegistry_DefaultIsFirstUsableProvider(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMayfly("https://api.mayfly.dev", "", nil, nil), true) // unavailable
	r.Register(NewHomestead("https://api.homestead.dev", "key", nil, nil), true)

	assert.Equal(t, TypeHomestead, r.DefaultType())

	p, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, TypeHomestead, p.Type())
}

func TestRegistry_SetDefaultValidatesFirst(t *testing.T) {
	r := NewRegistry()
	r.Register(NewHomestead("https://api.homestead.dev", "key", nil, nil), true)
	r.Register(NewMayfly("https://api.mayfly.dev", "", nil, nil), true)

	err := r.SetDefault(TypeMayfly)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, TypeHomestead, r.DefaultType(), "failed SetDefault must not move the pointer")

	err = r.SetDefault("bogus")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistry_ListMetadata(t *testing.T) {
	r := NewRegistry()
	r.Register(NewHomestead("https://api.homestead.dev", "key", nil, nil), true)
	r.Register(NewBolt("https://api.bolt.dev", "key", nil, nil), true)

	infos := r.List()
	require.Len(t, infos, 2)

	// Sorted by type: bolt, homestead.
	assert.Equal(t, TypeBolt, infos[0].Type)
	assert.True(t, infos[0].Capabilities.GPU)
	assert.False(t, infos[0].Capabilities.Checkpoints)

	assert.Equal(t, TypeHomestead, infos[1].Type)
	assert.True(t, infos[1].Default)
	assert.True(t, infos[1].Capabilities.Checkpoints)
	assert.True(t, infos[1].Capabilities.PauseResume)
}

func TestSupportsCheckpoints(t *testing.T) {
	assert.True(t, SupportsCheckpoints(NewHomestead("u", "k", nil, nil)))
	assert.False(t, SupportsCheckpoints(NewMayfly("u", "k", nil, nil)))
	assert.False(t, SupportsCheckpoints(NewBolt("u", "k", nil, nil)))
}
