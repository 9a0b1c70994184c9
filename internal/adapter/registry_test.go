package adapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/domain"
)

type stubAdapter struct{ id string }

func (a *stubAdapter) ID() string      { return a.id }
func (a *stubAdapter) Version() string { return a.id + "/1" }

func (a *stubAdapter) Extract(string, string, adapter.Context) adapter.ExtractResult {
	return adapter.ExtractFail(adapter.ReasonNoProduct, "stub")
}

func (a *stubAdapter) Normalize(*domain.RawOffer, adapter.Context) adapter.NormalizeResult {
	return adapter.Drop(adapter.ReasonNotAmmunition)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := adapter.NewRegistry()

	require.NoError(t, registry.Register(&stubAdapter{id: "alpha"}))
	require.NoError(t, registry.Register(&stubAdapter{id: "beta"}))

	got, err := registry.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.ID())

	assert.Equal(t, []string{"alpha", "beta"}, registry.IDs())
}

func TestRegistry_MissingAdapterIsHardError(t *testing.T) {
	registry := adapter.NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{id: "alpha"}))

	_, err := registry.Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
	// The error lists what is registered so a config typo is easy to spot.
	assert.Contains(t, err.Error(), "alpha")
}

func TestRegistry_DuplicateID(t *testing.T) {
	registry := adapter.NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{id: "alpha"}))

	err := registry.Register(&stubAdapter{id: "alpha"})
	require.Error(t, err)
}

func TestRegistry_EmptyID(t *testing.T) {
	registry := adapter.NewRegistry()

	require.Error(t, registry.Register(&stubAdapter{id: ""}))
}
