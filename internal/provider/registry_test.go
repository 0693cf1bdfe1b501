package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-assist/internal/provider"
	"manuscript-assist/internal/provider/mock"
)

func TestRegistry_LookupAndAliases(t *testing.T) {
	ctx := context.Background()
	registry := provider.NewRegistry()

	together := mock.New("together", "Qwen/Qwen1.5-72B-Chat")
	require.NoError(t, registry.RegisterProvider(ctx, together, map[string]string{"qwen": "Qwen/Qwen1.5-72B-Chat"}))

	model, p, err := registry.LookupModel("qwen")
	require.NoError(t, err)
	assert.Equal(t, "Qwen/Qwen1.5-72B-Chat", model.ID)
	assert.Same(t, together, p)

	_, _, err = registry.LookupModel("gpt-4o")
	assert.ErrorIs(t, err, provider.ErrUnknownModel)
}

func TestRegistry_RejectsConflicts(t *testing.T) {
	ctx := context.Background()
	registry := provider.NewRegistry()
	require.NoError(t, registry.RegisterProvider(ctx, mock.New("a", "m1"), nil))

	err := registry.RegisterProvider(ctx, mock.New("b", "m1"), nil)
	assert.ErrorIs(t, err, provider.ErrDuplicateModel)

	err = registry.RegisterProvider(ctx, mock.New("a", "m2"), nil)
	assert.ErrorContains(t, err, "already registered")

	err = registry.RegisterProvider(ctx, mock.New("c", "m3"), map[string]string{"m1": "m3"})
	assert.ErrorContains(t, err, "conflicts")

	err = registry.RegisterProvider(ctx, mock.New("d", "m4"), map[string]string{"x": "nope"})
	assert.ErrorContains(t, err, "unknown model")

	assert.Error(t, registry.RegisterProvider(ctx, nil, nil))
}

func TestRegistry_DefaultProviderCatchesUnlistedModels(t *testing.T) {
	ctx := context.Background()
	registry := provider.NewRegistry()
	local := mock.New("local", "listed")
	remote := mock.New("remote")
	require.NoError(t, registry.RegisterProvider(ctx, local, nil))
	require.NoError(t, registry.RegisterProvider(ctx, remote, nil))

	assert.Error(t, registry.SetDefaultProvider("missing"))
	require.NoError(t, registry.SetDefaultProvider("remote"))

	_, p, err := registry.LookupModel("listed")
	require.NoError(t, err)
	assert.Same(t, local, p)

	model, p, err := registry.LookupModel("google/gemma-3n-E4B-it")
	require.NoError(t, err)
	assert.Same(t, remote, p)
	assert.Equal(t, "google/gemma-3n-E4B-it", model.ID)
	assert.Equal(t, "remote", model.Provider)

	_, _, err = registry.LookupModel("")
	assert.ErrorIs(t, err, provider.ErrUnknownModel)

	assert.ElementsMatch(t, []string{"local", "remote"}, registry.Providers())
}
