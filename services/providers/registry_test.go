package providers

import (
	"context"
	"io"
	"testing"

	"github.com/spectreweave/orchestrator/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name models.Provider
}

func (a *stubAdapter) Name() models.Provider { return a.name }

func (a *stubAdapter) GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	return models.NewGenerationResponse(req.ID, a.name, "stub-model", "stub"), nil
}

func (a *stubAdapter) ChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	return models.NewGenerationResponse("", a.name, "stub-model", "stub"), nil
}

func (a *stubAdapter) StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error) {
	return nil, NewServiceError(CodeStreamingUnsupported, a.name, "no stream", false, nil)
}

func (a *stubAdapter) Probe(ctx context.Context) error { return nil }

func TestRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	adapter := &stubAdapter{name: models.ProviderGemini}

	require.NoError(t, registry.Register(adapter))

	got, err := registry.Get(models.ProviderGemini)
	require.NoError(t, err)
	assert.Same(t, adapter, got.(*stubAdapter))
	assert.True(t, registry.Has(models.ProviderGemini))
	assert.Equal(t, 1, registry.Count())
}

func TestRegisterDuplicate(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&stubAdapter{name: models.ProviderAzure}))
	err := registry.Register(&stubAdapter{name: models.ProviderAzure})

	assert.ErrorIs(t, err, ErrProviderAlreadyRegistered)
	assert.Equal(t, 1, registry.Count())
}

func TestRegisterInvalidAdapters(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&stubAdapter{name: ""}))
	assert.Zero(t, registry.Count())
}

func TestGetUnknownProvider(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get(models.ProviderDatabricks)
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.False(t, registry.Has(models.ProviderDatabricks))
}

func TestList(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{name: models.ProviderGemini}))
	require.NoError(t, registry.Register(&stubAdapter{name: models.ProviderLocal}))

	assert.ElementsMatch(t,
		[]models.Provider{models.ProviderGemini, models.ProviderLocal},
		registry.List())
}
