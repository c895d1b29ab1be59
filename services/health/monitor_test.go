package health

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/breaker"
	"github.com/spectreweave/orchestrator/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// probeAdapter fails its probe while failing is set.
type probeAdapter struct {
	name    models.Provider
	failing bool
	probes  int
}

func (a *probeAdapter) Name() models.Provider { return a.name }

func (a *probeAdapter) GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	return models.NewGenerationResponse(req.ID, a.name, "probe-model", "ok"), nil
}

func (a *probeAdapter) ChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	return models.NewGenerationResponse("", a.name, "probe-model", "ok"), nil
}

func (a *probeAdapter) StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error) {
	return nil, providers.NewServiceError(providers.CodeStreamingUnsupported, a.name, "no stream", false, nil)
}

func (a *probeAdapter) Probe(ctx context.Context) error {
	a.probes++
	if a.failing {
		return errors.New("probe refused")
	}
	return nil
}

func newTestMonitor(t *testing.T, adapters ...*probeAdapter) (*Monitor, *breaker.Service) {
	t.Helper()

	registry := providers.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a))
	}

	breakers := breaker.NewService(breaker.DefaultConfig(), zap.NewNop())
	monitor := NewMonitor(Config{
		Interval:           time.Minute,
		ProbeTimeout:       time.Second,
		UnhealthyThreshold: 3,
		Skip:               []models.Provider{models.ProviderStability},
	}, registry, breakers, zap.NewNop())
	return monitor, breakers
}

func TestUnknownProviderIsHealthy(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	assert.True(t, monitor.IsHealthy(models.ProviderGemini))
}

func TestProbeFailuresMarkUnhealthy(t *testing.T) {
	adapter := &probeAdapter{name: models.ProviderGemini, failing: true}
	monitor, breakers := newTestMonitor(t, adapter)

	monitor.CheckNow(context.Background())
	monitor.CheckNow(context.Background())
	assert.True(t, monitor.IsHealthy(models.ProviderGemini),
		"two failures stay under the threshold")

	monitor.CheckNow(context.Background())
	assert.False(t, monitor.IsHealthy(models.ProviderGemini))
	assert.Equal(t, breaker.StateOpen, breakers.StateOf(models.ProviderGemini),
		"an unhealthy provider's breaker is forced open")
}

func TestProbeSuccessRestoresHealth(t *testing.T) {
	adapter := &probeAdapter{name: models.ProviderGemini, failing: true}
	monitor, _ := newTestMonitor(t, adapter)

	for i := 0; i < 3; i++ {
		monitor.CheckNow(context.Background())
	}
	require.False(t, monitor.IsHealthy(models.ProviderGemini))

	adapter.failing = false
	monitor.CheckNow(context.Background())

	assert.True(t, monitor.IsHealthy(models.ProviderGemini))
}

func TestSkippedProviderIsNeverProbed(t *testing.T) {
	adapter := &probeAdapter{name: models.ProviderStability, failing: true}
	monitor, _ := newTestMonitor(t, adapter)

	monitor.CheckNow(context.Background())

	assert.Zero(t, adapter.probes)
	assert.True(t, monitor.IsHealthy(models.ProviderStability))
}

func TestSubscribeSeesHealthFlips(t *testing.T) {
	adapter := &probeAdapter{name: models.ProviderAzure, failing: true}
	monitor, _ := newTestMonitor(t, adapter)

	var flips []Status
	monitor.Subscribe(func(st Status) { flips = append(flips, st) })

	for i := 0; i < 3; i++ {
		monitor.CheckNow(context.Background())
	}
	adapter.failing = false
	monitor.CheckNow(context.Background())

	require.Len(t, flips, 2)
	assert.False(t, flips[0].IsHealthy)
	assert.True(t, flips[1].IsHealthy)
}

func TestPassingProbeClosesHalfOpenBreaker(t *testing.T) {
	adapter := &probeAdapter{name: models.ProviderGemini}
	monitor, breakers := newTestMonitor(t, adapter)

	for i := 0; i < 5; i++ {
		breakers.RecordFailure(models.ProviderGemini, errors.New("down"))
	}
	require.Equal(t, breaker.StateOpen, breakers.StateOf(models.ProviderGemini))

	// No probe action while the breaker is fully open.
	monitor.CheckNow(context.Background())
	assert.Equal(t, breaker.StateOpen, breakers.StateOf(models.ProviderGemini))
}

func TestRecordOutcomeTracksLatencyAndErrors(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	monitor.RecordOutcome(models.ProviderGemini, 100*time.Millisecond, nil)
	monitor.RecordOutcome(models.ProviderGemini, 200*time.Millisecond, errors.New("boom"))

	snapshot := monitor.Snapshot()
	require.Len(t, snapshot, 1)
	st := snapshot[0]

	assert.Equal(t, models.ProviderGemini, st.Provider)
	assert.True(t, st.IsHealthy, "attempt outcomes never flip health on their own")
	assert.Greater(t, st.AverageLatency, 100*time.Millisecond)
	assert.InDelta(t, 0.2, st.ErrorRate, 1e-9)
}

func TestStartStop(t *testing.T) {
	adapter := &probeAdapter{name: models.ProviderGemini}
	monitor, _ := newTestMonitor(t, adapter)

	monitor.Start()
	monitor.Stop()
	monitor.Stop()
}
