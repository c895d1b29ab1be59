package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Resilience.RequestTimeout)
	assert.Equal(t, 3, cfg.Resilience.MaxRetries)
	assert.Equal(t, time.Second, cfg.Resilience.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Resilience.MaxDelay)
	assert.Equal(t, 2.0, cfg.Resilience.BackoffMultiplier)
	assert.Equal(t, []models.Provider{
		models.ProviderGemini, models.ProviderAzure, models.ProviderDatabricks, models.ProviderLocal,
	}, cfg.Resilience.FallbackOrder)

	assert.Equal(t, 60, cfg.RateLimit.Limits[models.ProviderGemini])
	assert.Equal(t, 0, cfg.RateLimit.Limits[models.ProviderLocal])
	assert.Equal(t, 5, cfg.Breaker.Defaults.FailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.Overrides[models.ProviderLocal].FailureThreshold)

	assert.Equal(t, 2*time.Hour, cfg.Cache.TTLs[models.TypeFeedback])
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTLs[models.TypeSuggestion])
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)

	assert.InDelta(t, 0.0025, cfg.Costs[models.ProviderGemini], 1e-9)
	assert.True(t, cfg.Providers.LocalEnabled)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("REQUEST_TIMEOUT", "45s")
	t.Setenv("FALLBACK_ORDER", "databricks, local")
	t.Setenv("RATE_LIMIT_GEMINI", "120")
	t.Setenv("LOCAL_PROVIDER_ENABLED", "false")
	t.Setenv("COST_PER_1K_AZURE", "0.02")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Resilience.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Resilience.BaseDelay)
	assert.Equal(t, 45*time.Second, cfg.Resilience.RequestTimeout)
	assert.Equal(t, []models.Provider{models.ProviderDatabricks, models.ProviderLocal},
		cfg.Resilience.FallbackOrder)
	assert.Equal(t, 120, cfg.RateLimit.Limits[models.ProviderGemini])
	assert.False(t, cfg.Providers.LocalEnabled)
	assert.InDelta(t, 0.02, cfg.Costs[models.ProviderAzure], 1e-9)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadBareMillisecondDurations(t *testing.T) {
	t.Setenv("RETRY_BASE_DELAY", "500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.BaseDelay)
}

func TestLoadPolicyFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	policy := `
fallback_order:
  - azure
  - gemini
rate_limits:
  window: 30s
  default: 15
  limits:
    azure: 90
breakers:
  azure:
    failure_threshold: 7
    recovery_timeout: 90s
costs_per_1k:
  azure: 0.015
`
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))
	t.Setenv("PROVIDER_POLICY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []models.Provider{models.ProviderAzure, models.ProviderGemini},
		cfg.Resilience.FallbackOrder)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 15, cfg.RateLimit.DefaultLimit)
	assert.Equal(t, 90, cfg.RateLimit.Limits[models.ProviderAzure])
	assert.Equal(t, 7, cfg.Breaker.Overrides[models.ProviderAzure].FailureThreshold)
	assert.Equal(t, 90*time.Second, cfg.Breaker.Overrides[models.ProviderAzure].RecoveryTimeout)
	assert.InDelta(t, 0.015, cfg.Costs[models.ProviderAzure], 1e-9)
}

func TestLoadPolicyFileMissing(t *testing.T) {
	t.Setenv("PROVIDER_POLICY_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadPolicyFileMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fallback_order: [unclosed"), 0o600))
	t.Setenv("PROVIDER_POLICY_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}
