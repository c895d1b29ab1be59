package handlers

import (
	"net/http"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/breaker"
	"github.com/spectreweave/orchestrator/services/cache"
	"github.com/spectreweave/orchestrator/services/health"
	"github.com/spectreweave/orchestrator/services/usage"
	"github.com/spectreweave/orchestrator/utils"
)

// StatusSources aggregates the read-only views the status endpoints expose.
type StatusSources struct {
	Breakers *breaker.Service
	Health   *health.Monitor
	Cache    *cache.Service
	Usage    *usage.Tracker
}

// StatusHandler exposes provider health, breaker and usage snapshots for
// dashboards.
type StatusHandler struct {
	sources StatusSources
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(sources StatusSources) *StatusHandler {
	return &StatusHandler{sources: sources}
}

// providerStatus is the combined per-provider view.
type providerStatus struct {
	Health   []health.Status    `json:"health"`
	Breakers []breaker.Snapshot `json:"breakers"`
	Cache    cache.Stats        `json:"cache"`
}

// HandleProviders handles GET /api/v1/providers
func (h *StatusHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, providerStatus{
		Health:   h.sources.Health.Snapshot(),
		Breakers: h.sources.Breakers.Snapshots(),
		Cache:    h.sources.Cache.Stats(),
	})
}

// usageReport is the wire shape of the usage endpoint.
type usageReport struct {
	Global      usage.Totals                     `json:"global"`
	PerProvider map[models.Provider]usage.Totals `json:"per_provider"`
}

// HandleUsage handles GET /api/v1/usage
func (h *StatusHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, usageReport{
		Global:      h.sources.Usage.GlobalTotals(),
		PerProvider: h.sources.Usage.AllProviderTotals(),
	})
}

// HandleUsageReset handles POST /api/v1/usage/reset
func (h *StatusHandler) HandleUsageReset(w http.ResponseWriter, r *http.Request) {
	h.sources.Usage.Reset()
	_ = utils.WriteOK(w, map[string]string{"status": "reset"})
}

// HealthCheck handles GET /healthz
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
