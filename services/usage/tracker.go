// Package usage accumulates token counts and estimated spend per provider.
// Purely additive bookkeeping; there are no failure modes.
package usage

import (
	"sync"

	"github.com/spectreweave/orchestrator/models"
)

// CostTable maps each provider to its cost per 1K tokens in USD.
type CostTable map[models.Provider]float64

// DefaultCostTable holds the static per-provider pricing estimates.
func DefaultCostTable() CostTable {
	return CostTable{
		models.ProviderGemini:     0.0025,
		models.ProviderAzure:      0.01,
		models.ProviderDatabricks: 0.005,
		models.ProviderStability:  0.04,
		models.ProviderLocal:      0,
	}
}

// Totals is an accumulated usage view, global or per provider.
type Totals struct {
	Requests    int64   `json:"requests"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

// Tracker accumulates usage for observability.
type Tracker struct {
	mu          sync.Mutex
	costs       CostTable
	global      Totals
	perProvider map[models.Provider]*Totals
}

// NewTracker creates a tracker with the given cost table.
func NewTracker(costs CostTable) *Tracker {
	if costs == nil {
		costs = DefaultCostTable()
	}
	return &Tracker{
		costs:       costs,
		perProvider: make(map[models.Provider]*Totals),
	}
}

// EstimateCost prices a token total against the provider's rate.
func (t *Tracker) EstimateCost(provider models.Provider, totalTokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return float64(totalTokens) / 1000 * t.costs[provider]
}

// Record adds one completed request's usage to the totals.
func (t *Tracker) Record(provider models.Provider, tokens models.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost := tokens.EstimatedCost
	if cost == 0 {
		cost = float64(tokens.TotalTokens) / 1000 * t.costs[provider]
	}

	t.global.Requests++
	t.global.TotalTokens += int64(tokens.TotalTokens)
	t.global.TotalCost += cost

	pt, exists := t.perProvider[provider]
	if !exists {
		pt = &Totals{}
		t.perProvider[provider] = pt
	}
	pt.Requests++
	pt.TotalTokens += int64(tokens.TotalTokens)
	pt.TotalCost += cost
}

// GlobalTotals returns the accumulated totals across all providers.
func (t *Tracker) GlobalTotals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.global
}

// ProviderTotals returns the accumulated totals for one provider.
func (t *Tracker) ProviderTotals(provider models.Provider) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pt, exists := t.perProvider[provider]; exists {
		return *pt
	}
	return Totals{}
}

// AllProviderTotals returns a copy of every provider's totals.
func (t *Tracker) AllProviderTotals() map[models.Provider]Totals {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[models.Provider]Totals, len(t.perProvider))
	for provider, pt := range t.perProvider {
		out[provider] = *pt
	}
	return out
}

// Reset zeroes all totals.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.global = Totals{}
	t.perProvider = make(map[models.Provider]*Totals)
}
