// Package health runs the periodic per-provider probe loop and keeps the
// moving health view that provider selection consults.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/breaker"
	"github.com/spectreweave/orchestrator/services/providers"
	"go.uber.org/zap"
)

// ewmaWeight is the weight of the newest sample in the moving averages.
const ewmaWeight = 0.2

// Config tunes the probe loop.
type Config struct {
	// Interval between probe rounds
	Interval time.Duration

	// ProbeTimeout bounds each individual probe
	ProbeTimeout time.Duration

	// UnhealthyThreshold is the consecutive probe-failure count that marks a
	// provider unhealthy and forces its breaker open
	UnhealthyThreshold int

	// Skip lists providers whose probes are too expensive to run (image
	// generation)
	Skip []models.Provider
}

// DefaultConfig probes every minute with a five second budget and skips the
// image provider.
func DefaultConfig() Config {
	return Config{
		Interval:           60 * time.Second,
		ProbeTimeout:       5 * time.Second,
		UnhealthyThreshold: 3,
		Skip:               []models.Provider{models.ProviderStability},
	}
}

// Status is the health view of one provider.
type Status struct {
	Provider            models.Provider `json:"provider"`
	IsHealthy           bool            `json:"is_healthy"`
	LastCheck           time.Time       `json:"last_check"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	AverageLatency      time.Duration   `json:"average_latency"`
	ErrorRate           float64         `json:"error_rate"`
}

// ChangeListener observes health flips for dashboards.
type ChangeListener func(Status)

// Monitor owns the per-provider health state. Only the monitor itself and
// attempt outcomes (via RecordOutcome) mutate it.
type Monitor struct {
	mu        sync.Mutex
	config    Config
	registry  *providers.Registry
	breakers  *breaker.Service
	states    map[models.Provider]*Status
	skip      map[models.Provider]bool
	listeners []ChangeListener
	logger    *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates the health monitor. Every registered provider starts
// healthy until a probe or attempt says otherwise.
func NewMonitor(config Config, registry *providers.Registry, breakers *breaker.Service, logger *zap.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.UnhealthyThreshold <= 0 {
		config.UnhealthyThreshold = 3
	}

	skip := make(map[models.Provider]bool, len(config.Skip))
	for _, p := range config.Skip {
		skip[p] = true
	}

	return &Monitor{
		config:   config,
		registry: registry,
		breakers: breakers,
		states:   make(map[models.Provider]*Status),
		skip:     skip,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the probe loop. Stop cancels it; tests can also call
// CheckNow directly and never Start.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CheckNow(context.Background())
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Subscribe registers a listener for health flips.
func (m *Monitor) Subscribe(listener ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// CheckNow probes every registered provider once.
func (m *Monitor) CheckNow(ctx context.Context) {
	for _, provider := range m.registry.List() {
		if m.skip[provider] {
			continue
		}
		adapter, err := m.registry.Get(provider)
		if err != nil {
			continue
		}
		m.probe(ctx, provider, adapter)
	}
}

// IsHealthy reports the current health view; unknown providers count as
// healthy so a cold start never blocks selection.
func (m *Monitor) IsHealthy(provider models.Provider) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, exists := m.states[provider]; exists {
		return st.IsHealthy
	}
	return true
}

// RecordOutcome folds one attempt's latency and result into the moving
// averages. Attempt outcomes do not flip health by themselves; probes do.
func (m *Monitor) RecordOutcome(provider models.Provider, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateFor(provider)
	if st.AverageLatency == 0 {
		st.AverageLatency = latency
	} else {
		st.AverageLatency = time.Duration((1-ewmaWeight)*float64(st.AverageLatency) + ewmaWeight*float64(latency))
	}

	sample := 0.0
	if err != nil {
		sample = 1.0
	}
	st.ErrorRate = (1-ewmaWeight)*st.ErrorRate + ewmaWeight*sample
}

// Snapshot returns the health view of every tracked provider.
func (m *Monitor) Snapshot() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, *st)
	}
	return out
}

func (m *Monitor) probe(ctx context.Context, provider models.Provider, adapter providers.Adapter) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	started := time.Now()
	err := adapter.Probe(probeCtx)
	latency := time.Since(started)

	m.mu.Lock()
	st := m.stateFor(provider)
	st.LastCheck = time.Now()

	var changed *Status
	if err == nil {
		st.ConsecutiveFailures = 0
		if !st.IsHealthy {
			st.IsHealthy = true
			snapshot := *st
			changed = &snapshot
		}
		if st.AverageLatency == 0 {
			st.AverageLatency = latency
		} else {
			st.AverageLatency = time.Duration((1-ewmaWeight)*float64(st.AverageLatency) + ewmaWeight*float64(latency))
		}
	} else {
		st.ConsecutiveFailures++
		if st.IsHealthy && st.ConsecutiveFailures >= m.config.UnhealthyThreshold {
			st.IsHealthy = false
			snapshot := *st
			changed = &snapshot
		}
	}
	unhealthy := !st.IsHealthy
	listeners := append([]ChangeListener(nil), m.listeners...)
	m.mu.Unlock()

	if err == nil {
		// A passing probe closes a half-open breaker.
		if m.breakers.StateOf(provider) == breaker.StateHalfOpen {
			m.breakers.RecordSuccess(provider)
		}
	} else {
		m.logger.Warn("health probe failed",
			zap.String("provider", string(provider)),
			zap.Error(err))
		if unhealthy {
			m.breakers.ForceOpen(provider)
		}
	}

	if changed != nil {
		m.logger.Info("provider health changed",
			zap.String("provider", string(provider)),
			zap.Bool("is_healthy", changed.IsHealthy))
		for _, l := range listeners {
			l(*changed)
		}
	}
}

func (m *Monitor) stateFor(provider models.Provider) *Status {
	st, exists := m.states[provider]
	if !exists {
		st = &Status{Provider: provider, IsHealthy: true}
		m.states[provider] = st
	}
	return st
}
