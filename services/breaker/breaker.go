// Package breaker implements the per-provider circuit breaker that stops
// sending requests to a failing provider and periodically lets a trial
// request through.
package breaker

import (
	"sync"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"go.uber.org/zap"
)

// State is the breaker position for one provider.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Settings are the per-provider thresholds.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before allowing a
	// trial request
	RecoveryTimeout time.Duration
}

// Config maps providers to their settings.
type Config struct {
	Defaults Settings
	Settings map[models.Provider]Settings
}

// DefaultConfig gives remote providers five strikes and the local provider,
// which should never fail, a tighter leash.
func DefaultConfig() Config {
	return Config{
		Defaults: Settings{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second},
		Settings: map[models.Provider]Settings{
			models.ProviderLocal: {FailureThreshold: 2, RecoveryTimeout: 10 * time.Second},
		},
	}
}

type providerState struct {
	state         State
	failureCount  int
	lastFailure   time.Time
	nextAttempt   time.Time
	trialInFlight bool
}

// Snapshot is a read-only view of one provider's breaker.
type Snapshot struct {
	Provider     models.Provider `json:"provider"`
	State        State           `json:"state"`
	FailureCount int             `json:"failure_count"`
	LastFailure  time.Time       `json:"last_failure,omitempty"`
	NextAttempt  time.Time       `json:"next_attempt,omitempty"`
}

// Service owns the breaker state machines. Check-then-transition runs under
// one mutex so concurrent attempts never observe a torn state.
type Service struct {
	mu     sync.Mutex
	config Config
	states map[models.Provider]*providerState
	logger *zap.Logger

	now func() time.Time
}

// NewService creates the breaker service with every provider closed.
func NewService(config Config, logger *zap.Logger) *Service {
	if config.Defaults.FailureThreshold <= 0 {
		config.Defaults.FailureThreshold = 5
	}
	if config.Defaults.RecoveryTimeout <= 0 {
		config.Defaults.RecoveryTimeout = 60 * time.Second
	}
	return &Service{
		config: config,
		states: make(map[models.Provider]*providerState),
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether an attempt may proceed. An open breaker whose
// recovery deadline has passed transitions to half-open and admits exactly
// one trial call; further attempts are blocked until the trial's outcome is
// recorded.
func (s *Service) Allow(provider models.Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateFor(provider)
	switch st.state {
	case StateClosed:
		return true
	case StateOpen:
		if s.now().Before(st.nextAttempt) {
			return false
		}
		st.state = StateHalfOpen
		st.trialInFlight = true
		s.logger.Info("circuit breaker half-open",
			zap.String("provider", string(provider)))
		return true
	case StateHalfOpen:
		if st.trialInFlight {
			return false
		}
		st.trialInFlight = true
		return true
	}
	return true
}

// RecordSuccess closes the breaker and resets the failure count.
func (s *Service) RecordSuccess(provider models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateFor(provider)
	if st.state != StateClosed {
		s.logger.Info("circuit breaker closed",
			zap.String("provider", string(provider)))
	}
	st.state = StateClosed
	st.failureCount = 0
	st.trialInFlight = false
	st.nextAttempt = time.Time{}
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached. A failed half-open trial reopens immediately with a
// fresh recovery deadline.
func (s *Service) RecordFailure(provider models.Provider, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsFor(provider)
	st := s.stateFor(provider)
	now := s.now()

	st.failureCount++
	st.lastFailure = now
	st.trialInFlight = false

	if st.state == StateHalfOpen || st.failureCount >= settings.FailureThreshold {
		st.state = StateOpen
		st.nextAttempt = now.Add(settings.RecoveryTimeout)
		s.logger.Warn("circuit breaker open",
			zap.String("provider", string(provider)),
			zap.Int("failure_count", st.failureCount),
			zap.Time("next_attempt", st.nextAttempt),
			zap.Error(err))
	}
}

// ReleaseTrial returns an unused half-open trial slot. Called when a gating
// layer past the breaker rejects the attempt before any network call.
func (s *Service) ReleaseTrial(provider models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateFor(provider)
	if st.state == StateHalfOpen {
		st.trialInFlight = false
	}
}

// ForceOpen opens the breaker regardless of the failure count. Used by the
// health monitor when probes mark a provider unhealthy.
func (s *Service) ForceOpen(provider models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsFor(provider)
	st := s.stateFor(provider)
	st.state = StateOpen
	st.trialInFlight = false
	st.nextAttempt = s.now().Add(settings.RecoveryTimeout)
	s.logger.Warn("circuit breaker forced open",
		zap.String("provider", string(provider)))
}

// FailureCount returns the current consecutive-failure count.
func (s *Service) FailureCount(provider models.Provider) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateFor(provider).failureCount
}

// StateOf returns the current breaker position.
func (s *Service) StateOf(provider models.Provider) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateFor(provider).state
}

// Snapshots returns a view of every tracked provider.
func (s *Service) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(s.states))
	for provider, st := range s.states {
		snapshots = append(snapshots, Snapshot{
			Provider:     provider,
			State:        st.state,
			FailureCount: st.failureCount,
			LastFailure:  st.lastFailure,
			NextAttempt:  st.nextAttempt,
		})
	}
	return snapshots
}

// UpdateConfig replaces the threshold table without resetting breaker state.
func (s *Service) UpdateConfig(config Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config.Defaults.FailureThreshold <= 0 {
		config.Defaults.FailureThreshold = s.config.Defaults.FailureThreshold
	}
	if config.Defaults.RecoveryTimeout <= 0 {
		config.Defaults.RecoveryTimeout = s.config.Defaults.RecoveryTimeout
	}
	s.config = config
}

func (s *Service) stateFor(provider models.Provider) *providerState {
	st, exists := s.states[provider]
	if !exists {
		st = &providerState{state: StateClosed}
		s.states[provider] = st
	}
	return st
}

func (s *Service) settingsFor(provider models.Provider) Settings {
	if settings, ok := s.config.Settings[provider]; ok {
		if settings.FailureThreshold <= 0 {
			settings.FailureThreshold = s.config.Defaults.FailureThreshold
		}
		if settings.RecoveryTimeout <= 0 {
			settings.RecoveryTimeout = s.config.Defaults.RecoveryTimeout
		}
		return settings
	}
	return s.config.Defaults
}
