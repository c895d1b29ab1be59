// Package ratelimit implements the per-provider, per-caller request quota.
// Counters live in memory for the process lifetime; a fixed window resets
// them. No network or storage calls are involved.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"go.uber.org/zap"
)

// Config holds the limiter's per-provider quota table.
type Config struct {
	// Window is the fixed counting window length
	Window time.Duration

	// Limits maps each provider to its request quota per window
	Limits map[models.Provider]int

	// DefaultLimit applies to providers absent from Limits; 0 disables
	// limiting for them
	DefaultLimit int
}

// DefaultConfig returns the quota table used when none is configured.
func DefaultConfig() Config {
	return Config{
		Window: time.Minute,
		Limits: map[models.Provider]int{
			models.ProviderGemini:     60,
			models.ProviderAzure:      60,
			models.ProviderDatabricks: 30,
			models.ProviderStability:  10,
			models.ProviderLocal:      0,
		},
		DefaultLimit: 30,
	}
}

type record struct {
	count       int
	windowReset time.Time
}

// Service is the in-memory fixed-window limiter. Check-then-increment is
// serialized under one mutex so concurrent callers sharing a key never lose
// updates.
type Service struct {
	mu      sync.Mutex
	config  Config
	records map[string]*record
	logger  *zap.Logger

	now func() time.Time
}

// NewService creates a rate limiter.
func NewService(config Config, logger *zap.Logger) *Service {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &Service{
		config:  config,
		records: make(map[string]*record),
		logger:  logger,
		now:     time.Now,
	}
}

// Allow checks and consumes one request slot for the (provider, caller) key.
// An expired window resets the count to 1 and extends the window; otherwise
// the count increments while under the limit. Returns false, mutating
// nothing further, once the quota is reached.
func (s *Service) Allow(provider models.Provider, callerKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.limitFor(provider)
	if limit <= 0 {
		return true
	}

	now := s.now()
	key := scopeKey(provider, callerKey)

	rec, exists := s.records[key]
	if !exists || !now.Before(rec.windowReset) {
		s.records[key] = &record{count: 1, windowReset: now.Add(s.config.Window)}
		return true
	}

	if rec.count >= limit {
		s.logger.Debug("rate limit exceeded",
			zap.String("provider", string(provider)),
			zap.String("caller", callerKey),
			zap.Int("limit", limit),
			zap.Time("window_reset", rec.windowReset))
		return false
	}

	rec.count++
	return true
}

// Usage returns the current count and window reset for a key. A zero reset
// time means no window is active.
func (s *Service) Usage(provider models.Provider, callerKey string) (count int, reset time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[scopeKey(provider, callerKey)]
	if !exists || !s.now().Before(rec.windowReset) {
		return 0, time.Time{}
	}
	return rec.count, rec.windowReset
}

// LimitFor exposes the configured quota for a provider.
func (s *Service) LimitFor(provider models.Provider) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limitFor(provider)
}

// Sweep drops expired records to keep the map size bounded.
func (s *Service) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, rec := range s.records {
		if !now.Before(rec.windowReset) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// UpdateConfig replaces the quota table. Existing windows keep counting.
func (s *Service) UpdateConfig(config Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config.Window <= 0 {
		config.Window = time.Minute
	}
	s.config = config
}

// limitFor reads the quota table; callers hold s.mu.
func (s *Service) limitFor(provider models.Provider) int {
	if limit, ok := s.config.Limits[provider]; ok {
		return limit
	}
	return s.config.DefaultLimit
}

func scopeKey(provider models.Provider, callerKey string) string {
	return fmt.Sprintf("%s:%s", provider, callerKey)
}
