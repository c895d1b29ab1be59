// Package cache implements the response cache keyed by a deterministic
// request fingerprint. Entries are time-boxed per request type and evicted
// LRU when the cache is full. The cache is best-effort: callers treat any
// miss or store failure as "go to the network".
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"go.uber.org/zap"
)

const (
	// fingerprintPromptLen bounds the prompt prefix that enters the key
	fingerprintPromptLen = 256

	// creativeTemperature marks requests expected to want fresh output
	creativeTemperature = 0.8

	creativeTTL = 15 * time.Minute
)

// Config holds cache sizing and the TTL table per request type.
type Config struct {
	// MaxSize bounds the entry count; LRU eviction applies beyond it
	MaxSize int

	// TTLs maps request types to entry lifetimes
	TTLs map[models.RequestType]time.Duration

	// DefaultTTL applies to types absent from TTLs
	DefaultTTL time.Duration
}

// DefaultConfig returns the TTL table: feedback responses stay useful far
// longer than suggestions.
func DefaultConfig() Config {
	return Config{
		MaxSize: 1000,
		TTLs: map[models.RequestType]time.Duration{
			models.TypeFeedback:   2 * time.Hour,
			models.TypeAnalysis:   2 * time.Hour,
			models.TypeSuggestion: 30 * time.Minute,
		},
		DefaultTTL: time.Hour,
	}
}

type entry struct {
	key         string
	response    *models.GenerationResponse
	createdAt   time.Time
	ttl         time.Duration
	accessCount int
	element     *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Stats reports cache occupancy and hit rate.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Service is the in-memory response cache.
type Service struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*entry
	lruList *list.List
	hits    uint64
	misses  uint64
	logger  *zap.Logger

	now func() time.Time
}

// NewService creates the response cache.
func NewService(config Config, logger *zap.Logger) *Service {
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}
	return &Service{
		config:  config,
		entries: make(map[string]*entry),
		lruList: list.New(),
		logger:  logger,
		now:     time.Now,
	}
}

// Fingerprint derives the cache key from the prompt prefix, provider, model
// and the generation options that shape the output. Caller identity and
// session context never enter the key, so identical prompts across callers
// share hits. Genre and tone do enter it: they steer the generated text.
func Fingerprint(req *models.GenerationRequest) string {
	prompt := req.Prompt
	if req.IsChat() {
		parts := make([]string, len(req.Messages))
		for i, m := range req.Messages {
			parts[i] = m.Role + ":" + m.Content
		}
		prompt = strings.Join(parts, "\n")
	}
	if len(prompt) > fingerprintPromptLen {
		prompt = prompt[:fingerprintPromptLen]
	}

	genre, tone := "", ""
	if req.Context != nil {
		genre = req.Context.Genre
		tone = req.Context.Tone
	}

	raw := fmt.Sprintf("%s|%s|%s|%s|%.3f|%d|%s|%s",
		req.Type, prompt, req.Options.Provider, req.Options.Model,
		req.Options.Temperature, req.Options.MaxTokens, genre, tone)

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached response for the key, or nil on a miss
// or expired entry. Hits bump the entry's access count and LRU position.
func (s *Service) Get(key string) *models.GenerationResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || e.expired(s.now()) {
		s.misses++
		if exists {
			s.removeEntry(key)
		}
		return nil
	}

	s.lruList.MoveToFront(e.element)
	e.accessCount++
	s.hits++

	// Copy so callers cannot mutate the cached envelope.
	resp := *e.response
	resp.Metadata.Cached = true
	return &resp
}

// Put stores a successful non-streaming response. Streaming requests are
// never cached.
func (s *Service) Put(req *models.GenerationRequest, resp *models.GenerationResponse) {
	if req.Options.Stream || resp == nil || !resp.Success {
		return
	}

	key := Fingerprint(req)
	ttl := s.ttlFor(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[key]; exists {
		e.response = resp
		e.createdAt = s.now()
		e.ttl = ttl
		s.lruList.MoveToFront(e.element)
		return
	}

	if s.lruList.Len() >= s.config.MaxSize {
		s.evictLRU()
	}

	e := &entry{
		key:       key,
		response:  resp,
		createdAt: s.now(),
		ttl:       ttl,
	}
	e.element = s.lruList.PushFront(key)
	s.entries[key] = e
}

// AccessCount returns how many hits an entry has served.
func (s *Service) AccessCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[key]; exists {
		return e.accessCount
	}
	return 0
}

// Stats returns cache statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.hits + s.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(s.hits) / float64(total)
	}
	return Stats{
		Size:    s.lruList.Len(),
		MaxSize: s.config.MaxSize,
		Hits:    s.hits,
		Misses:  s.misses,
		HitRate: hitRate,
	}
}

// Clear drops every entry.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.lruList.Init()
}

// CleanupExpired removes entries past their TTL and returns how many went.
func (s *Service) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := make([]string, 0)
	for key, e := range s.entries {
		if e.expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.removeEntry(key)
	}
	return len(expired)
}

// StartSweeper runs the periodic expiry sweep until ctx-style stop via the
// channel. Owned by the orchestrator's lifecycle.
func (s *Service) StartSweeper(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.CleanupExpired(); removed > 0 {
				s.logger.Debug("cache sweep removed expired entries",
					zap.Int("removed", removed))
			}
		case <-stopCh:
			return
		}
	}
}

func (s *Service) ttlFor(req *models.GenerationRequest) time.Duration {
	// Creative requests expect fresh output on repeat calls.
	if req.Options.Temperature > creativeTemperature {
		return creativeTTL
	}
	if ttl, ok := s.config.TTLs[req.Type]; ok {
		return ttl
	}
	return s.config.DefaultTTL
}

func (s *Service) removeEntry(key string) {
	if e, exists := s.entries[key]; exists {
		s.lruList.Remove(e.element)
		delete(s.entries, key)
	}
}

func (s *Service) evictLRU() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, key)
}
