// Package orchestrator is the provider selector and failover loop. It is
// the only place that spans multiple providers within one logical request:
// candidates are tried strictly one at a time, each wrapped by the retry
// controller, until one succeeds or the list is exhausted.
package orchestrator

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/breaker"
	"github.com/spectreweave/orchestrator/services/cache"
	"github.com/spectreweave/orchestrator/services/health"
	"github.com/spectreweave/orchestrator/services/providers"
	"github.com/spectreweave/orchestrator/services/ratelimit"
	"github.com/spectreweave/orchestrator/services/retry"
	"github.com/spectreweave/orchestrator/services/usage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config holds the orchestrator's routing and retry policy.
type Config struct {
	// FallbackOrder is the provider priority list tried after the caller's
	// preference. Cheapest/fastest first.
	FallbackOrder []models.Provider

	// Retry is the per-provider backoff policy
	Retry retry.Policy

	// RequestTimeout bounds each provider attempt
	RequestTimeout time.Duration
}

// DefaultConfig routes text to Gemini first, then Azure and Databricks, and
// keeps the offline provider as the last resort.
func DefaultConfig() Config {
	return Config{
		FallbackOrder: []models.Provider{
			models.ProviderGemini,
			models.ProviderAzure,
			models.ProviderDatabricks,
			models.ProviderLocal,
		},
		Retry:          retry.DefaultPolicy(),
		RequestTimeout: 30 * time.Second,
	}
}

// Service owns all orchestration state: the registry, the gating services
// and the trackers. Callers never mutate that state directly.
type Service struct {
	registry *providers.Registry
	limiter  *ratelimit.Service
	breakers *breaker.Service
	cache    *cache.Service
	usage    *usage.Tracker
	health   *health.Monitor
	logger   *zap.Logger

	mu     sync.RWMutex
	config Config
}

// NewService wires the orchestrator. One instance is constructed per process
// and shared by all callers.
func NewService(
	config Config,
	registry *providers.Registry,
	limiter *ratelimit.Service,
	breakers *breaker.Service,
	responseCache *cache.Service,
	tracker *usage.Tracker,
	monitor *health.Monitor,
	logger *zap.Logger,
) *Service {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &Service{
		registry: registry,
		limiter:  limiter,
		breakers: breakers,
		cache:    responseCache,
		usage:    tracker,
		health:   monitor,
		logger:   logger,
		config:   config,
	}
}

// UpdateConfig swaps the routing and retry policy.
func (s *Service) UpdateConfig(config Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = s.config.RequestTimeout
	}
	s.config = config
}

// GenerateText resolves a provider for the request and returns its response.
// Exactly one of response or error is produced; the error is always a
// *providers.ServiceError.
func (s *Service) GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if !req.Options.Stream {
		if cached := s.cache.Get(cache.Fingerprint(req)); cached != nil {
			s.logger.Debug("cache hit",
				zap.String("request_id", req.ID),
				zap.String("provider", string(cached.Provider)))
			return cached, nil
		}
	}

	resp, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	s.cache.Put(req, resp)
	return resp, nil
}

// GetChatCompletion runs the same contract over a role-tagged message list.
func (s *Service) GetChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	req := models.NewChatRequest(messages, opts)
	return s.GenerateText(ctx, req)
}

// StreamText opens a live text stream. Selection and gating apply before the
// dial; once the stream is open there is no caching and no retry. A stream
// failure surfaces to the consumer as a read error.
func (s *Service) StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// The caller's request stays untouched; stream mode is set on a copy.
	streamReq := *req
	streamReq.Options.Stream = true
	req = &streamReq

	cfg := s.currentConfig()
	candidates := s.candidateOrder(req, cfg)

	var gateErr, lastErr error
	attempted := false
	for _, provider := range candidates {
		adapter, err := s.registry.Get(provider)
		if err != nil {
			continue
		}
		if blocked := s.gate(provider, req.CallerKey); blocked != nil {
			gateErr = multierr.Append(gateErr, blocked)
			continue
		}

		attempted = true
		stream, err := adapter.StreamText(ctx, req)
		if err == nil {
			s.breakers.RecordSuccess(provider)
			s.logger.Debug("stream opened",
				zap.String("request_id", req.ID),
				zap.String("provider", string(provider)))
			return stream, nil
		}

		s.breakers.RecordFailure(provider, err)
		s.health.RecordOutcome(provider, 0, err)
		lastErr = err
		s.logger.Warn("stream open failed, trying next provider",
			zap.String("request_id", req.ID),
			zap.String("provider", string(provider)),
			zap.Error(err))
	}

	return nil, s.exhausted(req, attempted, gateErr, lastErr)
}

// ProviderOrder exposes the current fallback priority list.
func (s *Service) ProviderOrder() []models.Provider {
	cfg := s.currentConfig()
	out := make([]models.Provider, len(cfg.FallbackOrder))
	copy(out, cfg.FallbackOrder)
	return out
}

func (s *Service) dispatch(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	cfg := s.currentConfig()
	candidates := s.candidateOrder(req, cfg)

	var gateErr, lastErr error
	attempted := false

	for _, provider := range candidates {
		adapter, err := s.registry.Get(provider)
		if err != nil {
			continue
		}
		if blocked := s.gate(provider, req.CallerKey); blocked != nil {
			gateErr = multierr.Append(gateErr, blocked)
			s.logger.Debug("provider gated",
				zap.String("request_id", req.ID),
				zap.String("provider", string(provider)),
				zap.String("reason", blocked.Error()))
			continue
		}

		attempted = true
		started := time.Now()
		resp, err := retry.Execute(ctx, provider, cfg.Retry, s.breakers, func(attemptCtx context.Context) (*models.GenerationResponse, error) {
			callCtx, cancel := context.WithTimeout(attemptCtx, cfg.RequestTimeout)
			defer cancel()
			return s.invoke(callCtx, adapter, req)
		})
		latency := time.Since(started)
		s.health.RecordOutcome(provider, latency, err)

		if err == nil {
			resp.RequestID = req.ID
			if resp.Usage.Latency == 0 {
				resp.Usage.Latency = latency
			}
			if resp.Usage.EstimatedCost == 0 {
				resp.Usage.EstimatedCost = s.usage.EstimateCost(provider, resp.Usage.TotalTokens)
			}
			s.usage.Record(provider, resp.Usage)
			s.logger.Info("generation complete",
				zap.String("request_id", req.ID),
				zap.String("provider", string(provider)),
				zap.Int("total_tokens", resp.Usage.TotalTokens),
				zap.Duration("latency", latency))
			return resp, nil
		}

		lastErr = err
		s.logger.Warn("provider failed, trying next candidate",
			zap.String("request_id", req.ID),
			zap.String("provider", string(provider)),
			zap.Error(err))
	}

	return nil, s.exhausted(req, attempted, gateErr, lastErr)
}

func (s *Service) invoke(ctx context.Context, adapter providers.Adapter, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	if req.IsChat() {
		resp, err := adapter.ChatCompletion(ctx, req.Messages, req.Options)
		if err != nil {
			return nil, err
		}
		resp.RequestID = req.ID
		return resp, nil
	}
	return adapter.GenerateText(ctx, req)
}

// gate applies circuit breaker then rate limiter. Rejections are not
// attempts: they consume no retry budget and are reported as such.
func (s *Service) gate(provider models.Provider, callerKey string) *providers.ServiceError {
	if !s.breakers.Allow(provider) {
		return providers.NewServiceError(providers.CodeCircuitOpen, provider,
			"circuit breaker is open", false, nil)
	}
	if !s.limiter.Allow(provider, callerKey) {
		// Hand back the half-open trial slot the breaker just granted.
		s.breakers.ReleaseTrial(provider)
		return providers.NewServiceError(providers.CodeRateLimitExceeded, provider,
			"local rate limit exceeded", false, nil)
	}
	return nil
}

// candidateOrder builds the provider order: the caller's preference first,
// then the configured priority list filtered to healthy providers. Image
// requests route only to the image provider.
func (s *Service) candidateOrder(req *models.GenerationRequest, cfg Config) []models.Provider {
	if req.Type == models.TypeImage {
		if s.registry.Has(models.ProviderStability) {
			return []models.Provider{models.ProviderStability}
		}
		return nil
	}

	seen := make(map[models.Provider]bool)
	order := make([]models.Provider, 0, len(cfg.FallbackOrder)+1)

	// The image provider never serves text, preferred or not.
	if preferred := req.Options.Provider; preferred != "" && preferred != models.ProviderStability && s.registry.Has(preferred) {
		order = append(order, preferred)
		seen[preferred] = true
	}

	for _, provider := range cfg.FallbackOrder {
		if seen[provider] || !s.registry.Has(provider) {
			continue
		}
		if provider == models.ProviderStability {
			continue
		}
		if !s.health.IsHealthy(provider) {
			continue
		}
		order = append(order, provider)
		seen[provider] = true
	}
	return order
}

// exhausted builds the terminal error once every candidate was gated or
// failed.
func (s *Service) exhausted(req *models.GenerationRequest, attempted bool, gateErr, lastErr error) error {
	if !attempted && gateErr != nil {
		// Nothing was even tried: surface the gating rejection directly so
		// the caller can back off instead of treating it as a failure.
		rejections := multierr.Errors(gateErr)
		return providers.AsServiceError(rejections[len(rejections)-1], "")
	}

	svcErr := providers.NewServiceError(providers.CodeAllProvidersFailed, "",
		"all providers failed for request", false, lastErr)
	if lastErr != nil {
		if last := providers.AsServiceError(lastErr, ""); last.Provider != "" {
			svcErr.Provider = last.Provider
		}
	}
	if gateErr != nil {
		svcErr.WithDetail("gated", gateErr.Error())
	}
	svcErr.WithDetail("request_id", req.ID)
	s.logger.Error("all providers exhausted",
		zap.String("request_id", req.ID),
		zap.Error(lastErr))
	return svcErr
}

func (s *Service) currentConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func validateRequest(req *models.GenerationRequest) error {
	if req == nil {
		return providers.NewServiceError(providers.CodeInvalidRequest, "", "request cannot be nil", false, nil)
	}
	if !req.IsChat() && strings.TrimSpace(req.Prompt) == "" {
		return providers.NewServiceError(providers.CodeInvalidRequest, "", "prompt cannot be empty", false, nil)
	}
	return nil
}
