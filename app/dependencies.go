package app

import (
	"go.uber.org/zap"

	"github.com/spectreweave/orchestrator/config"
	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/breaker"
	"github.com/spectreweave/orchestrator/services/cache"
	"github.com/spectreweave/orchestrator/services/health"
	"github.com/spectreweave/orchestrator/services/orchestrator"
	"github.com/spectreweave/orchestrator/services/providers"
	"github.com/spectreweave/orchestrator/services/providers/azure"
	"github.com/spectreweave/orchestrator/services/providers/databricks"
	"github.com/spectreweave/orchestrator/services/providers/gemini"
	"github.com/spectreweave/orchestrator/services/providers/local"
	"github.com/spectreweave/orchestrator/services/providers/stability"
	"github.com/spectreweave/orchestrator/services/ratelimit"
	"github.com/spectreweave/orchestrator/services/retry"
	"github.com/spectreweave/orchestrator/services/usage"
)

// Dependencies holds every service the gateway needs, wired once at startup.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *providers.Registry
	Limiter  *ratelimit.Service
	Breakers *breaker.Service
	Cache    *cache.Service
	Usage    *usage.Tracker
	Health   *health.Monitor

	Orchestrator *orchestrator.Service

	sweeperStop chan struct{}
}

// NewDependencies builds the full service graph from configuration. Providers
// without credentials are left unregistered; the fallback loop simply skips
// them.
func NewDependencies(cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	registry := providers.NewRegistry()
	registerAdapters(registry, cfg, logger)

	limiter := ratelimit.NewService(ratelimit.Config{
		Window:       cfg.RateLimit.Window,
		Limits:       cfg.RateLimit.Limits,
		DefaultLimit: cfg.RateLimit.DefaultLimit,
	}, logger)

	breakers := breaker.NewService(breakerConfig(cfg), logger)

	responseCache := cache.NewService(cache.Config{
		MaxSize:    cfg.Cache.MaxSize,
		TTLs:       cfg.Cache.TTLs,
		DefaultTTL: cfg.Cache.DefaultTTL,
	}, logger)

	tracker := usage.NewTracker(usage.CostTable(cfg.Costs))

	monitor := health.NewMonitor(health.Config{
		Interval:           cfg.Health.Interval,
		ProbeTimeout:       cfg.Health.ProbeTimeout,
		UnhealthyThreshold: cfg.Health.UnhealthyThreshold,
		Skip:               []models.Provider{models.ProviderStability},
	}, registry, breakers, logger)

	orch := orchestrator.NewService(orchestrator.Config{
		FallbackOrder: cfg.Resilience.FallbackOrder,
		Retry: retry.Policy{
			MaxRetries: cfg.Resilience.MaxRetries,
			BaseDelay:  cfg.Resilience.BaseDelay,
			Multiplier: cfg.Resilience.BackoffMultiplier,
			MaxDelay:   cfg.Resilience.MaxDelay,
		},
		RequestTimeout: cfg.Resilience.RequestTimeout,
	}, registry, limiter, breakers, responseCache, tracker, monitor, logger)

	return &Dependencies{
		Config:       cfg,
		Logger:       logger,
		Registry:     registry,
		Limiter:      limiter,
		Breakers:     breakers,
		Cache:        responseCache,
		Usage:        tracker,
		Health:       monitor,
		Orchestrator: orch,
		sweeperStop:  make(chan struct{}),
	}, nil
}

// Start launches the background loops: health probing and cache expiry.
func (d *Dependencies) Start() {
	d.Health.Start()
	go d.Cache.StartSweeper(d.Config.Cache.SweepInterval, d.sweeperStop)
}

// Stop shuts the background loops down and flushes the logger.
func (d *Dependencies) Stop() {
	d.Health.Stop()
	close(d.sweeperStop)
	_ = d.Logger.Sync()
}

func registerAdapters(registry *providers.Registry, cfg *config.Config, logger *zap.Logger) {
	if cfg.Providers.Gemini.APIKey != "" {
		_ = registry.Register(gemini.New(providers.AdapterConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			BaseURL: cfg.Providers.Gemini.BaseURL,
			Model:   cfg.Providers.Gemini.Model,
			Timeout: cfg.Providers.Gemini.Timeout,
		}))
	}
	if cfg.Providers.Azure.APIKey != "" {
		_ = registry.Register(azure.New(azure.Config{
			AdapterConfig: providers.AdapterConfig{
				APIKey:  cfg.Providers.Azure.APIKey,
				BaseURL: cfg.Providers.Azure.BaseURL,
				Model:   cfg.Providers.Azure.Model,
				Timeout: cfg.Providers.Azure.Timeout,
			},
			APIVersion: cfg.Providers.Azure.APIVersion,
		}))
	}
	if cfg.Providers.Databricks.APIKey != "" {
		_ = registry.Register(databricks.New(providers.AdapterConfig{
			APIKey:  cfg.Providers.Databricks.APIKey,
			BaseURL: cfg.Providers.Databricks.BaseURL,
			Model:   cfg.Providers.Databricks.Model,
			Timeout: cfg.Providers.Databricks.Timeout,
		}))
	}
	if cfg.Providers.Stability.APIKey != "" {
		_ = registry.Register(stability.New(providers.AdapterConfig{
			APIKey:  cfg.Providers.Stability.APIKey,
			BaseURL: cfg.Providers.Stability.BaseURL,
			Model:   cfg.Providers.Stability.Model,
			Timeout: cfg.Providers.Stability.Timeout,
		}))
	}
	if cfg.Providers.LocalEnabled {
		_ = registry.Register(local.New())
	}

	logger.Info("providers registered", zap.Int("count", registry.Count()))
}

func breakerConfig(cfg *config.Config) breaker.Config {
	out := breaker.Config{
		Defaults: breaker.Settings{
			FailureThreshold: cfg.Breaker.Defaults.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.Defaults.RecoveryTimeout,
		},
		Settings: make(map[models.Provider]breaker.Settings, len(cfg.Breaker.Overrides)),
	}
	for provider, settings := range cfg.Breaker.Overrides {
		out.Settings[provider] = breaker.Settings{
			FailureThreshold: settings.FailureThreshold,
			RecoveryTimeout:  settings.RecoveryTimeout,
		}
	}
	return out
}
