package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spectreweave/orchestrator/models"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Server      ServerConfig
	Providers   ProvidersConfig
	Resilience  ResilienceConfig
	RateLimit   RateLimitConfig
	Breaker     BreakerConfig
	Cache       CacheConfig
	Health      HealthConfig
	Costs       map[models.Provider]float64
	Environment string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ProviderConfig holds one provider's credentials and endpoint.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ProvidersConfig holds every provider's settings.
type ProvidersConfig struct {
	Gemini     ProviderConfig
	Azure      AzureConfig
	Databricks ProviderConfig
	Stability  ProviderConfig

	// LocalEnabled keeps the offline fallback registered
	LocalEnabled bool
}

// AzureConfig extends ProviderConfig with the REST API version.
type AzureConfig struct {
	ProviderConfig
	APIVersion string
}

// ResilienceConfig holds the retry and failover policy.
type ResilienceConfig struct {
	RequestTimeout    time.Duration
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	FallbackOrder     []models.Provider
}

// RateLimitConfig holds the per-provider quota table.
type RateLimitConfig struct {
	Window       time.Duration
	DefaultLimit int
	Limits       map[models.Provider]int
}

// BreakerSettings are one provider's circuit breaker thresholds.
type BreakerSettings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	Defaults  BreakerSettings
	Overrides map[models.Provider]BreakerSettings
}

// CacheConfig holds response cache sizing and TTLs.
type CacheConfig struct {
	MaxSize       int
	SweepInterval time.Duration
	DefaultTTL    time.Duration
	TTLs          map[models.RequestType]time.Duration
}

// HealthConfig holds the probe loop settings.
type HealthConfig struct {
	Interval           time.Duration
	ProbeTimeout       time.Duration
	UnhealthyThreshold int
}

// Load reads configuration from the environment (a .env file is honored when
// present) and overlays the optional YAML provider-policy file named by
// PROVIDER_POLICY_FILE.
func Load() (*Config, error) {
	// Best effort; the environment may be populated without a .env file.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Providers: ProvidersConfig{
			Gemini: ProviderConfig{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				BaseURL: os.Getenv("GEMINI_BASE_URL"),
				Model:   getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
				Timeout: getEnvDuration("GEMINI_TIMEOUT", 30*time.Second),
			},
			Azure: AzureConfig{
				ProviderConfig: ProviderConfig{
					APIKey:  os.Getenv("AZURE_OPENAI_API_KEY"),
					BaseURL: os.Getenv("AZURE_OPENAI_ENDPOINT"),
					Model:   getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
					Timeout: getEnvDuration("AZURE_TIMEOUT", 30*time.Second),
				},
				APIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
			},
			Databricks: ProviderConfig{
				APIKey:  os.Getenv("DATABRICKS_TOKEN"),
				BaseURL: os.Getenv("DATABRICKS_WORKSPACE_URL"),
				Model:   getEnv("DATABRICKS_ENDPOINT", "databricks-meta-llama-3-70b-instruct"),
				Timeout: getEnvDuration("DATABRICKS_TIMEOUT", 30*time.Second),
			},
			Stability: ProviderConfig{
				APIKey:  os.Getenv("STABILITY_API_KEY"),
				BaseURL: os.Getenv("STABILITY_BASE_URL"),
				Model:   getEnv("STABILITY_ENGINE", "stable-diffusion-xl-1024-v1-0"),
				Timeout: getEnvDuration("STABILITY_TIMEOUT", 60*time.Second),
			},
			LocalEnabled: getEnvBool("LOCAL_PROVIDER_ENABLED", true),
		},
		Resilience: ResilienceConfig{
			RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:        getEnvInt("MAX_RETRIES", 3),
			BaseDelay:         getEnvDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),
			BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2),
			FallbackOrder:     parseProviderList(getEnv("FALLBACK_ORDER", "gemini,azure,databricks,local")),
		},
		RateLimit: RateLimitConfig{
			Window:       getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			DefaultLimit: getEnvInt("RATE_LIMIT_DEFAULT", 30),
			Limits: map[models.Provider]int{
				models.ProviderGemini:     getEnvInt("RATE_LIMIT_GEMINI", 60),
				models.ProviderAzure:      getEnvInt("RATE_LIMIT_AZURE", 60),
				models.ProviderDatabricks: getEnvInt("RATE_LIMIT_DATABRICKS", 30),
				models.ProviderStability:  getEnvInt("RATE_LIMIT_STABILITY", 10),
				models.ProviderLocal:      0,
			},
		},
		Breaker: BreakerConfig{
			Defaults: BreakerSettings{
				FailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
				RecoveryTimeout:  getEnvDuration("BREAKER_RECOVERY_TIMEOUT", 60*time.Second),
			},
			Overrides: map[models.Provider]BreakerSettings{
				models.ProviderLocal: {
					FailureThreshold: getEnvInt("BREAKER_LOCAL_FAILURE_THRESHOLD", 2),
					RecoveryTimeout:  getEnvDuration("BREAKER_LOCAL_RECOVERY_TIMEOUT", 10*time.Second),
				},
			},
		},
		Cache: CacheConfig{
			MaxSize:       getEnvInt("CACHE_MAX_SIZE", 1000),
			SweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", 5*time.Minute),
			DefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", time.Hour),
			TTLs: map[models.RequestType]time.Duration{
				models.TypeFeedback:   getEnvDuration("CACHE_TTL_FEEDBACK", 2*time.Hour),
				models.TypeAnalysis:   getEnvDuration("CACHE_TTL_ANALYSIS", 2*time.Hour),
				models.TypeSuggestion: getEnvDuration("CACHE_TTL_SUGGESTION", 30*time.Minute),
			},
		},
		Health: HealthConfig{
			Interval:           getEnvDuration("HEALTH_CHECK_INTERVAL", 60*time.Second),
			ProbeTimeout:       getEnvDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),
			UnhealthyThreshold: getEnvInt("HEALTH_UNHEALTHY_THRESHOLD", 3),
		},
		Costs: map[models.Provider]float64{
			models.ProviderGemini:     getEnvFloat("COST_PER_1K_GEMINI", 0.0025),
			models.ProviderAzure:      getEnvFloat("COST_PER_1K_AZURE", 0.01),
			models.ProviderDatabricks: getEnvFloat("COST_PER_1K_DATABRICKS", 0.005),
			models.ProviderStability:  getEnvFloat("COST_PER_1K_STABILITY", 0.04),
			models.ProviderLocal:      0,
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if path := os.Getenv("PROVIDER_POLICY_FILE"); path != "" {
		if err := cfg.applyPolicyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load provider policy file: %w", err)
		}
	}

	return cfg, nil
}

// policyFile is the YAML overlay shape for per-provider policy tables.
type policyFile struct {
	FallbackOrder []string `yaml:"fallback_order"`
	RateLimits    struct {
		Window  string         `yaml:"window"`
		Default int            `yaml:"default"`
		Limits  map[string]int `yaml:"limits"`
	} `yaml:"rate_limits"`
	Breakers map[string]struct {
		FailureThreshold int    `yaml:"failure_threshold"`
		RecoveryTimeout  string `yaml:"recovery_timeout"`
	} `yaml:"breakers"`
	CostsPer1K map[string]float64 `yaml:"costs_per_1k"`
}

// applyPolicyFile overlays provider tables from a YAML file over the
// env-derived defaults.
func (c *Config) applyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if len(pf.FallbackOrder) > 0 {
		c.Resilience.FallbackOrder = parseProviderList(strings.Join(pf.FallbackOrder, ","))
	}
	if pf.RateLimits.Window != "" {
		if d, err := time.ParseDuration(pf.RateLimits.Window); err == nil {
			c.RateLimit.Window = d
		}
	}
	if pf.RateLimits.Default > 0 {
		c.RateLimit.DefaultLimit = pf.RateLimits.Default
	}
	for name, limit := range pf.RateLimits.Limits {
		c.RateLimit.Limits[models.Provider(name)] = limit
	}
	for name, settings := range pf.Breakers {
		bs := BreakerSettings{FailureThreshold: settings.FailureThreshold}
		if settings.RecoveryTimeout != "" {
			if d, err := time.ParseDuration(settings.RecoveryTimeout); err == nil {
				bs.RecoveryTimeout = d
			}
		}
		if c.Breaker.Overrides == nil {
			c.Breaker.Overrides = make(map[models.Provider]BreakerSettings)
		}
		c.Breaker.Overrides[models.Provider(name)] = bs
	}
	for name, cost := range pf.CostsPer1K {
		c.Costs[models.Provider(name)] = cost
	}
	return nil
}

func parseProviderList(raw string) []models.Provider {
	parts := strings.Split(raw, ",")
	out := make([]models.Provider, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, models.Provider(p))
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
