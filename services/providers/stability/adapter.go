package stability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/providers"
)

const (
	defaultBaseURL = "https://api.stability.ai"
	defaultEngine  = "stable-diffusion-xl-1024-v1-0"
)

// Adapter implements providers.Adapter for Stability text-to-image. It only
// serves image-type requests; chat and streaming are not supported.
type Adapter struct {
	config     providers.AdapterConfig
	httpClient *http.Client
}

// New creates a Stability adapter. Model names the engine.
func New(cfg providers.AdapterConfig) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultEngine
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identity.
func (a *Adapter) Name() models.Provider {
	return models.ProviderStability
}

// GenerateText renders the prompt to an image. Content holds the first
// artifact as base64 PNG data.
func (a *Adapter) GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewServiceError(providers.CodeConfigMissing, a.Name(), "stability api key not configured", false, nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "prompt cannot be empty", false, nil)
	}

	started := time.Now()
	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", a.config.BaseURL, a.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "build request", false, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	payload := map[string]any{
		"text_prompts": []map[string]any{{"text": req.Prompt}},
		"samples":      1,
	}

	body, err := providers.DoJSON(ctx, a.httpClient, a.Name(), httpReq, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Artifacts []struct {
			Base64       string `json:"base64"`
			FinishReason string `json:"finishReason"`
		} `json:"artifacts"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.NewServiceError(providers.CodeProviderError, a.Name(), "parse response", false, err)
	}
	if len(parsed.Artifacts) == 0 {
		return nil, providers.NewServiceError(providers.CodeProviderError, a.Name(), "no artifacts returned", false, nil)
	}

	resp := models.NewGenerationResponse(req.ID, a.Name(), a.config.Model, parsed.Artifacts[0].Base64)
	resp.Usage.Latency = time.Since(started)
	return resp, nil
}

// ChatCompletion is not supported by the image provider.
func (a *Adapter) ChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "chat completion not supported by image provider", false, nil)
}

// StreamText is not supported by the image provider.
func (a *Adapter) StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error) {
	return nil, providers.NewServiceError(providers.CodeStreamingUnsupported, a.Name(), "streaming not supported by image provider", false, nil)
}

// Probe is a cheap engine listing instead of a paid generation.
func (a *Adapter) Probe(ctx context.Context) error {
	if a.config.APIKey == "" {
		return providers.NewServiceError(providers.CodeConfigMissing, a.Name(), "stability api key not configured", false, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/v1/engines/list", nil)
	if err != nil {
		return providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "build request", false, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	_, err = providers.DoJSON(ctx, a.httpClient, a.Name(), req, nil)
	return err
}
