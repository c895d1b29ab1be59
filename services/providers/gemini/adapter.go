package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-pro"
)

// Adapter implements providers.Adapter for the Gemini generateContent API.
type Adapter struct {
	config     providers.AdapterConfig
	httpClient *http.Client
}

// New creates a Gemini adapter.
func New(cfg providers.AdapterConfig) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identity.
func (a *Adapter) Name() models.Provider {
	return models.ProviderGemini
}

// GenerateText performs a single-turn generateContent call.
func (a *Adapter) GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "prompt cannot be empty", false, nil)
	}
	resp, err := a.generate(ctx, promptContents(req.Prompt), req.Options)
	if err != nil {
		return nil, err
	}
	resp.RequestID = req.ID
	return resp, nil
}

// ChatCompletion maps the message list onto Gemini's contents array.
// Assistant turns become the "model" role.
func (a *Adapter) ChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	if len(messages) == 0 {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "message list cannot be empty", false, nil)
	}
	return a.generate(ctx, chatContents(messages), opts)
}

// StreamText opens a streamGenerateContent SSE stream.
func (a *Adapter) StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewServiceError(providers.CodeConfigMissing, a.Name(), "gemini api key not configured", false, nil)
	}

	contents := chatContents(req.Messages)
	if len(req.Messages) == 0 {
		contents = promptContents(req.Prompt)
	}

	httpReq, err := a.newRequest(ctx, "streamGenerateContent", a.model(req.Options), "&alt=sse")
	if err != nil {
		return nil, err
	}

	body, err := providers.OpenStream(ctx, a.httpClient, a.Name(), httpReq, a.buildPayload(contents, req.Options))
	if err != nil {
		return nil, err
	}
	return providers.SSETextStream(body, extractStreamText), nil
}

// Probe requests a single token.
func (a *Adapter) Probe(ctx context.Context) error {
	_, err := a.generate(ctx, promptContents("ping"), models.GenerationOptions{MaxTokens: 1})
	return err
}

func (a *Adapter) generate(ctx context.Context, contents []content, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewServiceError(providers.CodeConfigMissing, a.Name(), "gemini api key not configured", false, nil)
	}

	started := time.Now()
	httpReq, err := a.newRequest(ctx, "generateContent", a.model(opts), "")
	if err != nil {
		return nil, err
	}

	body, err := providers.DoJSON(ctx, a.httpClient, a.Name(), httpReq, a.buildPayload(contents, opts))
	if err != nil {
		return nil, err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.NewServiceError(providers.CodeProviderError, a.Name(), "parse response", false, err)
	}

	var text strings.Builder
	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
	}

	resp := models.NewGenerationResponse("", a.Name(), a.model(opts), text.String())
	resp.Usage = models.TokenUsage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.PromptTokenCount + parsed.UsageMetadata.CandidatesTokenCount,
		Latency:          time.Since(started),
	}
	return resp, nil
}

func (a *Adapter) newRequest(ctx context.Context, method, model, extraQuery string) (*http.Request, error) {
	urlStr := fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s%s",
		a.config.BaseURL, url.PathEscape(model), method, url.QueryEscape(a.config.APIKey), extraQuery)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, nil)
	if err != nil {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "build request", false, err)
	}
	return req, nil
}

func (a *Adapter) buildPayload(contents []content, opts models.GenerationOptions) map[string]any {
	generationConfig := map[string]any{}
	if opts.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		generationConfig["temperature"] = opts.Temperature
	}
	if len(opts.Stop) > 0 {
		generationConfig["stopSequences"] = opts.Stop
	}
	return map[string]any{
		"contents":         contents,
		"generationConfig": generationConfig,
	}
}

func (a *Adapter) model(opts models.GenerationOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.config.Model
}

func promptContents(prompt string) []content {
	return []content{{
		Role:  "user",
		Parts: []part{{Text: prompt}},
	}}
}

func chatContents(messages []models.ChatMessage) []content {
	contents := make([]content, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		// Gemini has no system role; fold system turns into user context.
		if role == "system" {
			role = "user"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return contents
}

func extractStreamText(data []byte) (string, bool) {
	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false
	}
	var text strings.Builder
	done := false
	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if cand.FinishReason != "" {
			done = true
		}
	}
	return text.String(), done
}

// Gemini wire types

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
