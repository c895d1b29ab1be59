package databricks

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

const defaultEndpoint = "databricks-meta-llama-3-70b-instruct"

// Adapter implements providers.Adapter for Databricks model serving
// endpoints speaking the OpenAI-compatible chat format.
type Adapter struct {
	config     providers.AdapterConfig
	httpClient *http.Client
}

// New creates a Databricks adapter. BaseURL is the workspace URL and Model
// names the serving endpoint.
func New(cfg providers.AdapterConfig) *Adapter {
	if cfg.Model == "" {
		cfg.Model = defaultEndpoint
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
	return models.ProviderDatabricks
}

// GenerateText wraps the prompt as a single user message.
func (a *Adapter) GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "prompt cannot be empty", false, nil)
	}
	resp, err := a.invoke(ctx, []models.ChatMessage{{Role: "user", Content: req.Prompt}}, req.Options)
	if err != nil {
		return nil, err
	}
	resp.RequestID = req.ID
	return resp, nil
}

// ChatCompletion performs a chat completion against the serving endpoint.
func (a *Adapter) ChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	if len(messages) == 0 {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "message list cannot be empty", false, nil)
	}
	return a.invoke(ctx, messages, opts)
}

// StreamText opens an OpenAI-style SSE stream from the serving endpoint.
func (a *Adapter) StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewServiceError(providers.CodeConfigMissing, a.Name(), "databricks token not configured", false, nil)
	}

	msgs := req.Messages
	if len(msgs) == 0 {
		msgs = []models.ChatMessage{{Role: "user", Content: req.Prompt}}
	}
	payload := a.buildPayload(msgs, req.Options)
	payload["stream"] = true

	httpReq, err := a.newRequest(ctx, req.Options)
	if err != nil {
		return nil, err
	}

	body, err := providers.OpenStream(ctx, a.httpClient, a.Name(), httpReq, payload)
	if err != nil {
		return nil, err
	}
	return providers.SSETextStream(body, extractStreamDelta), nil
}

// Probe requests a single token.
func (a *Adapter) Probe(ctx context.Context) error {
	_, err := a.invoke(ctx, []models.ChatMessage{{Role: "user", Content: "ping"}}, models.GenerationOptions{MaxTokens: 1})
	return err
}

func (a *Adapter) invoke(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewServiceError(providers.CodeConfigMissing, a.Name(), "databricks token not configured", false, nil)
	}

	started := time.Now()
	httpReq, err := a.newRequest(ctx, opts)
	if err != nil {
		return nil, err
	}

	body, err := providers.DoJSON(ctx, a.httpClient, a.Name(), httpReq, a.buildPayload(messages, opts))
	if err != nil {
		return nil, err
	}

	var parsed invocationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.NewServiceError(providers.CodeProviderError, a.Name(), "parse response", false, err)
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	resp := models.NewGenerationResponse("", a.Name(), a.endpoint(opts), content)
	resp.Usage = models.TokenUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
		Latency:          time.Since(started),
	}
	return resp, nil
}

func (a *Adapter) newRequest(ctx context.Context, opts models.GenerationOptions) (*http.Request, error) {
	url := fmt.Sprintf("%s/serving-endpoints/%s/invocations", a.config.BaseURL, a.endpoint(opts))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "build request", false, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	return req, nil
}

func (a *Adapter) buildPayload(messages []models.ChatMessage, opts models.GenerationOptions) map[string]any {
	msgs := make([]map[string]string, len(messages))
	for i, m := range messages {
		msgs[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	payload := map[string]any{"messages": msgs}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}
	if len(opts.Stop) > 0 {
		payload["stop"] = opts.Stop
	}
	return payload
}

func (a *Adapter) endpoint(opts models.GenerationOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.config.Model
}

func extractStreamDelta(data []byte) (string, bool) {
	if string(data) == "[DONE]" {
		return "", true
	}
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	done := chunk.Choices[0].FinishReason != nil && *chunk.Choices[0].FinishReason != ""
	return chunk.Choices[0].Delta.Content, done
}

// Databricks serving endpoint wire types (OpenAI-compatible)

type invocationResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
