// Package local provides an offline fallback adapter. It never touches the
// network, so it sits last in the fallback order and keeps the editor usable
// when every remote provider is down.
package local

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/providers"
)

const modelName = "spectreweave-offline"

// Adapter is a deterministic in-process text provider.
type Adapter struct{}

// New creates the offline adapter.
func New() *Adapter {
	return &Adapter{}
}

// Name returns the provider identity.
func (a *Adapter) Name() models.Provider {
	return models.ProviderLocal
}

// GenerateText produces a canned continuation for the prompt.
func (a *Adapter) GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "prompt cannot be empty", false, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, providers.NewTimeoutError(a.Name(), err)
	}

	content := offlineContent(req.Prompt)
	resp := models.NewGenerationResponse(req.ID, a.Name(), modelName, content)
	resp.Usage = models.TokenUsage{
		PromptTokens:     estimateTokens(req.Prompt),
		CompletionTokens: estimateTokens(content),
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	return resp, nil
}

// ChatCompletion answers from the last user message.
func (a *Adapter) ChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error) {
	if len(messages) == 0 {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "message list cannot be empty", false, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, providers.NewTimeoutError(a.Name(), err)
	}

	last := messages[len(messages)-1].Content
	content := offlineContent(last)
	resp := models.NewGenerationResponse("", a.Name(), modelName, content)
	resp.Usage = models.TokenUsage{
		PromptTokens:     estimateTokens(last),
		CompletionTokens: estimateTokens(content),
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	return resp, nil
}

// StreamText yields the offline content as a single chunk.
func (a *Adapter) StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Prompt) == "" && len(req.Messages) == 0 {
		return nil, providers.NewServiceError(providers.CodeInvalidRequest, a.Name(), "prompt cannot be empty", false, nil)
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	return io.NopCloser(strings.NewReader(offlineContent(prompt))), nil
}

// Probe always succeeds; the adapter has no dependency to reach.
func (a *Adapter) Probe(ctx context.Context) error {
	return ctx.Err()
}

func offlineContent(prompt string) string {
	return fmt.Sprintf("[offline draft] Unable to reach a writing assistant right now. Your prompt was saved: %q. Keep writing and regenerate once a provider is back online.", truncate(prompt, 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func estimateTokens(s string) int {
	// 4 chars per token average
	return len(s) / 4
}
