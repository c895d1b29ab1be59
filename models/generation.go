package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies an external AI vendor. Used as a map key throughout
// the orchestrator; values are fixed at startup.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderAzure      Provider = "azure"
	ProviderDatabricks Provider = "databricks"
	ProviderStability  Provider = "stability" // image generation only
	ProviderLocal      Provider = "local"     // offline fallback
)

// AllProviders lists every known provider identity.
func AllProviders() []Provider {
	return []Provider{ProviderGemini, ProviderAzure, ProviderDatabricks, ProviderStability, ProviderLocal}
}

// RequestType categorizes a generation request. The response cache keys its
// TTL table off this value.
type RequestType string

const (
	TypeGeneration RequestType = "generation"
	TypeCompletion RequestType = "completion"
	TypeFeedback   RequestType = "feedback"
	TypeSuggestion RequestType = "suggestion"
	TypeAnalysis   RequestType = "analysis"
	TypeImage      RequestType = "image"
)

// ChatMessage is a single role-tagged message in a chat conversation.
type ChatMessage struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role" validate:"required,oneof=system user assistant"`

	// Content is the message text
	Content string `json:"content" validate:"required"`
}

// RequestContext carries optional writing context supplied by the caller.
// It never participates in cache fingerprinting.
type RequestContext struct {
	SelectedText     string   `json:"selected_text,omitempty"`
	DocumentContent  string   `json:"document_content,omitempty"`
	Genre            string   `json:"genre,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	AuthorStyles     []string `json:"author_styles,omitempty"`
	PriorGenerations []string `json:"prior_generations,omitempty"`
}

// GenerationOptions holds the caller-tunable generation parameters.
type GenerationOptions struct {
	// MaxTokens limits the response length; provider defaults apply when 0
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// Stop sequences terminate generation early
	Stop []string `json:"stop,omitempty"`

	// Stream requests a live token stream instead of a full response
	Stream bool `json:"stream,omitempty"`

	// Provider is the caller's preferred provider; the orchestrator may
	// fall back to others when it is unavailable
	Provider Provider `json:"provider,omitempty"`

	// Model overrides the provider's configured default model
	Model string `json:"model,omitempty"`
}

// GenerationRequest is one caller invocation. Immutable once dispatched.
type GenerationRequest struct {
	ID        string            `json:"id"`
	Type      RequestType       `json:"type"`
	Prompt    string            `json:"prompt"`
	Messages  []ChatMessage     `json:"messages,omitempty"`
	Context   *RequestContext   `json:"context,omitempty"`
	Options   GenerationOptions `json:"options"`
	CallerKey string            `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewGenerationRequest creates a request with a generated id and timestamp.
func NewGenerationRequest(reqType RequestType, prompt string, opts GenerationOptions) *GenerationRequest {
	return &GenerationRequest{
		ID:        uuid.New().String(),
		Type:      reqType,
		Prompt:    prompt,
		Options:   opts,
		CreatedAt: time.Now(),
	}
}

// NewChatRequest creates a chat completion request from a message list.
func NewChatRequest(messages []ChatMessage, opts GenerationOptions) *GenerationRequest {
	return &GenerationRequest{
		ID:        uuid.New().String(),
		Type:      TypeCompletion,
		Messages:  messages,
		Options:   opts,
		CreatedAt: time.Now(),
	}
}

// IsChat reports whether the request carries a message list instead of a
// single prompt.
func (r *GenerationRequest) IsChat() bool {
	return len(r.Messages) > 0
}

// TokenUsage records token counts and derived cost for one attempt.
type TokenUsage struct {
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	EstimatedCost    float64       `json:"estimated_cost"`
	Latency          time.Duration `json:"latency"`
}

// ResponseMetadata carries optional quality signals alongside the content.
type ResponseMetadata struct {
	Confidence   float64  `json:"confidence,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Citations    []string `json:"citations,omitempty"`

	// Cached is true when the response was served from the response cache
	// without a network call
	Cached bool `json:"cached,omitempty"`
}

// GenerationResponse is produced exactly once per completed attempt, cached
// or live. Immutable.
type GenerationResponse struct {
	ID        string           `json:"id"`
	RequestID string           `json:"request_id"`
	Success   bool             `json:"success"`
	Content   string           `json:"content"`
	Provider  Provider         `json:"provider"`
	Model     string           `json:"model"`
	Usage     TokenUsage       `json:"usage"`
	Metadata  ResponseMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewGenerationResponse builds a successful response envelope for a request.
func NewGenerationResponse(requestID string, provider Provider, model, content string) *GenerationResponse {
	return &GenerationResponse{
		ID:        uuid.New().String(),
		RequestID: requestID,
		Success:   true,
		Content:   content,
		Provider:  provider,
		Model:     model,
		CreatedAt: time.Now(),
	}
}
