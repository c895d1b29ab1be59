package providers

import (
	"context"
	"io"
	"time"

	"github.com/spectreweave/orchestrator/models"
)

// Adapter is the uniform interface to one external AI vendor. Adapters are
// stateless with respect to the orchestrator's data model: they translate
// vendor-specific request/response shapes into the common envelope and raise
// a typed *ServiceError on failure. Each invocation performs exactly one
// network call (streaming setup opens the stream and nothing else).
type Adapter interface {
	// Name returns the provider identity (e.g., "gemini", "azure")
	Name() models.Provider

	// GenerateText performs a single text generation request
	GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error)

	// ChatCompletion performs a chat completion over a role-tagged message list
	ChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error)

	// StreamText opens a live text stream for the request. The returned
	// reader yields content chunks; closing it abandons the stream.
	StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error)

	// Probe issues a minimal low-cost request to check vendor reachability
	Probe(ctx context.Context) error
}

// AdapterConfig holds common configuration for adapters.
type AdapterConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model is the default model when the request does not name one
	Model string

	// Timeout bounds every network call
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// DefaultAdapterConfig returns a sensible default configuration.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}
