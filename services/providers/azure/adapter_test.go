package azure

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(baseURL string) *Adapter {
	return New(Config{
		AdapterConfig: providers.AdapterConfig{
			APIKey:  "test-key",
			BaseURL: baseURL,
			Model:   "gpt-4o",
			Timeout: 2 * time.Second,
		},
	})
}

func completionBody(content string, totalTokens int) string {
	body := map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-4o",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     totalTokens / 2,
			"completion_tokens": totalTokens - totalTokens/2,
			"total_tokens":      totalTokens,
		},
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func TestGenerateText(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(completionBody("Hello from Azure", 42)))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	req := models.NewGenerationRequest(models.TypeGeneration, "say hello", models.GenerationOptions{
		MaxTokens:   100,
		Temperature: 0.7,
	})

	resp, err := adapter.GenerateText(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-15-preview", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, float64(100), gotPayload["max_tokens"])

	assert.Equal(t, "Hello from Azure", resp.Content)
	assert.Equal(t, models.ProviderAzure, resp.Provider)
	assert.Equal(t, req.ID, resp.RequestID)
	assert.True(t, resp.Success)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
	assert.Positive(t, resp.Usage.Latency)
}

func TestGenerateTextEmptyPrompt(t *testing.T) {
	adapter := newTestAdapter("http://unused")

	_, err := adapter.GenerateText(context.Background(),
		models.NewGenerationRequest(models.TypeGeneration, "  ", models.GenerationOptions{}))

	assert.Equal(t, providers.CodeInvalidRequest, providers.ErrorCodeOf(err))
}

func TestMissingAPIKey(t *testing.T) {
	adapter := New(Config{AdapterConfig: providers.AdapterConfig{BaseURL: "http://unused"}})

	_, err := adapter.GenerateText(context.Background(),
		models.NewGenerationRequest(models.TypeGeneration, "hello", models.GenerationOptions{}))

	assert.Equal(t, providers.CodeConfigMissing, providers.ErrorCodeOf(err))
	assert.False(t, providers.IsRetryable(err))
}

func TestServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	_, err := adapter.GenerateText(context.Background(),
		models.NewGenerationRequest(models.TypeGeneration, "hello", models.GenerationOptions{}))

	require.Error(t, err)
	assert.True(t, providers.IsRetryable(err))
	assert.Equal(t, providers.CodeProviderError, providers.ErrorCodeOf(err))
}

func TestRateLimitedIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	_, err := adapter.GenerateText(context.Background(),
		models.NewGenerationRequest(models.TypeGeneration, "hello", models.GenerationOptions{}))

	assert.True(t, providers.IsRetryable(err))
}

func TestBadRequestIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "content filtered", http.StatusBadRequest)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	_, err := adapter.GenerateText(context.Background(),
		models.NewGenerationRequest(models.TypeGeneration, "hello", models.GenerationOptions{}))

	assert.False(t, providers.IsRetryable(err))
}

func TestTimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(completionBody("late", 1)))
	}))
	defer server.Close()

	adapter := New(Config{
		AdapterConfig: providers.AdapterConfig{
			APIKey:  "test-key",
			BaseURL: server.URL,
			Timeout: 50 * time.Millisecond,
		},
	})

	_, err := adapter.GenerateText(context.Background(),
		models.NewGenerationRequest(models.TypeGeneration, "hello", models.GenerationOptions{}))

	require.Error(t, err)
	assert.Equal(t, providers.CodeTimeout, providers.ErrorCodeOf(err))
	assert.True(t, providers.IsRetryable(err))
}

func TestChatCompletion(t *testing.T) {
	var gotPayload struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(completionBody("Hi there", 10)))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	messages := []models.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}

	resp, err := adapter.ChatCompletion(context.Background(), messages, models.GenerationOptions{})
	require.NoError(t, err)

	assert.Equal(t, messages, gotPayload.Messages)
	assert.Equal(t, "Hi there", resp.Content)
}

func TestChatCompletionEmptyMessages(t *testing.T) {
	adapter := newTestAdapter("http://unused")

	_, err := adapter.ChatCompletion(context.Background(), nil, models.GenerationOptions{})
	assert.Equal(t, providers.CodeInvalidRequest, providers.ErrorCodeOf(err))
}

func TestStreamText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		assert.Equal(t, true, payload["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: [DONE]`,
		}
		for _, c := range chunks {
			_, _ = w.Write([]byte(c + "\n\n"))
		}
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	req := models.NewGenerationRequest(models.TypeGeneration, "say hello", models.GenerationOptions{Stream: true})

	stream, err := adapter.StreamText(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close()

	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(out))
}

func TestProbeSendsMinimalRequest(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(completionBody("pong", 2)))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	require.NoError(t, adapter.Probe(context.Background()))
	assert.Equal(t, float64(1), gotPayload["max_tokens"])
}
