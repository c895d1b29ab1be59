package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/utils"
	"go.uber.org/zap"
)

// ChatCompletionRequest is the wire shape for POST /api/v1/chat/completions.
type ChatCompletionRequest struct {
	Messages    []models.ChatMessage `json:"messages" validate:"required,min=1,dive"`
	MaxTokens   int                  `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature float64              `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Stop        []string             `json:"stop,omitempty"`
	Provider    string               `json:"provider,omitempty"`
	Model       string               `json:"model,omitempty"`
}

// ChatHandler handles chat completion requests.
type ChatHandler struct {
	service Orchestrator
	logger  *zap.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(service Orchestrator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

// HandleChatCompletion handles POST /api/v1/chat/completions
func (h *ChatHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var body ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = utils.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if err := validate.Struct(&body); err != nil {
		_ = utils.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.service.GetChatCompletion(r.Context(), body.Messages, models.GenerationOptions{
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		Stop:        body.Stop,
		Provider:    models.Provider(body.Provider),
		Model:       body.Model,
	})
	if err != nil {
		h.logger.Warn("chat completion failed", zap.Error(err))
		_ = utils.WriteServiceError(w, err)
		return
	}
	_ = utils.WriteOK(w, resp)
}
