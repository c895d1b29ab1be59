package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/spectreweave/orchestrator/middleware"
	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/utils"
	"go.uber.org/zap"
)

var validate = validator.New()

// Orchestrator defines the generation operations the handlers consume.
type Orchestrator interface {
	GenerateText(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error)
	GetChatCompletion(ctx context.Context, messages []models.ChatMessage, opts models.GenerationOptions) (*models.GenerationResponse, error)
	StreamText(ctx context.Context, req *models.GenerationRequest) (io.ReadCloser, error)
}

// GenerateRequest is the wire shape for POST /api/v1/generate.
type GenerateRequest struct {
	Type        string                 `json:"type,omitempty" validate:"omitempty,oneof=generation completion feedback suggestion analysis image"`
	Prompt      string                 `json:"prompt" validate:"required"`
	Context     *models.RequestContext `json:"context,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature float64                `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Stop        []string               `json:"stop,omitempty"`
	Provider    string                 `json:"provider,omitempty"` // Optional: preferred provider
	Model       string                 `json:"model,omitempty"`
}

// GenerateHandler handles text and image generation requests.
type GenerateHandler struct {
	service Orchestrator
	logger  *zap.Logger
}

// NewGenerateHandler creates a GenerateHandler.
func NewGenerateHandler(service Orchestrator, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{service: service, logger: logger}
}

// HandleGenerate handles POST /api/v1/generate
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.service.GenerateText(r.Context(), req)
	if err != nil {
		h.logger.Warn("generation failed",
			zap.String("request_id", req.ID),
			zap.Error(err))
		_ = utils.WriteServiceError(w, err)
		return
	}
	_ = utils.WriteOK(w, resp)
}

// HandleStream handles POST /api/v1/generate/stream with a chunked plain
// text body.
func (h *GenerateHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	req.Options.Stream = true

	stream, err := h.service.StreamText(r.Context(), req)
	if err != nil {
		h.logger.Warn("stream open failed",
			zap.String("request_id", req.ID),
			zap.Error(err))
		_ = utils.WriteServiceError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func (h *GenerateHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*models.GenerationRequest, bool) {
	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = utils.WriteBadRequest(w, "invalid JSON body")
		return nil, false
	}
	if err := validate.Struct(&body); err != nil {
		_ = utils.WriteBadRequest(w, err.Error())
		return nil, false
	}

	reqType := models.TypeGeneration
	if body.Type != "" {
		reqType = models.RequestType(body.Type)
	}

	req := models.NewGenerationRequest(reqType, body.Prompt, models.GenerationOptions{
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		Stop:        body.Stop,
		Provider:    models.Provider(body.Provider),
		Model:       body.Model,
	})
	req.Context = body.Context
	req.CallerKey = middleware.GetCallerKeyFromContext(r.Context())
	return req, true
}
