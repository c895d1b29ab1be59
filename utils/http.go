package utils

import (
	"encoding/json"
	"net/http"

	"github.com/spectreweave/orchestrator/services/providers"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error    string                 `json:"error"`
	Message  string                 `json:"message,omitempty"`
	Provider string                 `json:"provider,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// WriteServiceError maps an orchestration error to its HTTP representation.
func WriteServiceError(w http.ResponseWriter, err error) error {
	svcErr := providers.AsServiceError(err, "")
	return WriteJSON(w, statusFor(svcErr.Code), ErrorResponse{
		Error:    string(svcErr.Code),
		Message:  svcErr.Message,
		Provider: string(svcErr.Provider),
		Details:  svcErr.Details,
	})
}

func statusFor(code providers.ErrorCode) int {
	switch code {
	case providers.CodeInvalidRequest:
		return http.StatusBadRequest
	case providers.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case providers.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case providers.CodeTimeout:
		return http.StatusGatewayTimeout
	case providers.CodeAllProvidersFailed, providers.CodeProviderError:
		return http.StatusBadGateway
	case providers.CodeConfigMissing:
		return http.StatusInternalServerError
	case providers.CodeStreamingUnsupported:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
