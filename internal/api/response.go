// Package api provides HTTP response utilities for ShotScope.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/RinkLab/ShotScope/internal/genai"
	"github.com/RinkLab/ShotScope/internal/models"
)

// Pre-marshaled fallback response so a marshal failure can still produce JSON.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForError maps pipeline error kinds onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyUserID),
		errors.Is(err, models.ErrInvalidFlowType),
		errors.Is(err, models.ErrNoClips),
		errors.Is(err, models.ErrTooManyClips),
		errors.Is(err, models.ErrEmptyClipPath),
		errors.Is(err, models.ErrPromptTooLong),
		errors.Is(err, models.ErrInvalidAge):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrContentRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, genai.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrConnectivity),
		errors.Is(err, models.ErrUpstream),
		errors.Is(err, models.ErrAnalysisParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
