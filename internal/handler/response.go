package handler

import (
	"encoding/json"
	"net/http"

	"detectionserver/internal/dto"
	"detectionserver/internal/logger"
)

// writeJSON encodes data with the given status code.
func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError sends {"error": message}.
func writeError(w http.ResponseWriter, logger *logger.Logger, status int, message string) {
	writeJSON(w, logger, status, dto.ErrorData{Error: message})
}
