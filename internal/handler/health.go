package handler

import (
	"net/http"

	"detectionserver/internal/dto"
	"detectionserver/internal/logger"
)

// HealthHandler always answers {"ok": true}.
func HealthHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, dto.HealthData{OK: true})
	}
}
