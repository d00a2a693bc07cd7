package handler

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"detectionserver/internal/logger"
	"detectionserver/internal/middleware"
	"detectionserver/internal/service"
)

// maxStatsMinutes keeps the window representable as a time.Duration.
const maxStatsMinutes = math.MaxInt64 / int64(time.Minute)

// StatsHandler reports totals, counts per label and the recent rate over
// ?minutes (defaultMinutes when absent).
func StatsHandler(querier *service.Querier, logger *logger.Logger, defaultMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minutes := defaultMinutes
		if v := r.URL.Query().Get("minutes"); v != "" {
			m, err := strconv.ParseInt(v, 10, 64)
			if err != nil || m > maxStatsMinutes || m < -maxStatsMinutes {
				writeError(w, logger, http.StatusBadRequest, fmt.Sprintf("invalid minutes: %q", v))
				return
			}
			minutes = int(m)
		}

		stats, err := querier.Stats(r.Context(), minutes)
		if err != nil {
			logger.Error("[%s] Error computing stats: %v", middleware.RequestIDFrom(r.Context()), err)
			writeError(w, logger, http.StatusInternalServerError, service.ErrStorage.Error())
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}
