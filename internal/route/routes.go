package route

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"detectionserver/internal/config"
	"detectionserver/internal/handler"
	"detectionserver/internal/logger"
	"detectionserver/internal/metrics"
	"detectionserver/internal/middleware"
	"detectionserver/internal/service"
)

// SetupRoutes registers the API, dashboard, metrics and log endpoints and
// wraps the router with request ids, access logging, panic recovery and CORS.
// m may be nil, in which case /metrics is not registered.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, ingestor *service.Ingestor,
	querier *service.Querier, m *metrics.Metrics) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(m))
	middleware.InstrumentUnmatched(r, m)

	// API endpoints
	r.HandleFunc("/detections", handler.IngestDetectionsHandler(ingestor, logger, cfg.MaxBodyBytes)).Methods(http.MethodPost)
	r.HandleFunc("/detections", handler.ListDetectionsHandler(querier, logger, cfg.DefaultQueryLimit)).Methods(http.MethodGet)
	r.HandleFunc("/stats", handler.StatsHandler(querier, logger, cfg.StatsDefaultMinutes)).Methods(http.MethodGet)
	r.HandleFunc("/health", handler.HealthHandler(logger)).Methods(http.MethodGet)

	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	// Log endpoints
	r.HandleFunc("/logs/{level}", handler.ShowLogsHandler(logger)).Methods(http.MethodGet)
	r.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(logger)).Methods(http.MethodPost)

	// Dashboard
	r.HandleFunc("/", handler.DashboardHandler()).Methods(http.MethodGet)

	var h http.Handler = r
	h = middleware.RequestID(h)
	h = handlers.LoggingHandler(logger.Writer(), h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true), handlers.RecoveryLogger(recoveryLogger{logger}))(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)(h)
	return h
}

// recoveryLogger adapts the leveled logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *logger.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Recovered from panic: %v", fmt.Sprint(v...))
}
