package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"detectionserver/internal/config"
	"detectionserver/internal/logger"
	"detectionserver/internal/metrics"
	"detectionserver/internal/repository"
	"detectionserver/internal/route"
	"detectionserver/internal/service"
)

type App struct {
	config  *config.Config
	logger  *logger.Logger
	repo    repository.DetectionRepository
	metrics *metrics.Metrics
	server  *http.Server
}

// New opens the store and builds the HTTP server. The caller owns logger.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*App, error) {
	repo, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open detection store: %w", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		if m, err = metrics.New(); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	ingestor := service.NewIngestor(repo, logger, m)
	querier := service.NewQuerier(repo)

	return &App{
		config:  cfg,
		logger:  logger,
		repo:    repo,
		metrics: m,
		server: &http.Server{
			Addr:    cfg.Addr(),
			Handler: route.SetupRoutes(cfg, logger, ingestor, querier, m),
		},
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run listens on the configured address until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then drains
// in-flight requests within the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info("Detection server listening on http://%s", ln.Addr())
	a.logger.Info("Database: %s", redact(a.config.DatabaseURL))

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down, waiting up to %s for in-flight requests", a.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.repo.Close()
}

// redact hides the password of a connection URL.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
