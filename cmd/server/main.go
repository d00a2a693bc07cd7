package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"detectionserver/internal/app"
	"detectionserver/internal/config"
	"detectionserver/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to start: %v", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		appLogger.Error("Server stopped: %v", err)
		application.Close()
		os.Exit(1)
	}
	appLogger.Info("Server stopped")
}
