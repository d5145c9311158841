// Package main is the entry point for fundalloc, the deposit-plan allocation
// service. It keeps deposit-plan workspaces, proxies allocation requests to the
// external allocation backend and records every run.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/fundalloc/internal/config"
	"github.com/aristath/fundalloc/internal/di"
	"github.com/aristath/fundalloc/internal/server"
	"github.com/aristath/fundalloc/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// getEnv returns the environment variable or fallback when unset or empty
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	version := getEnv("VERSION", "dev")
	log.Info().
		Str("version", version).
		Str("backend_api", cfg.BackendAPI).
		Str("data_dir", cfg.DataDir).
		Msg("Starting fundalloc")

	container, err := di.Wire(cfg, version, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Version:   version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

	// Closing the bus ends open SSE and WebSocket streams so Shutdown can drain
	container.EventBus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	cancel()

	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close cleanly")
		exitCode = 1
	}

	log.Info().Msg("Server stopped")
	os.Exit(exitCode)
}
