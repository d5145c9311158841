package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Initialize services
// 4. Register jobs
//
// The scheduler is registered but not started; the caller starts it.
func Wire(cfg *config.Config, version string, log zerolog.Logger) (*Container, error) {
	container := &Container{log: log.With().Str("component", "container").Logger()}

	if err := InitializeDatabases(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, version, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}
