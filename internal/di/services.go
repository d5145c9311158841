package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/clients/allocator"
	"github.com/aristath/fundalloc/internal/config"
	"github.com/aristath/fundalloc/internal/events"
	"github.com/aristath/fundalloc/internal/modules/allocation"
	"github.com/aristath/fundalloc/internal/modules/plans"
	"github.com/aristath/fundalloc/internal/reliability"
	"github.com/aristath/fundalloc/internal/scheduler"
)

// InitializeRepositories creates the repositories over the opened databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.PlannerDB == nil || container.HistoryDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.WorkspaceRepo = plans.NewRepository(container.PlannerDB.Conn(), log)
	container.RunRepo = allocation.NewRepository(container.HistoryDB.Conn(), log)
	return nil
}

// InitializeServices creates the event bus, the backend client and the services
func InitializeServices(container *Container, cfg *config.Config, version string, log zerolog.Logger) error {
	container.EventBus = events.NewBus(log)

	timeout := time.Duration(cfg.BackendTimeoutSeconds) * time.Second
	container.AllocatorClient = allocator.NewClient(cfg.BackendAPI, timeout, log)

	container.AllocationService = allocation.NewService(
		container.AllocatorClient,
		container.RunRepo,
		container.EventBus,
		log,
	)
	container.PlanService = plans.NewService(
		container.WorkspaceRepo,
		container.AllocationService,
		container.EventBus,
		log,
	)

	container.Scheduler = scheduler.New(container.EventBus, log)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.Databases(),
			store,
			cfg.DataDir,
			version,
			log,
		)
	} else {
		log.Info().Msg("Backups disabled (BACKUP_S3_BUCKET not set)")
	}

	return nil
}
