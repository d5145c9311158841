package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/config"
	"github.com/aristath/fundalloc/internal/database"
	"github.com/aristath/fundalloc/internal/modules/cleanup"
	"github.com/aristath/fundalloc/internal/reliability"
	"github.com/aristath/fundalloc/internal/scheduler"
)

// Schedules of the fixed maintenance jobs (cron with seconds)
const (
	walCheckpointSchedule = "0 15 * * * *" // hourly
	maintenanceSchedule   = "0 0 4 * * 0"  // Sundays 04:00
)

// RegisterJobs registers the background jobs with the container's scheduler.
// The scheduler is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.Scheduler == nil {
		return fmt.Errorf("container scheduler cannot be nil")
	}
	sched := container.Scheduler

	historyCleanup := cleanup.NewHistoryCleanupJob(container.RunRepo, cfg.HistoryRetentionDays, log)
	if err := sched.AddJob(cfg.HistoryCleanupSchedule, historyCleanup); err != nil {
		return fmt.Errorf("failed to register history cleanup job: %w", err)
	}

	walCheckpoints := scheduler.NewCheckWALCheckpointsJob(log, container.Databases()...)
	if err := sched.AddJob(walCheckpointSchedule, walCheckpoints); err != nil {
		return fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}

	// Only history.db accumulates deletes worth reclaiming
	maintenance := reliability.NewMaintenanceJob(
		container.Databases(),
		[]*database.DB{container.HistoryDB},
		cfg.DataDir,
		log,
	)
	if err := sched.AddJob(maintenanceSchedule, maintenance); err != nil {
		return fmt.Errorf("failed to register maintenance job: %w", err)
	}

	if container.BackupService != nil {
		backup := reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(cfg.Backup.Schedule, backup); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	log.Info().Int("jobs", len(sched.Jobs())).Msg("Jobs registered")
	return nil
}
