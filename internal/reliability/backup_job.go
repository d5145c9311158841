package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// backupTimeout bounds one backup run, upload included
const backupTimeout = 30 * time.Minute

// BackupJob uploads a fresh backup and rotates old ones
type BackupJob struct {
	service       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "database_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "database_backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
		return fmt.Errorf("backup uploaded but rotation failed: %w", err)
	}
	return nil
}
