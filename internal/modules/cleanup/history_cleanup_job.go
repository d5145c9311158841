// Package cleanup provides data cleanup and maintenance functionality.
package cleanup

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RunPruner deletes allocation runs older than a cutoff
type RunPruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// HistoryCleanupJob removes allocation history past the retention window
// Runs daily on HISTORY_CLEANUP_SCHEDULE
type HistoryCleanupJob struct {
	runs      RunPruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewHistoryCleanupJob creates a new history cleanup job keeping retentionDays of history
func NewHistoryCleanupJob(runs RunPruner, retentionDays int, log zerolog.Logger) *HistoryCleanupJob {
	return &HistoryCleanupJob{
		runs:      runs,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		log:       log.With().Str("job", "history_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *HistoryCleanupJob) Name() string {
	return "history_cleanup"
}

// Run executes the cleanup job
func (j *HistoryCleanupJob) Run() error {
	if j.retention <= 0 {
		return fmt.Errorf("history retention must be positive, got %s", j.retention)
	}

	cutoff := j.now().Add(-j.retention)
	j.log.Info().Time("cutoff", cutoff).Msg("Starting history cleanup job")

	deleted, err := j.runs.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up allocation history: %w", err)
	}

	if deleted == 0 {
		j.log.Info().Msg("No allocation runs to clean up")
		return nil
	}

	j.log.Info().Int64("deleted", deleted).Msg("History cleanup completed")
	return nil
}
