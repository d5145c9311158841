package reliability

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/fundalloc/internal/database"
)

// Free-space thresholds for the data directory
const (
	diskCriticalBytes = 500 << 20 // below this the job fails
	diskWarningBytes  = 2 << 30
)

// MaintenanceJob checks integrity, reclaims space and watches free disk
type MaintenanceJob struct {
	databases []*database.DB
	vacuum    []*database.DB
	dataDir   string
	usage     func(path string) (*disk.UsageStat, error)
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job. Databases in vacuum are also VACUUMed.
func NewMaintenanceJob(databases, vacuum []*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		vacuum:    vacuum,
		dataDir:   dataDir,
		usage:     disk.Usage,
		log:       log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting database maintenance")
	startTime := time.Now()

	// A failed integrity check aborts the run.
	for _, db := range j.databases {
		var result string
		if err := db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", db.Name(), err)
		}
		if result != "ok" {
			j.log.Error().Str("database", db.Name()).Str("result", result).Msg("CRITICAL: Database integrity check failed")
			return fmt.Errorf("database %s is corrupt: %s", db.Name(), result)
		}
		j.log.Debug().Str("database", db.Name()).Msg("Integrity check passed")
	}

	for _, db := range j.vacuum {
		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().Dur("duration", time.Since(startTime)).Msg("Database maintenance completed")
	return nil
}

func (j *MaintenanceJob) vacuumDatabase(db *database.DB) error {
	sizeBefore, _ := pageBytes(db)

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	sizeAfter, _ := pageBytes(db)
	j.log.Info().
		Str("database", db.Name()).
		Int64("size_before_bytes", sizeBefore).
		Int64("size_after_bytes", sizeAfter).
		Int64("reclaimed_bytes", sizeBefore-sizeAfter).
		Msg("VACUUM completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	stat, err := j.usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	switch {
	case stat.Free < diskCriticalBytes:
		j.log.Error().Uint64("free_bytes", stat.Free).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %d MB free in %s", stat.Free>>20, j.dataDir)
	case stat.Free < diskWarningBytes:
		j.log.Warn().Uint64("free_bytes", stat.Free).Float64("used_percent", stat.UsedPercent).Msg("Disk space running low")
	default:
		j.log.Debug().Uint64("free_bytes", stat.Free).Msg("Disk space check")
	}
	return nil
}

func pageBytes(db *database.DB) (int64, error) {
	var pageCount, pageSize int64
	if err := db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}
