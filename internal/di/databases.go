package di

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/config"
	"github.com/aristath/fundalloc/internal/database"
)

// InitializeDatabases opens planner.db and history.db under cfg.DataDir and applies their schemas
func InitializeDatabases(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// planner.db - workspace state, rewritten on every edit
	plannerDB, err := openDatabase(cfg.DataDir, database.NamePlanner, database.ProfileStandard)
	if err != nil {
		return err
	}
	container.PlannerDB = plannerDB

	// history.db - allocation runs, kept with maximum durability
	historyDB, err := openDatabase(cfg.DataDir, database.NameHistory, database.ProfileLedger)
	if err != nil {
		return err
	}
	container.HistoryDB = historyDB

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return nil
}

func openDatabase(dataDir, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}
	return db, nil
}
