// Package di wires databases, repositories, services and jobs into a Container.
package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/clients/allocator"
	"github.com/aristath/fundalloc/internal/database"
	"github.com/aristath/fundalloc/internal/events"
	"github.com/aristath/fundalloc/internal/modules/allocation"
	"github.com/aristath/fundalloc/internal/modules/plans"
	"github.com/aristath/fundalloc/internal/reliability"
	"github.com/aristath/fundalloc/internal/scheduler"
)

// Container holds all application dependencies. It is created by Wire and
// handed to the HTTP server.
type Container struct {
	// Databases
	PlannerDB *database.DB // workspace state
	HistoryDB *database.DB // allocation runs

	// Clients
	AllocatorClient *allocator.Client

	// Repositories
	WorkspaceRepo *plans.Repository
	RunRepo       *allocation.Repository

	// Services
	EventBus          *events.Bus
	AllocationService *allocation.Service
	PlanService       *plans.Service
	BackupService     *reliability.BackupService // nil when backups are disabled

	Scheduler *scheduler.Scheduler

	log zerolog.Logger
}

// Databases returns every open database, planner first.
func (c *Container) Databases() []*database.DB {
	dbs := make([]*database.DB, 0, 2)
	for _, db := range []*database.DB{c.PlannerDB, c.HistoryDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops the scheduler, closes the event bus and closes the databases.
// It is safe to call on a partially wired container.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.EventBus != nil {
		c.EventBus.Close()
	}

	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			c.log.Error().Err(err).Str("database", db.Name()).Msg("Failed to close database")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
