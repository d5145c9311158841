package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fundalloc/internal/config"
	"github.com/aristath/fundalloc/internal/domain"
	testutil "github.com/aristath/fundalloc/internal/testing"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	return &config.Config{
		BackendAPI:             backendURL,
		BackendTimeoutSeconds:  5,
		DataDir:                filepath.Join(t.TempDir(), "data"),
		HistoryRetentionDays:   30,
		HistoryCleanupSchedule: "0 0 3 * * *",
		Backup:                 &config.BackupConfig{},
	}
}

func jobNames(c *Container) []string {
	var names []string
	for _, j := range c.Scheduler.Jobs() {
		names = append(names, j.Name)
	}
	return names
}

func TestWire(t *testing.T) {
	backend := testutil.NewFakeBackend(t)
	cfg := testConfig(t, backend.URL())

	container, err := Wire(cfg, "test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.PlannerDB)
	assert.NotNil(t, container.HistoryDB)
	assert.NotNil(t, container.PlanService)
	assert.NotNil(t, container.AllocationService)
	assert.Nil(t, container.BackupService)
	assert.Equal(t, backend.URL(), container.AllocatorClient.BaseURL())

	for _, name := range []string{"planner.db", "history.db"} {
		_, err := os.Stat(filepath.Join(cfg.DataDir, name))
		assert.NoError(t, err, name)
	}

	assert.Equal(t, []string{"check_wal_checkpoints", "database_maintenance", "history_cleanup"}, jobNames(container))
}

func TestWire_AllocatesEndToEnd(t *testing.T) {
	backend := testutil.NewFakeBackend(t)
	container, err := Wire(testConfig(t, backend.URL()), "test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	ws, err := container.PlanService.Create()
	require.NoError(t, err)
	_, err = container.PlanService.AddPortfolio(ws.ID, "Growth")
	require.NoError(t, err)
	_, err = container.PlanService.SetPlanEnabled(ws.ID, domain.PlanOneTime, true)
	require.NoError(t, err)
	_, err = container.PlanService.AddDeposit(ws.ID, decimal.NewFromInt(500))
	require.NoError(t, err)

	ws, err = container.PlanService.Allocate(context.Background(), ws.ID)
	require.NoError(t, err)
	require.NotNil(t, ws.Allocation.IsOkay)
	assert.True(t, *ws.Allocation.IsOkay)

	runs, err := container.RunRepo.ListByWorkspace(ws.ID, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Len(t, backend.Requests(), 1)
}

func TestWire_BackupEnabled(t *testing.T) {
	cfg := testConfig(t, "http://localhost:9000")
	cfg.Backup = &config.BackupConfig{
		Bucket:          "fundalloc-backups",
		Endpoint:        "http://localhost:9999",
		Region:          "auto",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Schedule:        "0 30 3 * * *",
		RetentionDays:   14,
	}

	container, err := Wire(cfg, "test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.BackupService)
	assert.Contains(t, jobNames(container), "database_backup")
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t, "http://localhost:9000")
	cfg.HistoryCleanupSchedule = "whenever"

	_, err := Wire(cfg, "test", zerolog.Nop())
	assert.ErrorContains(t, err, "failed to register jobs")
}

func TestContainerClose_Partial(t *testing.T) {
	c := &Container{log: zerolog.Nop()}
	assert.NoError(t, c.Close())
}
