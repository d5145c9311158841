package reliability

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fundalloc/internal/database"
	testutil "github.com/aristath/fundalloc/internal/testing"
)

func TestMaintenanceJob_Run(t *testing.T) {
	planner := testutil.NewTestDB(t, database.NamePlanner)
	history := testutil.NewTestDB(t, database.NameHistory)

	job := NewMaintenanceJob([]*database.DB{planner, history}, []*database.DB{history}, t.TempDir(), zerolog.Nop())
	job.usage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 10 << 30, UsedPercent: 20}, nil
	}

	assert.Equal(t, "database_maintenance", job.Name())
	require.NoError(t, job.Run())
}

func TestMaintenanceJob_DiskSpace(t *testing.T) {
	tests := []struct {
		name    string
		free    uint64
		err     error
		wantErr bool
	}{
		{"plenty", 10 << 30, nil, false},
		{"low but usable", 1 << 30, nil, false},
		{"critical", 100 << 20, nil, true},
		{"stat failure", 0, errors.New("no such device"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewMaintenanceJob(nil, nil, t.TempDir(), zerolog.Nop())
			job.usage = func(string) (*disk.UsageStat, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &disk.UsageStat{Free: tt.free}, nil
			}

			err := job.Run()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaintenanceJob_RealDisk(t *testing.T) {
	job := NewMaintenanceJob(nil, nil, t.TempDir(), zerolog.Nop())
	stat, err := job.usage(job.dataDir)
	require.NoError(t, err)
	assert.Positive(t, stat.Total)
}
