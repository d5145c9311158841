// Package testing provides testing utilities and helpers for the fundalloc project.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/fundalloc/internal/database"
)

// NewTestDB creates a temp-file SQLite database with the named schema applied
// ("planner" or "history"). Unknown names produce an empty database.
// The database is closed automatically when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	profile := database.ProfileStandard
	if name == database.NameHistory {
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db
}
