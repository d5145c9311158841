package plans

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/domain"
)

// Repository stores workspaces as JSON documents
// Database: planner.db (workspaces table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new workspace repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "workspaces").Logger(),
	}
}

// Create inserts a new workspace
func (r *Repository) Create(ws *Workspace) error {
	state, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("failed to marshal workspace %s: %w", ws.ID, err)
	}

	_, err = r.db.Exec(`INSERT INTO workspaces (id, state, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		ws.ID, string(state), ws.CreatedAt.Unix(), ws.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert workspace %s: %w", ws.ID, err)
	}
	return nil
}

// Update replaces the stored state of an existing workspace
func (r *Repository) Update(ws *Workspace) error {
	state, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("failed to marshal workspace %s: %w", ws.ID, err)
	}

	res, err := r.db.Exec(`UPDATE workspaces SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), ws.UpdatedAt.Unix(), ws.ID)
	if err != nil {
		return fmt.Errorf("failed to update workspace %s: %w", ws.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workspace %s: %w", ws.ID, domain.ErrNotFound)
	}
	return nil
}

// Get loads a workspace by id
func (r *Repository) Get(id string) (*Workspace, error) {
	var state string
	err := r.db.QueryRow(`SELECT state FROM workspaces WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workspace %s: %w", id, err)
	}
	return decodeWorkspace(id, state)
}

// List returns all workspaces, most recently updated first
func (r *Repository) List() ([]*Workspace, error) {
	rows, err := r.db.Query(`SELECT id, state FROM workspaces ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer rows.Close()

	out := make([]*Workspace, 0)
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		ws, err := decodeWorkspace(id, state)
		if err != nil {
			// One corrupt row should not hide the rest
			r.log.Warn().Err(err).Str("workspace_id", id).Msg("Skipping unreadable workspace")
			continue
		}
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workspaces: %w", err)
	}
	return out, nil
}

// Delete removes a workspace
func (r *Repository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workspace %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func decodeWorkspace(id, state string) (*Workspace, error) {
	var ws Workspace
	if err := json.Unmarshal([]byte(state), &ws); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workspace %s: %w", id, err)
	}
	ws.ID = id
	return &ws, nil
}
