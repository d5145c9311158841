package allocation

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/fundalloc/internal/domain"
)

// DefaultListLimit is used when a caller asks for a non-positive limit
const DefaultListLimit = 50

// MaxListLimit caps a single history page
const MaxListLimit = 500

// Repository handles allocation run history
// Database: history.db (allocation_runs table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new allocation run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "allocation_runs").Logger(),
	}
}

const runColumns = `id, workspace_id, status, request, response, error, upstream_status,
	plan_count, deposit_count, total_deposits, duration_ms, created_at`

// Insert stores a run
func (r *Repository) Insert(run *Run) error {
	_, err := r.db.Exec(`INSERT INTO allocation_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		nullString(run.WorkspaceID),
		string(run.Status),
		string(run.Request),
		nullString(string(run.Response)),
		nullString(run.Error),
		nullInt(run.UpstreamStatus),
		run.PlanCount,
		run.DepositCount,
		run.TotalDeposits.String(),
		run.DurationMs,
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns the run with the given id, or domain.ErrNotFound
func (r *Repository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM allocation_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("allocation run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs, newest first
func (r *Repository) List(limit int) ([]Run, error) {
	return r.query(`SELECT `+runColumns+` FROM allocation_runs
		ORDER BY created_at DESC, id DESC LIMIT ?`, clampLimit(limit))
}

// ListByWorkspace returns the most recent runs of one workspace, newest first
func (r *Repository) ListByWorkspace(workspaceID string, limit int) ([]Run, error) {
	return r.query(`SELECT `+runColumns+` FROM allocation_runs
		WHERE workspace_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, workspaceID, clampLimit(limit))
}

// DeleteOlderThan removes runs created before cutoff and returns how many were removed
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM allocation_runs WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old allocation runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted allocation runs: %w", err)
	}
	return n, nil
}

// Count returns the number of stored runs
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM allocation_runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count allocation runs: %w", err)
	}
	return n, nil
}

func (r *Repository) query(query string, args ...interface{}) ([]Run, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run            Run
		status         string
		request        string
		workspaceID    sql.NullString
		response       sql.NullString
		errMsg         sql.NullString
		upstreamStatus sql.NullInt64
		total          string
		createdAt      int64
	)

	err := s.Scan(
		&run.ID,
		&workspaceID,
		&status,
		&request,
		&response,
		&errMsg,
		&upstreamStatus,
		&run.PlanCount,
		&run.DepositCount,
		&total,
		&run.DurationMs,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan allocation run: %w", err)
	}

	run.Status = RunStatus(status)
	run.Request = []byte(request)
	run.WorkspaceID = workspaceID.String
	if response.Valid {
		run.Response = []byte(response.String)
	}
	run.Error = errMsg.String
	run.UpstreamStatus = int(upstreamStatus.Int64)
	run.CreatedAt = time.UnixMilli(createdAt).UTC()

	run.TotalDeposits, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("invalid total_deposits %q on run %s: %w", total, run.ID, err)
	}

	return &run, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
