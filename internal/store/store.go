// Package store persists deployment records in SQLite and resolves
// project descriptors, fulfilling the persistence contract the
// orchestrator depends on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ramparte/deployotron/internal/project"
)

// Store combines the SQLite deployment history with the in-memory project
// registry.
type Store struct {
	db       *sql.DB
	registry *project.Registry
}

// New opens (or creates) the database at dbPath.
func New(dbPath string, registry *project.Registry) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, registry: registry}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			status TEXT NOT NULL,
			commit_sha TEXT,
			commit_message TEXT,
			image_tag TEXT,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			error_message TEXT,
			log_excerpt TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_deployments_project_started
		ON deployments(project_id, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// LoadProject resolves a project descriptor by id.
func (s *Store) LoadProject(ctx context.Context, id string) (*project.Project, error) {
	return s.registry.Get(id)
}

// CreateDeployment inserts a new deployment record.
func (s *Store) CreateDeployment(ctx context.Context, d *Deployment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments
		(id, project_id, status, commit_sha, commit_message, image_tag,
		 started_at, completed_at, error_message, log_excerpt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.ProjectID,
		string(d.Status),
		d.CommitSHA,
		d.CommitMessage,
		d.ImageTag,
		d.StartedAt.UTC().Format(time.RFC3339),
		formatNullableTime(d.CompletedAt),
		d.ErrorMessage,
		d.LogExcerpt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deployment record: %w", err)
	}
	return nil
}

// UpdateDeployment rewrites the mutable fields of an existing record.
func (s *Store) UpdateDeployment(ctx context.Context, d *Deployment) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE deployments
		SET status = ?, commit_sha = ?, commit_message = ?, image_tag = ?,
		    completed_at = ?, error_message = ?, log_excerpt = ?
		WHERE id = ?
	`,
		string(d.Status),
		d.CommitSHA,
		d.CommitMessage,
		d.ImageTag,
		formatNullableTime(d.CompletedAt),
		d.ErrorMessage,
		d.LogExcerpt,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update deployment record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("deployment '%s' not found", d.ID)
	}
	return nil
}

// GetDeployment loads one record by id, or nil when absent.
func (s *Store) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment: %w", err)
	}
	return d, nil
}

// ListDeployments returns the most recent records for a project, newest
// first.
func (s *Store) ListDeployments(ctx context.Context, projectID string, limit int) ([]Deployment, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE project_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	var records []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// LatestDeployment returns the most recent record for a project, or nil.
func (s *Store) LatestDeployment(ctx context.Context, projectID string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE project_id = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, projectID)

	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest deployment: %w", err)
	}
	return d, nil
}

const selectColumns = `
	SELECT id, project_id, status, commit_sha, commit_message, image_tag,
	       started_at, completed_at, error_message, log_excerpt
	FROM deployments`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDeployment(s scanner) (*Deployment, error) {
	var d Deployment
	var status string
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&d.ID,
		&d.ProjectID,
		&status,
		&d.CommitSHA,
		&d.CommitMessage,
		&d.ImageTag,
		&startedAtStr,
		&completedAtStr,
		&d.ErrorMessage,
		&d.LogExcerpt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	d.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		d.CompletedAt = &completedAt
	}

	return &d, nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
