package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const projectColumns = `id, user_id, title, status, COALESCE(diagram_url, ''), created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Status, &p.DiagramURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}

// CreateProject creates a new project in the in-progress status and
// returns the full row.
func (db *DB) CreateProject(ctx context.Context, userID uuid.UUID, title string) (*Project, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO projects (user_id, title, status)
		 VALUES ($1, $2, $3)
		 RETURNING `+projectColumns,
		userID, title, ProjectStatusInProgress,
	)
	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project by ID. Returns nil when not found.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// ListProjectsByUser retrieves a user's projects, newest first.
func (db *DB) ListProjectsByUser(ctx context.Context, userID uuid.UUID) ([]Project, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Status, &p.DiagramURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetProjectStatus updates a project's status.
func (db *DB) SetProjectStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE projects SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("project not found: %s", id)
	}
	return nil
}

// SetProjectDiagramURL updates the denormalized diagram URL facet.
func (db *DB) SetProjectDiagramURL(ctx context.Context, id uuid.UUID, url string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE projects SET diagram_url = $1, updated_at = NOW() WHERE id = $2`,
		url, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update diagram url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("project not found: %s", id)
	}
	return nil
}

// DeleteProject deletes a project and all its stage records (via cascade)
func (db *DB) DeleteProject(ctx context.Context, id uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("project not found: %s", id)
	}
	return nil
}
