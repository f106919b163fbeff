package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveStageRecord stores a stage output for a project. Upserts on
// (project_id, stage) so regeneration overwrites in place.
func (db *DB) SaveStageRecord(ctx context.Context, projectID uuid.UUID, stage string, payload json.RawMessage) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO stage_records (project_id, stage, payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, stage) DO UPDATE SET payload = $3, updated_at = NOW()`,
		projectID, stage, []byte(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save stage record %s: %w", stage, err)
	}
	return nil
}

// GetStageRecord retrieves one stage record. Returns nil when the stage
// has no record yet.
func (db *DB) GetStageRecord(ctx context.Context, projectID uuid.UUID, stage string) (*StageRecord, error) {
	var rec StageRecord
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`SELECT project_id, stage, payload, created_at, updated_at
		 FROM stage_records WHERE project_id = $1 AND stage = $2`,
		projectID, stage,
	).Scan(&rec.ProjectID, &rec.Stage, &payload, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stage record %s: %w", stage, err)
	}
	rec.Payload = payload
	return &rec, nil
}

// ListStageRecords retrieves all stage records for a project. Order is
// insertion order; callers derive position from stage kinds, never from
// row order.
func (db *DB) ListStageRecords(ctx context.Context, projectID uuid.UUID) ([]StageRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT project_id, stage, payload, created_at, updated_at
		 FROM stage_records WHERE project_id = $1 ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage records: %w", err)
	}
	defer rows.Close()

	var records []StageRecord
	for rows.Next() {
		var rec StageRecord
		var payload []byte
		if err := rows.Scan(&rec.ProjectID, &rec.Stage, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage record: %w", err)
		}
		rec.Payload = payload
		records = append(records, rec)
	}
	return records, rows.Err()
}
