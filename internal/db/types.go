package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Project statuses.
const (
	ProjectStatusInProgress = "in-progress"
	ProjectStatusCompleted  = "completed"
)

// Project is one idea refinement workspace. DiagramURL is a denormalized
// facet of stage output, kept on the row for cheap listing.
type Project struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	DiagramURL string    `json:"diagram_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StageRecord is the durable output of one workflow stage. At most one
// record exists per (project, stage); re-runs overwrite in place.
type StageRecord struct {
	ProjectID uuid.UUID       `json:"project_id"`
	Stage     string          `json:"stage"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// User represents a user account
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never serialize to JSON
	PasswordSet  bool      `json:"password_set" db:"password_set"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
