package models

import (
	"time"

	"github.com/google/uuid"
)

// Label is a project-scoped tag applied to issues.
type Label struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"` // hex, e.g. "#FF5733"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
