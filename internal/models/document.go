package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a rich-text page attached to a project.
type Document struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Version   int64      `json:"version"`
	CreatedBy uuid.UUID  `json:"created_by"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DocumentVersion is an immutable snapshot appended on every update.
type DocumentVersion struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Version    int64     `json:"version"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	EditedBy   uuid.UUID `json:"edited_by"`
	CreatedAt  time.Time `json:"created_at"`
}
