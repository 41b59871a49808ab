package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkflowState is one column of a project's board (e.g. "In Progress").
type WorkflowState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"` // "backlog", "started", "done"
	Order    int    `json:"order"`
}

// Project belongs to exactly one organization. CreatedBy is always an
// implicit admin regardless of membership rows.
type Project struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Key            string          `json:"key"` // uppercase short code, e.g. "TRK"
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	IsPublic       bool            `json:"is_public"`
	WorkflowStates json.RawMessage `json:"workflow_states"`
	IssueCounter   int64           `json:"-"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Workflow decodes the project's workflow states.
func (p *Project) Workflow() ([]WorkflowState, error) {
	var states []WorkflowState
	if len(p.WorkflowStates) == 0 {
		return states, nil
	}
	err := json.Unmarshal(p.WorkflowStates, &states)
	return states, err
}

// DefaultWorkflowStates is the board every new project starts with.
func DefaultWorkflowStates() []WorkflowState {
	return []WorkflowState{
		{ID: "backlog", Name: "Backlog", Category: "backlog", Order: 0},
		{ID: "todo", Name: "To Do", Category: "backlog", Order: 1},
		{ID: "in_progress", Name: "In Progress", Category: "started", Order: 2},
		{ID: "in_review", Name: "In Review", Category: "started", Order: 3},
		{ID: "done", Name: "Done", Category: "done", Order: 4},
	}
}

// ProjectMember links a user to a project with a role. At most one active
// (non-soft-deleted) row exists per (project, user) pair; removal is a
// soft delete so referential history survives.
type ProjectMember struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      string     `json:"role"` // "viewer", "editor", "admin"
	AddedBy   uuid.UUID  `json:"added_by"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
