package models

import (
	"time"

	"github.com/google/uuid"
)

// Issue types and priorities accepted by the API.
var (
	IssueTypes      = []string{"task", "bug", "story", "epic", "subtask"}
	IssuePriorities = []string{"lowest", "low", "medium", "high", "highest"}
)

// Issue is a work item inside a project.
type Issue struct {
	ID             uuid.UUID   `json:"id"`
	ProjectID      uuid.UUID   `json:"project_id"`
	Key            string      `json:"key"` // e.g. "TRK-42"
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Type           string      `json:"type"`
	Priority       string      `json:"priority"`
	Status         string      `json:"status"` // workflow state id
	AssigneeID     *uuid.UUID  `json:"assignee_id,omitempty"`
	SprintID       *uuid.UUID  `json:"sprint_id,omitempty"`
	ParentID       *uuid.UUID  `json:"parent_id,omitempty"`
	Labels         []uuid.UUID `json:"labels,omitempty"`
	EstimatedHours *float64    `json:"estimated_hours,omitempty"`
	StoryPoints    *int        `json:"story_points,omitempty"`
	DueDate        *time.Time  `json:"due_date,omitempty"`
	Version        int64       `json:"version"` // optimistic concurrency token
	CreatedBy      uuid.UUID   `json:"created_by"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Comment is attached to an issue. Viewers may comment.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	IssueID   uuid.UUID `json:"issue_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidIssueType reports whether t is an accepted issue type.
func ValidIssueType(t string) bool {
	for _, v := range IssueTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ValidIssuePriority reports whether p is an accepted priority.
func ValidIssuePriority(p string) bool {
	for _, v := range IssuePriorities {
		if v == p {
			return true
		}
	}
	return false
}
