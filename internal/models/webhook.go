package models

import (
	"time"

	"github.com/google/uuid"
)

// Webhook event names the delivery pipeline understands.
const (
	EventIssueCreated    = "issue.created"
	EventIssueUpdated    = "issue.updated"
	EventIssueDeleted    = "issue.deleted"
	EventSprintStarted   = "sprint.started"
	EventSprintCompleted = "sprint.completed"
	EventDocumentUpdated = "document.updated"
)

// Webhook is a project-scoped outbound subscription.
type Webhook struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	URL             string     `json:"url"`
	Secret          string     `json:"-"` // HMAC signing key, never serialized
	Events          []string   `json:"events"`
	IsActive        bool       `json:"is_active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedBy       uuid.UUID  `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Webhook execution statuses.
const (
	ExecutionPending = "pending"
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
)

// WebhookExecution records one delivery attempt chain for an event.
type WebhookExecution struct {
	ID           uuid.UUID `json:"id"`
	WebhookID    uuid.UUID `json:"webhook_id"`
	Event        string    `json:"event"`
	Payload      []byte    `json:"payload"`
	Status       string    `json:"status"`
	ResponseCode int       `json:"response_code"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
