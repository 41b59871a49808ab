package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

var knownEvents = map[string]bool{
	models.EventIssueCreated:    true,
	models.EventIssueUpdated:    true,
	models.EventIssueDeleted:    true,
	models.EventSprintStarted:   true,
	models.EventSprintCompleted: true,
	models.EventDocumentUpdated: true,
}

// Handler handles webhook management endpoints.
type Handler struct {
	repo       *Repository
	dispatcher *Dispatcher
}

// NewHandler creates a webhooks handler.
func NewHandler(repo *Repository, dispatcher *Dispatcher) *Handler {
	return &Handler{repo: repo, dispatcher: dispatcher}
}

// Resolve loads a webhook and reports its project, for the entity-scoped
// middleware.
func (h *Handler) Resolve(ctx context.Context, id uuid.UUID) (interface{}, uuid.UUID, error) {
	w, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if w == nil {
		return nil, uuid.Nil, nil
	}
	return w, w.ProjectID, nil
}

func webhookFromContext(c *gin.Context) *models.Webhook {
	w, _ := access.Entity(c).(*models.Webhook)
	return w
}

func validateEvents(events []string) *apperror.Error {
	if len(events) == 0 {
		return apperror.Validation("events", "at least one event required")
	}
	for _, e := range events {
		if !knownEvents[e] {
			return apperror.Validation("events", "unknown event: "+e)
		}
	}
	return nil
}

func validateURL(raw string) *apperror.Error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.Validation("url", "must be an absolute http(s) URL")
	}
	return nil
}

// CreateWebhookRequest is the body for POST /projects/:projectId/webhooks.
type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

// Create handles POST /projects/:projectId/webhooks (project admin). The
// signing secret is generated server-side and returned exactly once.
func (h *Handler) Create(c *gin.Context) {
	var body CreateWebhookRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "url and events required"))
		return
	}
	if verr := validateURL(body.URL); verr != nil {
		response.Error(c, verr)
		return
	}
	if verr := validateEvents(body.Events); verr != nil {
		response.Error(c, verr)
		return
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		response.Error(c, err)
		return
	}
	w := &models.Webhook{
		ProjectID: access.ProjectID(c),
		URL:       body.URL,
		Secret:    hex.EncodeToString(raw),
		Events:    body.Events,
		CreatedBy: access.UserID(c),
	}
	if err := h.repo.Create(c.Request.Context(), w); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"webhook": w, "secret": w.Secret})
}

// List handles GET /projects/:projectId/webhooks (viewer).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByProject(c.Request.Context(), access.ProjectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateWebhookRequest is the body for PATCH /webhooks/:webhookId.
type UpdateWebhookRequest struct {
	URL      *string  `json:"url"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"is_active"`
}

// Update handles PATCH /webhooks/:webhookId (project admin).
func (h *Handler) Update(c *gin.Context) {
	w := webhookFromContext(c)
	var body UpdateWebhookRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "invalid request body"))
		return
	}
	if body.URL != nil {
		if verr := validateURL(*body.URL); verr != nil {
			response.Error(c, verr)
			return
		}
		w.URL = *body.URL
	}
	if body.Events != nil {
		if verr := validateEvents(body.Events); verr != nil {
			response.Error(c, verr)
			return
		}
		w.Events = body.Events
	}
	if body.IsActive != nil {
		w.IsActive = *body.IsActive
	}
	if err := h.repo.Update(c.Request.Context(), w); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, w)
}

// Delete handles DELETE /webhooks/:webhookId (project admin).
func (h *Handler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), webhookFromContext(c).ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Test handles POST /webhooks/:webhookId/test (project admin). Fires a
// synthetic event through the normal delivery pipeline.
func (h *Handler) Test(c *gin.Context) {
	w := webhookFromContext(c)
	h.dispatcher.Publish(c.Request.Context(), w.ProjectID, w.Events[0], gin.H{
		"test":      true,
		"fired_at":  time.Now().UTC(),
		"webhook":   w.ID,
		"initiator": access.UserID(c),
	})
	response.OK(c, gin.H{"enqueued": true})
}

// ListExecutions handles GET /webhooks/:webhookId/executions (project
// admin).
func (h *Handler) ListExecutions(c *gin.Context) {
	list, err := h.repo.ListExecutions(c.Request.Context(), webhookFromContext(c).ID, 50)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// RetryExecution handles POST /webhooks/:webhookId/executions/:executionId/retry
// (project admin). Re-enqueues a failed execution.
func (h *Handler) RetryExecution(c *gin.Context) {
	w := webhookFromContext(c)
	execID, err := uuid.Parse(c.Param("executionId"))
	if err != nil {
		response.Error(c, apperror.Validation("executionId", "invalid execution id"))
		return
	}
	exec, err := h.repo.GetExecution(c.Request.Context(), execID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if exec == nil || exec.WebhookID != w.ID {
		response.Error(c, apperror.NotFound("execution", execID.String()))
		return
	}
	if exec.Status == models.ExecutionSuccess {
		response.Error(c, apperror.Conflict("execution already succeeded"))
		return
	}
	if err := h.dispatcher.Requeue(c.Request.Context(), exec); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"enqueued": true})
}
