package documents

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/events"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Handler handles document HTTP endpoints.
type Handler struct {
	repo     *Repository
	notifier events.Notifier
}

// NewHandler creates a documents handler.
func NewHandler(repo *Repository, notifier events.Notifier) *Handler {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &Handler{repo: repo, notifier: notifier}
}

// Resolve loads a document and reports its project, for the entity-scoped
// middleware.
func (h *Handler) Resolve(ctx context.Context, id uuid.UUID) (interface{}, uuid.UUID, error) {
	d, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if d == nil {
		return nil, uuid.Nil, nil
	}
	return d, d.ProjectID, nil
}

func documentFromContext(c *gin.Context) *models.Document {
	d, _ := access.Entity(c).(*models.Document)
	return d
}

// CreateDocumentRequest is the body for POST /projects/:projectId/documents.
type CreateDocumentRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
}

// Create handles POST /projects/:projectId/documents (editor).
func (h *Handler) Create(c *gin.Context) {
	var body CreateDocumentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("title", "required"))
		return
	}
	body.Title = strings.TrimSpace(body.Title)
	if body.Title == "" || len(body.Title) > 500 {
		response.Error(c, apperror.Validation("title", "must be 1-500 characters"))
		return
	}
	d := &models.Document{
		ProjectID: access.ProjectID(c),
		Title:     body.Title,
		Content:   body.Content,
		CreatedBy: access.UserID(c),
	}
	if err := h.repo.Create(c.Request.Context(), d); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, d)
}

// Get handles GET /documents/:documentId (viewer or public).
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, documentFromContext(c))
}

// List handles GET /projects/:projectId/documents (viewer or public).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByProject(c.Request.Context(), access.ProjectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateDocumentRequest is the body for PATCH /documents/:documentId.
type UpdateDocumentRequest struct {
	Version int64   `json:"version" binding:"required"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Update handles PATCH /documents/:documentId (editor). Every update
// appends an immutable version snapshot.
func (h *Handler) Update(c *gin.Context) {
	d := documentFromContext(c)
	var body UpdateDocumentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("version", "required"))
		return
	}
	if body.Title != nil {
		title := strings.TrimSpace(*body.Title)
		if title == "" || len(title) > 500 {
			response.Error(c, apperror.Validation("title", "must be 1-500 characters"))
			return
		}
		d.Title = title
	}
	if body.Content != nil {
		d.Content = *body.Content
	}
	err := h.repo.Update(c.Request.Context(), d, body.Version, access.UserID(c))
	if err == ErrVersionMismatch {
		response.Error(c, apperror.Conflict("document was modified concurrently, reload and retry"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	h.notifier.Publish(c.Request.Context(), d.ProjectID, models.EventDocumentUpdated, d)
	response.OK(c, d)
}

// Delete handles DELETE /documents/:documentId (editor). Soft delete.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.repo.SoftDelete(c.Request.Context(), documentFromContext(c).ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListVersions handles GET /documents/:documentId/versions (viewer).
func (h *Handler) ListVersions(c *gin.Context) {
	list, err := h.repo.ListVersions(c.Request.Context(), documentFromContext(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
