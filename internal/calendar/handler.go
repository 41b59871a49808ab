package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Handler handles calendar event HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a calendar handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Resolve loads an event and reports its project, for the entity-scoped
// middleware.
func (h *Handler) Resolve(ctx context.Context, id uuid.UUID) (interface{}, uuid.UUID, error) {
	e, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if e == nil {
		return nil, uuid.Nil, nil
	}
	return e, e.ProjectID, nil
}

func eventFromContext(c *gin.Context) *models.CalendarEvent {
	e, _ := access.Entity(c).(*models.CalendarEvent)
	return e
}

// EventRequest is the body for event create/update.
type EventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
	AllDay      bool      `json:"all_day"`
}

func (b *EventRequest) validate() *apperror.Error {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" || len(b.Title) > 255 {
		return apperror.Validation("title", "must be 1-255 characters")
	}
	if !b.EndsAt.After(b.StartsAt) {
		return apperror.Validation("ends_at", "must be after starts_at")
	}
	return nil
}

// Create handles POST /projects/:projectId/calendar (editor).
func (h *Handler) Create(c *gin.Context) {
	var body EventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "title, starts_at and ends_at required"))
		return
	}
	if verr := body.validate(); verr != nil {
		response.Error(c, verr)
		return
	}
	e := &models.CalendarEvent{
		ProjectID:   access.ProjectID(c),
		Title:       body.Title,
		Description: body.Description,
		StartsAt:    body.StartsAt,
		EndsAt:      body.EndsAt,
		AllDay:      body.AllDay,
		CreatedBy:   access.UserID(c),
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// List handles GET /projects/:projectId/calendar?from=&to= (viewer or
// public). Defaults to the current month.
func (h *Handler) List(c *gin.Context) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, apperror.Validation("from", "must be RFC 3339"))
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, apperror.Validation("to", "must be RFC 3339"))
			return
		}
		to = t
	}
	if !to.After(from) {
		response.Error(c, apperror.Validation("to", "must be after from"))
		return
	}
	list, err := h.repo.ListByRange(c.Request.Context(), access.ProjectID(c), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /calendar/:eventId (viewer or public).
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, eventFromContext(c))
}

// Update handles PATCH /calendar/:eventId (editor).
func (h *Handler) Update(c *gin.Context) {
	e := eventFromContext(c)
	var body EventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "title, starts_at and ends_at required"))
		return
	}
	if verr := body.validate(); verr != nil {
		response.Error(c, verr)
		return
	}
	e.Title, e.Description = body.Title, body.Description
	e.StartsAt, e.EndsAt, e.AllDay = body.StartsAt, body.EndsAt, body.AllDay
	if err := h.repo.Update(c.Request.Context(), e); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /calendar/:eventId (editor). Soft delete.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.repo.SoftDelete(c.Request.Context(), eventFromContext(c).ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
