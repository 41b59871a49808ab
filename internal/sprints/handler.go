package sprints

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/events"
	"github.com/trackline/backend/internal/issues"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Handler handles sprint HTTP endpoints.
type Handler struct {
	repo     *Repository
	issues   *issues.Repository
	notifier events.Notifier
	logger   *zap.Logger
}

// NewHandler creates a sprints handler.
func NewHandler(repo *Repository, issueRepo *issues.Repository, notifier events.Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &Handler{repo: repo, issues: issueRepo, notifier: notifier, logger: logger}
}

// Resolve loads a sprint and reports its project, for the entity-scoped
// middleware.
func (h *Handler) Resolve(ctx context.Context, id uuid.UUID) (interface{}, uuid.UUID, error) {
	s, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if s == nil {
		return nil, uuid.Nil, nil
	}
	return s, s.ProjectID, nil
}

func sprintFromContext(c *gin.Context) *models.Sprint {
	s, _ := access.Entity(c).(*models.Sprint)
	return s
}

// CreateSprintRequest is the body for POST /projects/:projectId/sprints.
type CreateSprintRequest struct {
	Name     string     `json:"name" binding:"required"`
	Goal     string     `json:"goal"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// Create handles POST /projects/:projectId/sprints (editor).
func (h *Handler) Create(c *gin.Context) {
	var body CreateSprintRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("name", "required"))
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 255 {
		response.Error(c, apperror.Validation("name", "must be 1-255 characters"))
		return
	}
	if body.StartsAt != nil && body.EndsAt != nil && !body.EndsAt.After(*body.StartsAt) {
		response.Error(c, apperror.Validation("ends_at", "must be after starts_at"))
		return
	}
	s := &models.Sprint{
		ProjectID: access.ProjectID(c),
		Name:      body.Name,
		Goal:      body.Goal,
		StartsAt:  body.StartsAt,
		EndsAt:    body.EndsAt,
		CreatedBy: access.UserID(c),
	}
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, s)
}

// List handles GET /projects/:projectId/sprints (viewer or public).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByProject(c.Request.Context(), access.ProjectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /sprints/:sprintId (viewer or public).
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, sprintFromContext(c))
}

// Start handles POST /sprints/:sprintId/start (editor). At most one
// sprint per project may be active.
func (h *Handler) Start(c *gin.Context) {
	s := sprintFromContext(c)
	if s.Status != models.SprintPlanned {
		response.Error(c, apperror.Conflict("sprint is not in the planned state"))
		return
	}
	active, err := h.repo.HasActiveSprint(c.Request.Context(), s.ProjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if active {
		response.Error(c, apperror.Conflict("another sprint is already active in this project"))
		return
	}
	ok, err := h.repo.Start(c.Request.Context(), s.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, apperror.Conflict("sprint state changed concurrently"))
		return
	}
	s.Status = models.SprintActive
	h.notifier.Publish(c.Request.Context(), s.ProjectID, models.EventSprintStarted, s)
	response.OK(c, s)
}

// Complete handles POST /sprints/:sprintId/complete (editor). Issues not
// in a done state roll back to the backlog.
func (h *Handler) Complete(c *gin.Context) {
	s := sprintFromContext(c)
	if s.Status != models.SprintActive {
		response.Error(c, apperror.Conflict("sprint is not active"))
		return
	}
	ok, err := h.repo.Complete(c.Request.Context(), s.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, apperror.Conflict("sprint state changed concurrently"))
		return
	}

	done := doneStates(access.Project(c))
	rolled, err := h.issues.RollSprintIssuesToBacklog(c.Request.Context(), s.ID, done)
	if err != nil {
		// The sprint is already completed; log and report the count as
		// unknown rather than failing the whole operation.
		h.logger.Error("rolling sprint issues to backlog failed",
			zap.String("sprint_id", s.ID.String()), zap.Error(err))
		rolled = 0
	}
	s.Status = models.SprintCompleted
	h.notifier.Publish(c.Request.Context(), s.ProjectID, models.EventSprintCompleted, s)
	response.OK(c, gin.H{"sprint": s, "rolled_to_backlog": rolled})
}

func doneStates(project *models.Project) []string {
	states, err := project.Workflow()
	if err != nil {
		return []string{"done"}
	}
	var done []string
	for _, st := range states {
		if st.Category == "done" {
			done = append(done, st.ID)
		}
	}
	if len(done) == 0 {
		done = []string{"done"}
	}
	return done
}
