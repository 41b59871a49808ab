package issues

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/events"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/internal/projects"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// RateLimiter gates issue creation per user.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// Handler handles issue HTTP endpoints.
type Handler struct {
	repo            *Repository
	projects        *projects.Repository
	eval            *access.Evaluator
	limiter         RateLimiter
	notifier        events.Notifier
	createPerMinute int
	logger          *zap.Logger
}

// NewHandler creates an issues handler.
func NewHandler(repo *Repository, proj *projects.Repository, eval *access.Evaluator, limiter RateLimiter, notifier events.Notifier, createPerMinute int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if createPerMinute <= 0 {
		createPerMinute = 60
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &Handler{
		repo:            repo,
		projects:        proj,
		eval:            eval,
		limiter:         limiter,
		notifier:        notifier,
		createPerMinute: createPerMinute,
		logger:          logger,
	}
}

// Resolve loads an issue and reports its project, for the entity-scoped
// middleware.
func (h *Handler) Resolve(ctx context.Context, id uuid.UUID) (interface{}, uuid.UUID, error) {
	issue, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if issue == nil {
		return nil, uuid.Nil, nil
	}
	return issue, issue.ProjectID, nil
}

func issueFromContext(c *gin.Context) *models.Issue {
	i, _ := access.Entity(c).(*models.Issue)
	return i
}

// CreateIssueRequest is the body for POST /projects/:projectId/issues.
type CreateIssueRequest struct {
	Title          string      `json:"title" binding:"required"`
	Description    string      `json:"description"`
	Type           string      `json:"type" binding:"required"`
	Priority       string      `json:"priority"`
	Status         string      `json:"status"`
	AssigneeID     *uuid.UUID  `json:"assignee_id"`
	SprintID       *uuid.UUID  `json:"sprint_id"`
	ParentID       *uuid.UUID  `json:"parent_id"`
	Labels         []uuid.UUID `json:"labels"`
	EstimatedHours *float64    `json:"estimated_hours"`
	StoryPoints    *int        `json:"story_points"`
	DueDate        *time.Time  `json:"due_date"`
}

// Create handles POST /projects/:projectId/issues (editor). Creation is
// rate limited per user; the issue key comes from the project counter.
func (h *Handler) Create(c *gin.Context) {
	userID := access.UserID(c)
	project := access.Project(c)

	allowed, retryAfter, err := h.limiter.Allow(c.Request.Context(),
		"issue_create:"+userID.String(), h.createPerMinute, time.Minute)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !allowed {
		response.Error(c, apperror.RateLimited(retryAfter))
		return
	}

	var body CreateIssueRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "title and type required"))
		return
	}
	if len(body.Title) > 500 {
		response.Error(c, apperror.Validation("title", "must be at most 500 characters"))
		return
	}
	if !models.ValidIssueType(body.Type) {
		response.Error(c, apperror.Validation("type", "must be one of task, bug, story, epic, subtask"))
		return
	}
	if body.Priority == "" {
		body.Priority = "medium"
	}
	if !models.ValidIssuePriority(body.Priority) {
		response.Error(c, apperror.Validation("priority", "must be one of lowest, low, medium, high, highest"))
		return
	}
	if body.Status == "" {
		body.Status = "backlog"
	}
	if !workflowHasState(project, body.Status) {
		response.Error(c, apperror.Validation("status", "unknown workflow state: "+body.Status))
		return
	}

	key, err := h.nextKey(c, project)
	if err != nil {
		response.Error(c, err)
		return
	}

	issue := &models.Issue{
		ProjectID:      project.ID,
		Key:            key,
		Title:          body.Title,
		Description:    body.Description,
		Type:           body.Type,
		Priority:       body.Priority,
		Status:         body.Status,
		AssigneeID:     body.AssigneeID,
		SprintID:       body.SprintID,
		ParentID:       body.ParentID,
		Labels:         body.Labels,
		EstimatedHours: body.EstimatedHours,
		StoryPoints:    body.StoryPoints,
		DueDate:        body.DueDate,
		CreatedBy:      userID,
	}
	if issue.Labels == nil {
		issue.Labels = []uuid.UUID{}
	}
	if err := h.repo.Create(c.Request.Context(), issue); err != nil {
		response.Error(c, err)
		return
	}
	h.notifier.Publish(c.Request.Context(), project.ID, models.EventIssueCreated, issue)
	response.Created(c, issue)
}

// nextKey draws the next counter value and re-checks for duplicates, in
// case the counter was ever reset behind an existing key.
func (h *Handler) nextKey(c *gin.Context, project *models.Project) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		n, err := h.projects.NextIssueNumber(c.Request.Context(), project.ID)
		if err != nil {
			return "", err
		}
		key := fmt.Sprintf("%s-%d", project.Key, n)
		taken, err := h.repo.KeyExists(c.Request.Context(), project.ID, key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
		h.logger.Warn("issue key collision, advancing counter",
			zap.String("key", key), zap.String("project_id", project.ID.String()))
	}
	return "", apperror.Internal("could not allocate issue key")
}

func workflowHasState(project *models.Project, stateID string) bool {
	states, err := project.Workflow()
	if err != nil {
		return false
	}
	for _, s := range states {
		if s.ID == stateID {
			return true
		}
	}
	return false
}

// Get handles GET /issues/:issueId (viewer or public project).
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, issueFromContext(c))
}

// List handles GET /projects/:projectId/issues (viewer) with optional
// status, assignee, sprint and backlog filters.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	f.Status = c.Query("status")
	if v := c.Query("assigneeId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.Error(c, apperror.Validation("assigneeId", "invalid user id"))
			return
		}
		f.AssigneeID = &id
	}
	if v := c.Query("sprintId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.Error(c, apperror.Validation("sprintId", "invalid sprint id"))
			return
		}
		f.SprintID = &id
	}
	f.Backlog = c.Query("backlog") == "true"

	list, err := h.repo.ListByProject(c.Request.Context(), access.ProjectID(c), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Search handles GET /projects/:projectId/issues/search?q= (viewer).
func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.Error(c, apperror.Validation("q", "query text required"))
		return
	}
	list, err := h.repo.Search(c.Request.Context(), access.ProjectID(c), q, 50)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateIssueRequest is the body for PATCH /issues/:issueId. Version is
// the optimistic token the caller read; a stale token is a conflict.
type UpdateIssueRequest struct {
	Version        int64       `json:"version" binding:"required"`
	Title          *string     `json:"title"`
	Description    *string     `json:"description"`
	Type           *string     `json:"type"`
	Priority       *string     `json:"priority"`
	AssigneeID     *uuid.UUID  `json:"assignee_id"`
	SprintID       *uuid.UUID  `json:"sprint_id"`
	ParentID       *uuid.UUID  `json:"parent_id"`
	Labels         []uuid.UUID `json:"labels"`
	EstimatedHours *float64    `json:"estimated_hours"`
	StoryPoints    *int        `json:"story_points"`
	DueDate        *time.Time  `json:"due_date"`
}

// Update handles PATCH /issues/:issueId (editor).
func (h *Handler) Update(c *gin.Context) {
	issue := issueFromContext(c)
	var body UpdateIssueRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("version", "required"))
		return
	}
	if body.Title != nil {
		if *body.Title == "" || len(*body.Title) > 500 {
			response.Error(c, apperror.Validation("title", "must be 1-500 characters"))
			return
		}
		issue.Title = *body.Title
	}
	if body.Description != nil {
		issue.Description = *body.Description
	}
	if body.Type != nil {
		if !models.ValidIssueType(*body.Type) {
			response.Error(c, apperror.Validation("type", "unknown issue type"))
			return
		}
		issue.Type = *body.Type
	}
	if body.Priority != nil {
		if !models.ValidIssuePriority(*body.Priority) {
			response.Error(c, apperror.Validation("priority", "unknown priority"))
			return
		}
		issue.Priority = *body.Priority
	}
	if body.AssigneeID != nil {
		issue.AssigneeID = body.AssigneeID
	}
	if body.SprintID != nil {
		issue.SprintID = body.SprintID
	}
	if body.ParentID != nil {
		issue.ParentID = body.ParentID
	}
	if body.Labels != nil {
		issue.Labels = body.Labels
	}
	if body.EstimatedHours != nil {
		issue.EstimatedHours = body.EstimatedHours
	}
	if body.StoryPoints != nil {
		issue.StoryPoints = body.StoryPoints
	}
	if body.DueDate != nil {
		issue.DueDate = body.DueDate
	}

	err := h.repo.Update(c.Request.Context(), issue, body.Version)
	if err == ErrVersionMismatch {
		response.Error(c, apperror.Conflict("issue was modified concurrently, reload and retry"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	h.notifier.Publish(c.Request.Context(), issue.ProjectID, models.EventIssueUpdated, issue)
	response.OK(c, issue)
}

// UpdateStatusRequest is the body for PATCH /issues/:issueId/status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /issues/:issueId/status (editor). The target
// state must exist in the project workflow.
func (h *Handler) UpdateStatus(c *gin.Context) {
	issue := issueFromContext(c)
	project := access.Project(c)
	var body UpdateStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("status", "required"))
		return
	}
	if !workflowHasState(project, body.Status) {
		response.Error(c, apperror.Validation("status", "unknown workflow state: "+body.Status))
		return
	}
	if err := h.repo.UpdateStatus(c.Request.Context(), issue.ID, body.Status); err != nil {
		response.Error(c, err)
		return
	}
	issue.Status = body.Status
	h.notifier.Publish(c.Request.Context(), issue.ProjectID, models.EventIssueUpdated, issue)
	response.OK(c, issue)
}

// Delete handles DELETE /issues/:issueId (editor). Soft delete.
func (h *Handler) Delete(c *gin.Context) {
	issue := issueFromContext(c)
	if err := h.repo.SoftDelete(c.Request.Context(), issue.ID); err != nil {
		response.Error(c, err)
		return
	}
	h.notifier.Publish(c.Request.Context(), issue.ProjectID, models.EventIssueDeleted, gin.H{"id": issue.ID, "key": issue.Key})
	response.NoContent(c)
}

// CreateCommentRequest is the body for POST /issues/:issueId/comments.
type CreateCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// CreateComment handles POST /issues/:issueId/comments. Viewers may
// comment; public read-only access may not.
func (h *Handler) CreateComment(c *gin.Context) {
	if !access.EffectiveRole(c).AtLeast(access.RoleViewer) {
		response.Error(c, apperror.Forbidden(access.RoleViewer.String()))
		return
	}
	issue := issueFromContext(c)
	var body CreateCommentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "required"))
		return
	}
	cm := &models.Comment{IssueID: issue.ID, AuthorID: access.UserID(c), Body: body.Body}
	if err := h.repo.CreateComment(c.Request.Context(), cm); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cm)
}

// ListComments handles GET /issues/:issueId/comments (viewer or public).
func (h *Handler) ListComments(c *gin.Context) {
	list, err := h.repo.ListComments(c.Request.Context(), issueFromContext(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
