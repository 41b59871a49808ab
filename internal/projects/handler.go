package projects

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/internal/notify"
	"github.com/trackline/backend/internal/organizations"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Project key: 2-10 uppercase letters/digits, starting with a letter.
var keyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// Handler handles project HTTP endpoints.
type Handler struct {
	repo *Repository
	orgs *organizations.Repository
	eval *access.Evaluator
	mail *notify.Mailer
}

// NewHandler creates a projects handler.
func NewHandler(repo *Repository, orgs *organizations.Repository, eval *access.Evaluator, mail *notify.Mailer) *Handler {
	return &Handler{repo: repo, orgs: orgs, eval: eval, mail: mail}
}

// CreateProjectRequest is the body for POST /projects.
type CreateProjectRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" binding:"required"`
	Key            string    `json:"key" binding:"required"`
	Name           string    `json:"name" binding:"required"`
	Description    string    `json:"description"`
	IsPublic       bool      `json:"is_public"`
}

// Create handles POST /projects. Any organization member may create a
// project there; the creator holds implicit admin forever.
func (h *Handler) Create(c *gin.Context) {
	userID := access.UserID(c)
	var body CreateProjectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "organization_id, key and name required"))
		return
	}
	body.Key = strings.ToUpper(strings.TrimSpace(body.Key))
	if !keyRegex.MatchString(body.Key) {
		response.Error(c, apperror.Validation("key", "must be 2-10 uppercase letters or digits, starting with a letter"))
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.Error(c, apperror.Validation("name", "must be 1-255 characters"))
		return
	}
	orgRole, err := h.orgs.GetOrganizationRole(c.Request.Context(), body.OrganizationID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if orgRole == "" {
		response.Error(c, apperror.Forbidden(models.OrgRoleMember))
		return
	}
	p := &models.Project{
		OrganizationID: body.OrganizationID,
		Key:            body.Key,
		Name:           body.Name,
		Description:    body.Description,
		CreatedBy:      userID,
		IsPublic:       body.IsPublic,
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			response.Error(c, apperror.Conflict("a project with this key already exists in the organization"))
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// Get handles GET /projects/:projectId (viewer or public).
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, access.Project(c))
}

// ListMine handles GET /projects. Only projects the caller can access are
// returned; inaccessible ones are silently omitted, never an error.
func (h *Handler) ListMine(c *gin.Context) {
	userID := access.UserID(c)
	list, err := h.repo.ListAccessible(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateProjectRequest is the body for PATCH /projects/:projectId.
type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

// Update handles PATCH /projects/:projectId (editor).
func (h *Handler) Update(c *gin.Context) {
	p := access.Project(c)
	var body UpdateProjectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "invalid request body"))
		return
	}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if len(name) < 1 || len(name) > 255 {
			response.Error(c, apperror.Validation("name", "must be 1-255 characters"))
			return
		}
		p.Name = name
	}
	if body.Description != nil {
		p.Description = *body.Description
	}
	if body.IsPublic != nil {
		p.IsPublic = *body.IsPublic
	}
	if err := h.repo.Update(c.Request.Context(), p.ID, p.Name, p.Description, p.IsPublic); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// UpdateWorkflowRequest is the body for PUT /projects/:projectId/workflow.
type UpdateWorkflowRequest struct {
	States []models.WorkflowState `json:"states" binding:"required"`
}

// UpdateWorkflow handles PUT /projects/:projectId/workflow (admin).
func (h *Handler) UpdateWorkflow(c *gin.Context) {
	p := access.Project(c)
	var body UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&body); err != nil || len(body.States) == 0 {
		response.Error(c, apperror.Validation("states", "at least one workflow state required"))
		return
	}
	seen := make(map[string]bool, len(body.States))
	for _, s := range body.States {
		if s.ID == "" || s.Name == "" {
			response.Error(c, apperror.Validation("states", "every state needs an id and a name"))
			return
		}
		if seen[s.ID] {
			response.Error(c, apperror.Validation("states", "duplicate state id: "+s.ID))
			return
		}
		seen[s.ID] = true
	}
	raw, err := json.Marshal(body.States)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.repo.UpdateWorkflow(c.Request.Context(), p.ID, raw); err != nil {
		response.Error(c, err)
		return
	}
	p.WorkflowStates = raw
	response.OK(c, p)
}

// Delete handles DELETE /projects/:projectId (admin). Soft delete.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.repo.SoftDelete(c.Request.Context(), access.ProjectID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Restore handles POST /projects/:projectId/restore. The project is
// soft-deleted so the scoped middleware cannot load it; the role check
// runs here against the tombstoned row instead.
func (h *Handler) Restore(c *gin.Context) {
	userID := access.UserID(c)
	if userID == uuid.Nil {
		response.Error(c, apperror.Unauthenticated())
		return
	}
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		response.Error(c, apperror.Validation("projectId", "invalid project id"))
		return
	}
	p, err := h.repo.GetIncludingDeleted(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if p == nil {
		response.Error(c, apperror.NotFound("project", projectID.String()))
		return
	}
	role, err := h.eval.EffectiveRole(c.Request.Context(), p, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !role.AtLeast(access.RoleAdmin) {
		response.Error(c, apperror.Forbidden(access.RoleAdmin.String()))
		return
	}
	if err := h.repo.Restore(c.Request.Context(), p.ID); err != nil {
		response.Error(c, err)
		return
	}
	p.DeletedAt = nil
	response.OK(c, p)
}

// MyRole handles GET /projects/:projectId/role (viewer or public).
func (h *Handler) MyRole(c *gin.Context) {
	role := access.EffectiveRole(c)
	response.OK(c, gin.H{"role": role.String(), "is_public": access.Project(c).IsPublic})
}

// MemberRequest is the body for member add/update.
type MemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   string    `json:"role" binding:"required"`
}

// AddMember handles POST /projects/:projectId/members (admin). Re-adding a
// previously removed user creates a fresh membership row.
func (h *Handler) AddMember(c *gin.Context) {
	var body MemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "user_id and role required"))
		return
	}
	if access.ParseRole(body.Role) == access.RoleNone {
		response.Error(c, apperror.Validation("role", "must be viewer, editor or admin"))
		return
	}
	userID := access.UserID(c)
	if err := h.repo.UpsertMember(c.Request.Context(), access.ProjectID(c), body.UserID, userID, body.Role); err != nil {
		response.Error(c, err)
		return
	}
	h.mail.ProjectMemberAdded(c.Request.Context(), access.Project(c), body.UserID, body.Role)
	response.OK(c, gin.H{"user_id": body.UserID, "role": body.Role})
}

// RemoveMember handles DELETE /projects/:projectId/members/:userId (admin).
// Removal is a soft delete of the membership row.
func (h *Handler) RemoveMember(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.Error(c, apperror.Validation("userId", "invalid user id"))
		return
	}
	if err := h.repo.RemoveMember(c.Request.Context(), access.ProjectID(c), targetID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMembers handles GET /projects/:projectId/members (viewer).
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.repo.ListMembers(c.Request.Context(), access.ProjectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, members)
}
