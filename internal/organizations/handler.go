package organizations

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/middleware"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/internal/notify"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Slug must be lowercase alphanumeric and hyphens only, 2-64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo *Repository
	mail *notify.Mailer
}

// NewHandler creates an organizations handler.
func NewHandler(repo *Repository, mail *notify.Mailer) *Handler {
	return &Handler{repo: repo, mail: mail}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

// Create handles POST /organizations. The creator becomes owner.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "name and slug required"))
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.Error(c, apperror.Validation("slug", "must be 2-64 chars, lowercase letters, numbers, hyphens only"))
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.Error(c, apperror.Validation("name", "must be 1-255 characters"))
		return
	}
	org := &models.Organization{Name: body.Name, Slug: body.Slug, CreatedBy: userID}
	if err := h.repo.Create(c.Request.Context(), org); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			response.Error(c, apperror.Conflict("an organization with this slug already exists"))
			return
		}
		response.Error(c, err)
		return
	}
	if err := h.repo.UpsertMember(c.Request.Context(), org.ID, userID, models.OrgRoleOwner); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, org)
}

// UpdateOrganizationRequest is the body for PATCH /organizations/:id.
type UpdateOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}

// Update handles PATCH /organizations/:id. Owner or admin only.
func (h *Handler) Update(c *gin.Context) {
	org, role, ok := h.loadOrgWithRole(c)
	if !ok {
		return
	}
	if !models.IsOrgAdminRole(role) {
		response.Error(c, apperror.Forbidden(models.OrgRoleAdmin))
		return
	}
	var body UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("name", "required"))
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.Error(c, apperror.Validation("name", "must be 1-255 characters"))
		return
	}
	if err := h.repo.Update(c.Request.Context(), org.ID, body.Name); err != nil {
		response.Error(c, err)
		return
	}
	org.Name = body.Name
	response.OK(c, org)
}

// Get handles GET /organizations/:id. Any member may read.
func (h *Handler) Get(c *gin.Context) {
	org, role, ok := h.loadOrgWithRole(c)
	if !ok {
		return
	}
	if role == "" {
		response.Error(c, apperror.Forbidden(models.OrgRoleMember))
		return
	}
	response.OK(c, org)
}

// ListMine handles GET /organizations.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	orgs, err := h.repo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, orgs)
}

// MemberRequest is the body for member add/update.
type MemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   string    `json:"role" binding:"required"`
}

// AddMember handles POST /organizations/:id/members. Owner or admin only.
// Adding an existing member updates their role (one row per org+user).
func (h *Handler) AddMember(c *gin.Context) {
	org, role, ok := h.loadOrgWithRole(c)
	if !ok {
		return
	}
	if !models.IsOrgAdminRole(role) {
		response.Error(c, apperror.Forbidden(models.OrgRoleAdmin))
		return
	}
	var body MemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "user_id and role required"))
		return
	}
	if !models.ValidOrgRole(body.Role) {
		response.Error(c, apperror.Validation("role", "must be owner, admin or member"))
		return
	}
	// Only owners may grant ownership.
	if body.Role == models.OrgRoleOwner && role != models.OrgRoleOwner {
		response.Error(c, apperror.Forbidden(models.OrgRoleOwner))
		return
	}
	if err := h.demotionGuard(c, org.ID, body.UserID, body.Role); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.repo.UpsertMember(c.Request.Context(), org.ID, body.UserID, body.Role); err != nil {
		response.Error(c, err)
		return
	}
	h.mail.OrgMemberAdded(c.Request.Context(), org, body.UserID, body.Role)
	response.OK(c, gin.H{"user_id": body.UserID, "role": body.Role})
}

// RemoveMember handles DELETE /organizations/:id/members/:userId. Owner or
// admin only; removing the last owner is a conflict.
func (h *Handler) RemoveMember(c *gin.Context) {
	org, role, ok := h.loadOrgWithRole(c)
	if !ok {
		return
	}
	if !models.IsOrgAdminRole(role) {
		response.Error(c, apperror.Forbidden(models.OrgRoleAdmin))
		return
	}
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.Error(c, apperror.Validation("userId", "invalid user id"))
		return
	}
	if err := h.demotionGuard(c, org.ID, targetID, ""); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.repo.RemoveMember(c.Request.Context(), org.ID, targetID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMembers handles GET /organizations/:id/members. Any member may read.
func (h *Handler) ListMembers(c *gin.Context) {
	org, role, ok := h.loadOrgWithRole(c)
	if !ok {
		return
	}
	if role == "" {
		response.Error(c, apperror.Forbidden(models.OrgRoleMember))
		return
	}
	members, err := h.repo.ListMembers(c.Request.Context(), org.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, members)
}

// demotionGuard rejects role changes or removals that would leave the
// organization without an owner. newRole is empty for removal.
func (h *Handler) demotionGuard(c *gin.Context, orgID, targetID uuid.UUID, newRole string) error {
	current, err := h.repo.GetOrganizationRole(c.Request.Context(), orgID, targetID)
	if err != nil {
		return err
	}
	if current != models.OrgRoleOwner || newRole == models.OrgRoleOwner {
		return nil
	}
	owners, err := h.repo.CountOwners(c.Request.Context(), orgID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return apperror.Conflict("organization must keep at least one owner")
	}
	return nil
}

// loadOrgWithRole parses :id, loads the org (404) and the caller's role.
func (h *Handler) loadOrgWithRole(c *gin.Context) (*models.Organization, string, bool) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("id", "invalid organization id"))
		return nil, "", false
	}
	org, err := h.repo.GetByID(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, err)
		return nil, "", false
	}
	if org == nil {
		response.Error(c, apperror.NotFound("organization", orgID.String()))
		return nil, "", false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, err := h.repo.GetOrganizationRole(c.Request.Context(), org.ID, userID)
	if err != nil {
		response.Error(c, err)
		return nil, "", false
	}
	return org, role, true
}
