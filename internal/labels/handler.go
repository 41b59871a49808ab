package labels

import (
	"context"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/issues"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

var colorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Handler handles label HTTP endpoints.
type Handler struct {
	repo   *Repository
	issues *issues.Repository
	logger *zap.Logger
}

// NewHandler creates a labels handler.
func NewHandler(repo *Repository, issueRepo *issues.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, issues: issueRepo, logger: logger}
}

// Resolve loads a label and reports its project, for the entity-scoped
// middleware.
func (h *Handler) Resolve(ctx context.Context, id uuid.UUID) (interface{}, uuid.UUID, error) {
	l, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if l == nil {
		return nil, uuid.Nil, nil
	}
	return l, l.ProjectID, nil
}

func labelFromContext(c *gin.Context) *models.Label {
	l, _ := access.Entity(c).(*models.Label)
	return l
}

// LabelRequest is the body for label create/update.
type LabelRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

func (b *LabelRequest) validate() *apperror.Error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" || len(b.Name) > 100 {
		return apperror.Validation("name", "must be 1-100 characters")
	}
	if b.Color == "" {
		b.Color = "#808080"
	}
	if !colorRegex.MatchString(b.Color) {
		return apperror.Validation("color", "must be a hex color like #FF5733")
	}
	return nil
}

// Create handles POST /projects/:projectId/labels (editor).
func (h *Handler) Create(c *gin.Context) {
	var body LabelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("name", "required"))
		return
	}
	if verr := body.validate(); verr != nil {
		response.Error(c, verr)
		return
	}
	l := &models.Label{ProjectID: access.ProjectID(c), Name: body.Name, Color: body.Color}
	if err := h.repo.Create(c.Request.Context(), l); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			response.Error(c, apperror.Conflict("a label with this name already exists"))
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, l)
}

// List handles GET /projects/:projectId/labels (viewer or public).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByProject(c.Request.Context(), access.ProjectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /labels/:labelId (editor).
func (h *Handler) Update(c *gin.Context) {
	l := labelFromContext(c)
	var body LabelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("name", "required"))
		return
	}
	if verr := body.validate(); verr != nil {
		response.Error(c, verr)
		return
	}
	if err := h.repo.Update(c.Request.Context(), l.ID, body.Name, body.Color); err != nil {
		response.Error(c, err)
		return
	}
	l.Name, l.Color = body.Name, body.Color
	response.OK(c, l)
}

// Delete handles DELETE /labels/:labelId (editor). The label is removed
// from every issue carrying it: a batched read, then independent
// per-issue writes so one failed row never blocks the rest.
func (h *Handler) Delete(c *gin.Context) {
	l := labelFromContext(c)
	ctx := c.Request.Context()

	ids, err := h.issues.ListByLabel(ctx, l.ProjectID, l.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	removed := 0
	for _, issueID := range ids {
		if err := h.issues.RemoveLabel(ctx, issueID, l.ID); err != nil {
			h.logger.Warn("label removal from issue failed",
				zap.String("label_id", l.ID.String()),
				zap.String("issue_id", issueID.String()),
				zap.Error(err))
			continue
		}
		removed++
	}
	if err := h.repo.Delete(ctx, l.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": l.ID, "issues_updated": removed})
}
