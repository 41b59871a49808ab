package issues

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

const maxBulkIssues = 200

// BulkResult reports the outcome of a bulk operation. Rows are patched
// independently: one failure never blocks the rest.
type BulkResult struct {
	Updated []uuid.UUID   `json:"updated"`
	Skipped []BulkSkipped `json:"skipped"`
}

// BulkSkipped names one issue left untouched and why.
type BulkSkipped struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

// bulkLoad batch-reads the requested issues and filters out those in
// projects where the caller is not at least an editor. Missing issues and
// inaccessible projects become skipped entries, not errors.
func (h *Handler) bulkLoad(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*models.Issue, *BulkResult, error) {
	result := &BulkResult{Updated: []uuid.UUID{}, Skipped: []BulkSkipped{}}

	found, err := h.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[uuid.UUID]*models.Issue, len(found))
	for _, i := range found {
		byID[i.ID] = i
	}

	editable := make(map[uuid.UUID]bool) // project -> caller may edit
	for _, i := range found {
		if _, checked := editable[i.ProjectID]; checked {
			continue
		}
		project, err := h.projects.GetProject(ctx, i.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		if project == nil {
			editable[i.ProjectID] = false
			continue
		}
		role, err := h.eval.EffectiveRole(ctx, project, userID)
		if err != nil {
			return nil, nil, err
		}
		editable[i.ProjectID] = role.AtLeast(access.RoleEditor)
	}

	var selected []*models.Issue
	for _, id := range ids {
		issue, ok := byID[id]
		if !ok {
			result.Skipped = append(result.Skipped, BulkSkipped{ID: id, Reason: "not found"})
			continue
		}
		if !editable[issue.ProjectID] {
			result.Skipped = append(result.Skipped, BulkSkipped{ID: id, Reason: "editor role required"})
			continue
		}
		selected = append(selected, issue)
	}
	return selected, result, nil
}

func (h *Handler) runBulk(c *gin.Context, ids []uuid.UUID, op string, apply func(ctx context.Context, issue *models.Issue) error) {
	if len(ids) == 0 || len(ids) > maxBulkIssues {
		response.Error(c, apperror.Validation("issue_ids", "between 1 and 200 issue ids required"))
		return
	}
	userID := access.UserID(c)
	ctx := c.Request.Context()

	selected, result, err := h.bulkLoad(ctx, userID, ids)
	if err != nil {
		response.Error(c, err)
		return
	}
	for _, issue := range selected {
		if err := apply(ctx, issue); err != nil {
			h.logger.Warn("bulk operation row failed",
				zap.String("op", op),
				zap.String("issue_id", issue.ID.String()),
				zap.Error(err))
			result.Skipped = append(result.Skipped, BulkSkipped{ID: issue.ID, Reason: "write failed"})
			continue
		}
		result.Updated = append(result.Updated, issue.ID)
		h.notifier.Publish(ctx, issue.ProjectID, models.EventIssueUpdated, issue)
	}
	response.OK(c, result)
}

// BulkStatusRequest is the body for POST /issues/bulk/status.
type BulkStatusRequest struct {
	IssueIDs []uuid.UUID `json:"issue_ids" binding:"required"`
	Status   string      `json:"status" binding:"required"`
}

// BulkUpdateStatus moves many issues to a workflow state. The state must
// exist in each issue's own project workflow; mismatches are skipped.
func (h *Handler) BulkUpdateStatus(c *gin.Context) {
	var body BulkStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "issue_ids and status required"))
		return
	}
	projectWorkflow := make(map[uuid.UUID]bool)
	h.runBulk(c, body.IssueIDs, "status", func(ctx context.Context, issue *models.Issue) error {
		ok, checked := projectWorkflow[issue.ProjectID]
		if !checked {
			project, err := h.projects.GetProject(ctx, issue.ProjectID)
			if err != nil {
				return err
			}
			ok = project != nil && workflowHasState(project, body.Status)
			projectWorkflow[issue.ProjectID] = ok
		}
		if !ok {
			return apperror.Validation("status", "unknown workflow state")
		}
		issue.Status = body.Status
		return h.repo.UpdateStatus(ctx, issue.ID, body.Status)
	})
}

// BulkAssignRequest is the body for POST /issues/bulk/assign.
type BulkAssignRequest struct {
	IssueIDs   []uuid.UUID `json:"issue_ids" binding:"required"`
	AssigneeID *uuid.UUID  `json:"assignee_id"` // null unassigns
}

// BulkAssign reassigns many issues.
func (h *Handler) BulkAssign(c *gin.Context) {
	var body BulkAssignRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "issue_ids required"))
		return
	}
	h.runBulk(c, body.IssueIDs, "assign", func(ctx context.Context, issue *models.Issue) error {
		issue.AssigneeID = body.AssigneeID
		return h.repo.UpdateAssignee(ctx, issue.ID, body.AssigneeID)
	})
}

// BulkLabelsRequest is the body for POST /issues/bulk/labels.
type BulkLabelsRequest struct {
	IssueIDs []uuid.UUID `json:"issue_ids" binding:"required"`
	LabelIDs []uuid.UUID `json:"label_ids" binding:"required"`
}

// BulkAddLabels appends labels to many issues.
func (h *Handler) BulkAddLabels(c *gin.Context) {
	var body BulkLabelsRequest
	if err := c.ShouldBindJSON(&body); err != nil || len(body.LabelIDs) == 0 {
		response.Error(c, apperror.Validation("body", "issue_ids and label_ids required"))
		return
	}
	h.runBulk(c, body.IssueIDs, "labels", func(ctx context.Context, issue *models.Issue) error {
		return h.repo.AddLabels(ctx, issue.ID, body.LabelIDs)
	})
}

// BulkSprintRequest is the body for POST /issues/bulk/sprint.
type BulkSprintRequest struct {
	IssueIDs []uuid.UUID `json:"issue_ids" binding:"required"`
	SprintID *uuid.UUID  `json:"sprint_id"` // null moves to backlog
}

// BulkMoveToSprint moves many issues into (or out of) a sprint.
func (h *Handler) BulkMoveToSprint(c *gin.Context) {
	var body BulkSprintRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "issue_ids required"))
		return
	}
	h.runBulk(c, body.IssueIDs, "sprint", func(ctx context.Context, issue *models.Issue) error {
		issue.SprintID = body.SprintID
		return h.repo.UpdateSprint(ctx, issue.ID, body.SprintID)
	})
}

// BulkDeleteRequest is the body for POST /issues/bulk/delete.
type BulkDeleteRequest struct {
	IssueIDs []uuid.UUID `json:"issue_ids" binding:"required"`
}

// BulkDelete soft-deletes many issues.
func (h *Handler) BulkDelete(c *gin.Context) {
	var body BulkDeleteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("body", "issue_ids required"))
		return
	}
	h.runBulk(c, body.IssueIDs, "delete", func(ctx context.Context, issue *models.Issue) error {
		return h.repo.SoftDelete(ctx, issue.ID)
	})
}
