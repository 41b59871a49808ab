package assistant

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/issues"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/internal/sprints"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Handler handles the project assistant endpoint.
type Handler struct {
	client  *Client
	issues  *issues.Repository
	sprints *sprints.Repository
}

// NewHandler creates an assistant handler.
func NewHandler(client *Client, issueRepo *issues.Repository, sprintRepo *sprints.Repository) *Handler {
	return &Handler{client: client, issues: issueRepo, sprints: sprintRepo}
}

// AskRequest is the body for POST /projects/:projectId/assistant.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask handles POST /projects/:projectId/assistant (viewer). Builds a
// compact project snapshot as the system prompt, relays the question and
// returns the answer. Provider failures surface as INTERNAL and are
// never retried.
func (h *Handler) Ask(c *gin.Context) {
	if !h.client.Enabled() {
		response.Error(c, apperror.Internal("assistant is not configured"))
		return
	}
	var body AskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperror.Validation("question", "required"))
		return
	}
	if len(body.Question) > 4000 {
		response.Error(c, apperror.Validation("question", "must be at most 4000 characters"))
		return
	}
	project := access.Project(c)
	ctx := c.Request.Context()

	system, err := h.buildContext(c, project)
	if err != nil {
		response.Error(c, err)
		return
	}
	answer, err := h.client.Complete(ctx, system, body.Question)
	if err != nil {
		response.Error(c, apperror.Internal("assistant provider failed"))
		return
	}
	response.OK(c, gin.H{"answer": answer})
}

// buildContext summarizes the project: recent issues and sprint state.
func (h *Handler) buildContext(c *gin.Context, project *models.Project) (string, error) {
	ctx := c.Request.Context()
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a project assistant for %q (key %s). Answer using only this snapshot.\n\n",
		project.Name, project.Key)

	sprintList, err := h.sprints.ListByProject(ctx, project.ID)
	if err != nil {
		return "", err
	}
	for _, s := range sprintList {
		if s.Status == models.SprintActive {
			fmt.Fprintf(&sb, "Active sprint: %q (goal: %s)\n", s.Name, s.Goal)
		}
	}

	recent, err := h.issues.ListByProject(ctx, project.ID, issues.ListFilter{})
	if err != nil {
		return "", err
	}
	if len(recent) > 30 {
		recent = recent[:30]
	}
	sb.WriteString("\nRecent issues:\n")
	for _, i := range recent {
		fmt.Fprintf(&sb, "- %s [%s/%s] %s (status: %s)\n", i.Key, i.Type, i.Priority, i.Title, i.Status)
	}
	return sb.String(), nil
}
