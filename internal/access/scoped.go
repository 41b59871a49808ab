package access

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/middleware"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// Context keys set by the scoped middleware for downstream handlers.
const (
	// ContextProjectID is the validated project ID.
	ContextProjectID = "project_id"
	// ContextProject is the loaded *models.Project.
	ContextProject = "project"
	// ContextRole is the caller's effective Role in the project.
	ContextRole = "project_role"
	// ContextEntity is the resolved entity for entity-scoped routes.
	ContextEntity = "scoped_entity"
)

// ProjectStore loads projects. Implementations return (nil, nil) when the
// project does not exist or is soft-deleted.
type ProjectStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// ResolveFunc loads an entity by ID and reports its owning project.
// Implementations return (nil, uuid.Nil, nil) when the entity is absent.
type ResolveFunc func(ctx context.Context, id uuid.UUID) (entity interface{}, projectID uuid.UUID, err error)

// Checker builds role-gated middleware. Gate ordering is fixed: identity
// (upstream JWT middleware) -> entity/project resolution (NOT_FOUND) ->
// role evaluation (FORBIDDEN) -> handler. No handler body runs unless all
// three gates pass.
type Checker struct {
	projects ProjectStore
	eval     *Evaluator
}

// NewChecker creates the middleware factory used by all route groups.
func NewChecker(projects ProjectStore, eval *Evaluator) *Checker {
	return &Checker{projects: projects, eval: eval}
}

// Evaluator exposes the underlying role evaluator for callers that degrade
// gracefully (cross-project listings) instead of failing.
func (a *Checker) Evaluator() *Evaluator { return a.eval }

// RequireProject gates a route on the ":projectId" parameter.
func (a *Checker) RequireProject(min Role) gin.HandlerFunc {
	return a.RequireProjectParam("projectId", min)
}

// RequireProjectParam gates a route on a named project ID parameter.
// Loads the project (404 if missing), evaluates the caller's role (403
// with the required role if insufficient) and injects projectID, project
// and role into the request context.
func (a *Checker) RequireProjectParam(param string, min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param(param))
		if err != nil {
			response.AbortError(c, apperror.Validation(param, "invalid project id"))
			return
		}
		a.admit(c, projectID, nil, min)
	}
}

// RequireEntity gates a route on an entity ID parameter: the entity is
// resolved first (404 before any permission check), its project derived,
// then the project-level role check runs. The resolved entity is injected
// under ContextEntity.
func (a *Checker) RequireEntity(resource, param string, resolve ResolveFunc, min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param(param))
		if err != nil {
			response.AbortError(c, apperror.Validation(param, "invalid "+resource+" id"))
			return
		}
		entity, projectID, err := resolve(c.Request.Context(), id)
		if err != nil {
			response.AbortError(c, err)
			return
		}
		if entity == nil {
			response.AbortError(c, apperror.NotFound(resource, id.String()))
			return
		}
		a.admit(c, projectID, entity, min)
	}
}

// admit runs the shared project-resolution and role gates.
func (a *Checker) admit(c *gin.Context, projectID uuid.UUID, entity interface{}, min Role) {
	userID := UserID(c)
	if userID == uuid.Nil {
		response.AbortError(c, apperror.Unauthenticated())
		return
	}

	project, err := a.projects.GetProject(c.Request.Context(), projectID)
	if err != nil {
		response.AbortError(c, err)
		return
	}
	if project == nil {
		response.AbortError(c, apperror.NotFound("project", projectID.String()))
		return
	}

	// A project-scoped API key is only valid inside its own project, no
	// matter what roles its owner holds elsewhere.
	if v, ok := c.Get(middleware.ContextAPIKey); ok {
		if key, _ := v.(*models.APIKey); key != nil && key.ProjectID != nil && *key.ProjectID != project.ID {
			response.AbortError(c, apperror.Forbidden(""))
			return
		}
	}

	role, err := a.eval.EffectiveRole(c.Request.Context(), project, userID)
	if err != nil {
		response.AbortError(c, err)
		return
	}
	if min <= RoleViewer {
		// Read gate: any role, or a public project. Public access stays
		// read-only because role remains RoleNone for the handler.
		if !(role.AtLeast(RoleViewer) || project.IsPublic) {
			response.AbortError(c, apperror.Forbidden(""))
			return
		}
	} else if !role.AtLeast(min) {
		response.AbortError(c, apperror.Forbidden(min.String()))
		return
	}

	c.Set(ContextProjectID, project.ID)
	c.Set(ContextProject, project)
	c.Set(ContextRole, role)
	if entity != nil {
		c.Set(ContextEntity, entity)
	}
	c.Next()
}

// UserID returns the authenticated user ID set by the JWT middleware, or
// uuid.Nil when the request is unauthenticated.
func UserID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// Project returns the project injected by a scoped middleware.
func Project(c *gin.Context) *models.Project {
	p, _ := c.MustGet(ContextProject).(*models.Project)
	return p
}

// ProjectID returns the validated project ID from context.
func ProjectID(c *gin.Context) uuid.UUID {
	id, _ := c.MustGet(ContextProjectID).(uuid.UUID)
	return id
}

// EffectiveRole returns the caller's role injected by a scoped middleware.
func EffectiveRole(c *gin.Context) Role {
	r, _ := c.MustGet(ContextRole).(Role)
	return r
}

// Entity returns the entity injected by RequireEntity.
func Entity(c *gin.Context) interface{} {
	v, _ := c.Get(ContextEntity)
	return v
}
