package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/backend/internal/middleware"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

type fakeProjectStore struct {
	projects map[uuid.UUID]*models.Project
}

func (s *fakeProjectStore) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	return s.projects[id], nil
}

// identityAs mimics the JWT middleware for tests.
func identityAs(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *apperror.Error {
	t.Helper()
	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func setupScoped(t *testing.T) (*fakeProjectStore, *fakeMemberStore, *Checker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	projects := &fakeProjectStore{projects: map[uuid.UUID]*models.Project{}}
	members := &fakeMemberStore{roles: map[uuid.UUID]string{}}
	eval := NewEvaluator(&fakeOrgStore{roles: map[uuid.UUID]string{}}, members)
	return projects, members, NewChecker(projects, eval)
}

func TestRequireProjectRoleGate(t *testing.T) {
	projects, members, checker := setupScoped(t)

	viewer := uuid.New()
	project := newTestProject(uuid.New(), false)
	projects.projects[project.ID] = project
	members.roles[viewer] = "viewer"

	router := gin.New()
	handlerRan := false
	router.PATCH("/projects/:projectId", identityAs(viewer), checker.RequireProject(RoleEditor),
		func(c *gin.Context) { handlerRan = true })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/projects/"+project.ID.String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, handlerRan, "handler must not run after a failed gate")
	appErr := decodeError(t, w)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)
	assert.Equal(t, "editor", appErr.RequiredRole)
}

func TestRequireProjectMissingIs404BeforeRoleCheck(t *testing.T) {
	_, _, checker := setupScoped(t)

	// The caller has no roles anywhere, but an absent project must read as
	// NOT_FOUND, never FORBIDDEN.
	router := gin.New()
	router.GET("/projects/:projectId", identityAs(uuid.New()), checker.RequireProject(RoleViewer),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/projects/"+uuid.NewString(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	appErr := decodeError(t, w)
	assert.Equal(t, apperror.CodeNotFound, appErr.Code)
	assert.Equal(t, "project", appErr.Resource)
}

func TestRequireProjectUnauthenticated(t *testing.T) {
	projects, _, checker := setupScoped(t)
	project := newTestProject(uuid.New(), true)
	projects.projects[project.ID] = project

	router := gin.New()
	router.GET("/projects/:projectId", identityAs(uuid.Nil), checker.RequireProject(RoleViewer),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/projects/"+project.ID.String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireProjectPublicReadOnly(t *testing.T) {
	projects, _, checker := setupScoped(t)
	stranger := uuid.New()
	project := newTestProject(uuid.New(), true)
	projects.projects[project.ID] = project

	router := gin.New()
	var injectedRole Role
	router.GET("/projects/:projectId", identityAs(stranger), checker.RequireProject(RoleViewer),
		func(c *gin.Context) {
			injectedRole = EffectiveRole(c)
			c.Status(http.StatusOK)
		})
	router.PATCH("/projects/:projectId", identityAs(stranger), checker.RequireProject(RoleEditor),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	// Public project: read passes, but the handler sees no role.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/"+project.ID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, RoleNone, injectedRole)

	// Writes stay forbidden.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/projects/"+project.ID.String(), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireEntityResolvesBeforeRoleCheck(t *testing.T) {
	projects, members, checker := setupScoped(t)

	viewer := uuid.New()
	project := newTestProject(uuid.New(), false)
	projects.projects[project.ID] = project
	members.roles[viewer] = "viewer"

	issueID := uuid.New()
	issue := &models.Issue{ID: issueID, ProjectID: project.ID}
	resolve := func(_ context.Context, id uuid.UUID) (interface{}, uuid.UUID, error) {
		if id == issueID {
			return issue, project.ID, nil
		}
		return nil, uuid.Nil, nil
	}

	router := gin.New()
	var injected interface{}
	router.GET("/issues/:issueId", identityAs(viewer),
		checker.RequireEntity("issue", "issueId", resolve, RoleViewer),
		func(c *gin.Context) {
			injected = Entity(c)
			c.Status(http.StatusOK)
		})
	router.DELETE("/issues/:issueId", identityAs(viewer),
		checker.RequireEntity("issue", "issueId", resolve, RoleEditor),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	// Unknown entity: 404 with the resource name, even though the caller
	// would also have failed the role check.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/issues/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "issue", decodeError(t, w).Resource)

	// Known entity, insufficient role: 403.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/issues/"+issueID.String(), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Known entity, sufficient role: the resolved entity reaches the handler.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/issues/"+issueID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, issue, injected)
}

func TestProjectScopedAPIKeyConfinedToItsProject(t *testing.T) {
	projects, members, checker := setupScoped(t)

	caller := uuid.New()
	home := newTestProject(uuid.New(), false)
	other := newTestProject(uuid.New(), false)
	projects.projects[home.ID] = home
	projects.projects[other.ID] = other
	// The key owner is an editor in both projects.
	members.roles[caller] = "editor"

	keyAs := func(key *models.APIKey) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(middleware.ContextUserID, caller)
			c.Set(middleware.ContextAPIKey, key)
			c.Next()
		}
	}
	scopedKey := &models.APIKey{ID: uuid.New(), UserID: caller, ProjectID: &home.ID}
	unscopedKey := &models.APIKey{ID: uuid.New(), UserID: caller}

	router := gin.New()
	router.GET("/scoped/:projectId", keyAs(scopedKey), checker.RequireProject(RoleViewer),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/unscoped/:projectId", keyAs(unscopedKey), checker.RequireProject(RoleViewer),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	// Inside its own project the scoped key behaves normally.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scoped/"+home.ID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Any other project is forbidden regardless of the owner's roles there.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scoped/"+other.ID.String(), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, decodeError(t, w).Code)

	// A key without project scoping is unaffected.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unscoped/"+other.ID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireProjectInvalidID(t *testing.T) {
	_, _, checker := setupScoped(t)

	router := gin.New()
	router.GET("/projects/:projectId", identityAs(uuid.New()), checker.RequireProject(RoleViewer),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decodeError(t, w).Code)
}
