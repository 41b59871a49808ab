package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/backend/internal/models"
)

type fakeOrgStore struct {
	roles map[uuid.UUID]string // userID -> org role
}

func (s *fakeOrgStore) GetOrganizationRole(_ context.Context, _, userID uuid.UUID) (string, error) {
	return s.roles[userID], nil
}

type fakeMemberStore struct {
	roles map[uuid.UUID]string // userID -> project role; soft-deleted rows are absent
}

func (s *fakeMemberStore) GetProjectMemberRole(_ context.Context, _, userID uuid.UUID) (string, error) {
	return s.roles[userID], nil
}

func newTestProject(createdBy uuid.UUID, isPublic bool) *models.Project {
	return &models.Project{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		CreatedBy:      createdBy,
		IsPublic:       isPublic,
	}
}

func TestEffectiveRoleCreatorShortcut(t *testing.T) {
	creator := uuid.New()
	project := newTestProject(creator, false)
	// Even a conflicting viewer membership row cannot demote the creator.
	eval := NewEvaluator(
		&fakeOrgStore{roles: map[uuid.UUID]string{}},
		&fakeMemberStore{roles: map[uuid.UUID]string{creator: "viewer"}},
	)

	role, err := eval.EffectiveRole(context.Background(), project, creator)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestEffectiveRoleOrgAdminShortcut(t *testing.T) {
	owner := uuid.New()
	admin := uuid.New()
	member := uuid.New()
	project := newTestProject(uuid.New(), false)
	eval := NewEvaluator(
		&fakeOrgStore{roles: map[uuid.UUID]string{
			owner:  models.OrgRoleOwner,
			admin:  models.OrgRoleAdmin,
			member: models.OrgRoleMember,
		}},
		&fakeMemberStore{roles: map[uuid.UUID]string{}},
	)

	for _, u := range []uuid.UUID{owner, admin} {
		role, err := eval.EffectiveRole(context.Background(), project, u)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, role)
	}

	// Plain org membership grants nothing by itself.
	role, err := eval.EffectiveRole(context.Background(), project, member)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestEffectiveRoleMembershipRow(t *testing.T) {
	viewer := uuid.New()
	editor := uuid.New()
	removed := uuid.New() // soft-deleted row: the store returns ""
	project := newTestProject(uuid.New(), false)
	eval := NewEvaluator(
		&fakeOrgStore{roles: map[uuid.UUID]string{}},
		&fakeMemberStore{roles: map[uuid.UUID]string{
			viewer: "viewer",
			editor: "editor",
		}},
	)

	role, err := eval.EffectiveRole(context.Background(), project, viewer)
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, role)

	role, err = eval.EffectiveRole(context.Background(), project, editor)
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, role)

	role, err = eval.EffectiveRole(context.Background(), project, removed)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestPublicProjectGrantsReadOnly(t *testing.T) {
	stranger := uuid.New()
	project := newTestProject(uuid.New(), true)
	eval := NewEvaluator(
		&fakeOrgStore{roles: map[uuid.UUID]string{}},
		&fakeMemberStore{roles: map[uuid.UUID]string{}},
	)

	// isPublic grants read access but never a role.
	role, err := eval.EffectiveRole(context.Background(), project, stranger)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)

	canAccess, err := eval.CanAccess(context.Background(), project, stranger)
	require.NoError(t, err)
	assert.True(t, canAccess)

	canEdit, err := eval.CanEdit(context.Background(), project, stranger)
	require.NoError(t, err)
	assert.False(t, canEdit)
}

func TestPrivateProjectDeniesStranger(t *testing.T) {
	stranger := uuid.New()
	project := newTestProject(uuid.New(), false)
	eval := NewEvaluator(
		&fakeOrgStore{roles: map[uuid.UUID]string{}},
		&fakeMemberStore{roles: map[uuid.UUID]string{}},
	)

	canAccess, err := eval.CanAccess(context.Background(), project, stranger)
	require.NoError(t, err)
	assert.False(t, canAccess)
}

func TestIsAdmin(t *testing.T) {
	editor := uuid.New()
	project := newTestProject(uuid.New(), false)
	eval := NewEvaluator(
		&fakeOrgStore{roles: map[uuid.UUID]string{}},
		&fakeMemberStore{roles: map[uuid.UUID]string{editor: "editor"}},
	)

	isAdmin, err := eval.IsAdmin(context.Background(), project, editor)
	require.NoError(t, err)
	assert.False(t, isAdmin)
}
