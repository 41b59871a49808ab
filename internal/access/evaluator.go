package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/trackline/backend/internal/models"
)

// OrganizationRoleStore resolves a user's organization-level role.
// Implementations return "" when the user is not a member.
type OrganizationRoleStore interface {
	GetOrganizationRole(ctx context.Context, orgID, userID uuid.UUID) (string, error)
}

// ProjectMemberStore resolves a user's stored project role. Implementations
// must exclude soft-deleted membership rows and return "" when no active
// row exists.
type ProjectMemberStore interface {
	GetProjectMemberRole(ctx context.Context, projectID, userID uuid.UUID) (string, error)
}

// Evaluator derives a user's effective role in a project. It is a pure
// function of its inputs and the durable store: no process-local cache may
// sit between it and the database.
type Evaluator struct {
	orgs    OrganizationRoleStore
	members ProjectMemberStore
}

// NewEvaluator creates a role evaluator over the given stores.
func NewEvaluator(orgs OrganizationRoleStore, members ProjectMemberStore) *Evaluator {
	return &Evaluator{orgs: orgs, members: members}
}

// EffectiveRole resolves the caller's role, first match wins:
//
//  1. project creator -> admin (never revocable by membership changes)
//  2. organization owner/admin -> admin
//  3. active membership row -> its stored role
//  4. none
//
// A public project grants read access through CanAccess, never a role.
func (e *Evaluator) EffectiveRole(ctx context.Context, project *models.Project, userID uuid.UUID) (Role, error) {
	if project.CreatedBy == userID {
		return RoleAdmin, nil
	}

	orgRole, err := e.orgs.GetOrganizationRole(ctx, project.OrganizationID, userID)
	if err != nil {
		return RoleNone, err
	}
	if models.IsOrgAdminRole(orgRole) {
		return RoleAdmin, nil
	}

	memberRole, err := e.members.GetProjectMemberRole(ctx, project.ID, userID)
	if err != nil {
		return RoleNone, err
	}
	return ParseRole(memberRole), nil
}

// CanAccess reports read access: any role, or a public project.
func (e *Evaluator) CanAccess(ctx context.Context, project *models.Project, userID uuid.UUID) (bool, error) {
	role, err := e.EffectiveRole(ctx, project, userID)
	if err != nil {
		return false, err
	}
	return role.AtLeast(RoleViewer) || project.IsPublic, nil
}

// CanEdit reports write access (editor or above). isPublic never grants it.
func (e *Evaluator) CanEdit(ctx context.Context, project *models.Project, userID uuid.UUID) (bool, error) {
	role, err := e.EffectiveRole(ctx, project, userID)
	if err != nil {
		return false, err
	}
	return role.AtLeast(RoleEditor), nil
}

// IsAdmin reports admin access (settings, members, deletion).
func (e *Evaluator) IsAdmin(ctx context.Context, project *models.Project, userID uuid.UUID) (bool, error) {
	role, err := e.EffectiveRole(ctx, project, userID)
	if err != nil {
		return false, err
	}
	return role.AtLeast(RoleAdmin), nil
}
