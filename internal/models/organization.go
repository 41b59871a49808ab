package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant. Projects are always owned by exactly
// one organization.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Organization membership roles, ordered owner > admin > member.
const (
	OrgRoleOwner  = "owner"
	OrgRoleAdmin  = "admin"
	OrgRoleMember = "member"
)

// OrganizationMember links a user to an organization with a role.
// At most one row exists per (organization, user) pair.
type OrganizationMember struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ValidOrgRole reports whether role is a known organization role.
func ValidOrgRole(role string) bool {
	return role == OrgRoleOwner || role == OrgRoleAdmin || role == OrgRoleMember
}

// IsOrgAdminRole reports whether an organization role carries admin rights
// over every project in the organization.
func IsOrgAdminRole(role string) bool {
	return role == OrgRoleOwner || role == OrgRoleAdmin
}
