package organizations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

// Repository handles organization and organization_member persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create creates an organization.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (name, slug, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, org.Name, org.Slug, org.CreatedBy).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
}

// GetByID returns an organization by ID, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT id, name, slug, created_by, created_at, updated_at FROM organizations WHERE id = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, id).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedBy, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Update changes the organization name.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name string) error {
	const q = `UPDATE organizations SET name = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, name)
	return err
}

// UpsertMember adds a user to an organization or updates their role.
// One membership per (org, user).
func (r *Repository) UpsertMember(ctx context.Context, orgID, userID uuid.UUID, role string) error {
	const q = `INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, orgID, userID, role)
	return err
}

// RemoveMember deletes the membership row.
func (r *Repository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	const q = `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	_, err := r.pool.Exec(ctx, q, orgID, userID)
	return err
}

// GetOrganizationRole returns the user's role in the organization, or empty
// when not a member.
func (r *Repository) GetOrganizationRole(ctx context.Context, orgID, userID uuid.UUID) (string, error) {
	const q = `SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	var role string
	err := r.pool.QueryRow(ctx, q, orgID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// CountOwners returns the number of owners in the organization.
func (r *Repository) CountOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM organization_members WHERE organization_id = $1 AND role = $2`
	var n int
	err := r.pool.QueryRow(ctx, q, orgID, models.OrgRoleOwner).Scan(&n)
	return n, err
}

// ListForUser returns organizations the user is a member of.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	const q = `SELECT o.id, o.name, o.slug, o.created_by, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN organization_members om ON om.organization_id = o.id
		WHERE om.user_id = $1
		ORDER BY o.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &o)
	}
	return list, rows.Err()
}

// Member represents an organization member with user details.
type Member struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	AddedAt  time.Time `json:"added_at"`
}

// ListMembers returns members of an organization.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	const q = `SELECT om.id, om.user_id, u.email, COALESCE(u.full_name, ''), om.role, om.created_at
		FROM organization_members om
		INNER JOIN users u ON u.id = om.user_id
		WHERE om.organization_id = $1
		ORDER BY om.created_at ASC`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.FullName, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
