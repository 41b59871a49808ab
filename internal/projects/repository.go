package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

const projectColumns = `id, organization_id, key, name, description, created_by,
	is_public, workflow_states, issue_counter, deleted_at, created_at, updated_at`

// Repository handles project and project_member persistence. Every read
// excludes soft-deleted rows via a deleted_at IS NULL predicate.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a projects repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Key, &p.Name, &p.Description, &p.CreatedBy,
		&p.IsPublic, &p.WorkflowStates, &p.IssueCounter, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a project with the default workflow.
func (r *Repository) Create(ctx context.Context, p *models.Project) error {
	if len(p.WorkflowStates) == 0 {
		states, err := json.Marshal(models.DefaultWorkflowStates())
		if err != nil {
			return err
		}
		p.WorkflowStates = states
	}
	const q = `INSERT INTO projects (organization_id, key, name, description, created_by, is_public, workflow_states)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, p.OrganizationID, p.Key, p.Name, p.Description, p.CreatedBy, p.IsPublic, p.WorkflowStates).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetProject returns a live project by ID, or nil when absent or
// soft-deleted. Satisfies the access-check project store.
func (r *Repository) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	q := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1 AND deleted_at IS NULL`, projectColumns)
	return scanProject(r.pool.QueryRow(ctx, q, id))
}

// GetIncludingDeleted returns a project regardless of soft-deletion.
// Used only by restore.
func (r *Repository) GetIncludingDeleted(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	q := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns)
	return scanProject(r.pool.QueryRow(ctx, q, id))
}

// Update changes mutable project fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description string, isPublic bool) error {
	const q = `UPDATE projects SET name = $2, description = $3, is_public = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, name, description, isPublic)
	return err
}

// UpdateWorkflow replaces the project's workflow states.
func (r *Repository) UpdateWorkflow(ctx context.Context, id uuid.UUID, states json.RawMessage) error {
	const q = `UPDATE projects SET workflow_states = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, states)
	return err
}

// SoftDelete tombstones a project.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE projects SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// Restore clears the tombstone.
func (r *Repository) Restore(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE projects SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// ListAccessible returns live projects the user can see: created by them,
// in an org where they are owner/admin, or where they hold an active
// membership row.
func (r *Repository) ListAccessible(ctx context.Context, userID uuid.UUID) ([]*models.Project, error) {
	q := fmt.Sprintf(`SELECT DISTINCT %s FROM projects p
		LEFT JOIN project_members pm ON pm.project_id = p.id AND pm.user_id = $1 AND pm.deleted_at IS NULL
		LEFT JOIN organization_members om ON om.organization_id = p.organization_id AND om.user_id = $1
		WHERE p.deleted_at IS NULL
		  AND (p.created_by = $1 OR pm.id IS NOT NULL OR om.role IN ('owner', 'admin'))
		ORDER BY p.name`, prefixColumns("p"))
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func prefixColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.organization_id, %[1]s.key, %[1]s.name, %[1]s.description, %[1]s.created_by,
	%[1]s.is_public, %[1]s.workflow_states, %[1]s.issue_counter, %[1]s.deleted_at, %[1]s.created_at, %[1]s.updated_at`, alias)
}

// NextIssueNumber atomically increments and returns the project's issue counter.
func (r *Repository) NextIssueNumber(ctx context.Context, id uuid.UUID) (int64, error) {
	const q = `UPDATE projects SET issue_counter = issue_counter + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING issue_counter`
	var n int64
	err := r.pool.QueryRow(ctx, q, id).Scan(&n)
	return n, err
}

// GetProjectMemberRole returns the user's role from their active
// membership row, or empty when none exists. Soft-deleted rows never
// grant a role. Satisfies the access-check member store.
func (r *Repository) GetProjectMemberRole(ctx context.Context, projectID, userID uuid.UUID) (string, error) {
	const q = `SELECT role FROM project_members
		WHERE project_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	var role string
	err := r.pool.QueryRow(ctx, q, projectID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// UpsertMember adds a user to a project or updates the role on their
// active row. A previously removed (soft-deleted) member gets a fresh row.
func (r *Repository) UpsertMember(ctx context.Context, projectID, userID, addedBy uuid.UUID, role string) error {
	const q = `INSERT INTO project_members (project_id, user_id, role, added_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, user_id) WHERE deleted_at IS NULL
		DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, projectID, userID, role, addedBy)
	return err
}

// RemoveMember soft-deletes the active membership row. The tombstoned row
// is invisible to every subsequent role lookup.
func (r *Repository) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	const q = `UPDATE project_members SET deleted_at = NOW(), updated_at = NOW()
		WHERE project_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, projectID, userID)
	return err
}

// Member is a project member with user details.
type Member struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	AddedAt  time.Time `json:"added_at"`
}

// ListMembers returns the project's active members.
func (r *Repository) ListMembers(ctx context.Context, projectID uuid.UUID) ([]Member, error) {
	const q = `SELECT pm.id, pm.user_id, u.email, COALESCE(u.full_name, ''), pm.role, pm.created_at
		FROM project_members pm
		INNER JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1 AND pm.deleted_at IS NULL
		ORDER BY pm.created_at ASC`
	rows, err := r.pool.Query(ctx, q, projectID)
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
