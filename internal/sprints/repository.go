package sprints

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

const sprintColumns = `id, project_id, name, goal, status, starts_at, ends_at, completed_at,
	created_by, created_at, updated_at`

// Repository handles sprint persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sprints repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSprint(row pgx.Row) (*models.Sprint, error) {
	var s models.Sprint
	err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &s.Status, &s.StartsAt, &s.EndsAt, &s.CompletedAt,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a planned sprint.
func (r *Repository) Create(ctx context.Context, s *models.Sprint) error {
	const q = `INSERT INTO sprints (project_id, name, goal, starts_at, ends_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.ProjectID, s.Name, s.Goal, s.StartsAt, s.EndsAt, s.CreatedBy).
		Scan(&s.ID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a sprint, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sprint, error) {
	return scanSprint(r.pool.QueryRow(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = $1`, id))
}

// ListByProject returns a project's sprints, newest first.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Sprint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// HasActiveSprint reports whether the project already has an active sprint.
func (r *Repository) HasActiveSprint(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sprints WHERE project_id = $1 AND status = $2)`,
		projectID, models.SprintActive).Scan(&exists)
	return exists, err
}

// Start transitions a planned sprint to active. Returns false when the
// sprint was not in the planned state.
func (r *Repository) Start(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE sprints SET status = $2, starts_at = COALESCE(starts_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, id, models.SprintActive, models.SprintPlanned)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete transitions an active sprint to completed.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE sprints SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, id, models.SprintCompleted, models.SprintActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
