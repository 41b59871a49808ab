package labels

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

// Repository handles label persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a labels repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a label.
func (r *Repository) Create(ctx context.Context, l *models.Label) error {
	const q = `INSERT INTO labels (project_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, l.ProjectID, l.Name, l.Color).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

// GetByID returns a label, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Label, error) {
	const q = `SELECT id, project_id, name, color, created_at, updated_at FROM labels WHERE id = $1`
	var l models.Label
	err := r.pool.QueryRow(ctx, q, id).Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListByProject returns a project's labels ordered by name.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Label, error) {
	const q = `SELECT id, project_id, name, color, created_at, updated_at
		FROM labels WHERE project_id = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Label
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}

// Update changes a label's name and color.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, color string) error {
	const q = `UPDATE labels SET name = $2, color = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, name, color)
	return err
}

// Delete removes a label row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM labels WHERE id = $1`, id)
	return err
}
