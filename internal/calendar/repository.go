package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

const eventColumns = `id, project_id, title, description, starts_at, ends_at, all_day,
	created_by, deleted_at, created_at, updated_at`

// Repository handles calendar event persistence. Soft-deleted events are
// invisible to every read.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a calendar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.CalendarEvent, error) {
	var e models.CalendarEvent
	err := row.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.AllDay,
		&e.CreatedBy, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts an event.
func (r *Repository) Create(ctx context.Context, e *models.CalendarEvent) error {
	const q = `INSERT INTO calendar_events (project_id, title, description, starts_at, ends_at, all_day, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.ProjectID, e.Title, e.Description, e.StartsAt, e.EndsAt, e.AllDay, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns a live event, or nil when absent or soft-deleted.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.CalendarEvent, error) {
	return scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE id = $1 AND deleted_at IS NULL`, id))
}

// ListByRange returns live events overlapping [from, to).
func (r *Repository) ListByRange(ctx context.Context, projectID uuid.UUID, from, to time.Time) ([]*models.CalendarEvent, error) {
	const q = `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE project_id = $1 AND deleted_at IS NULL AND starts_at < $3 AND ends_at >= $2
		ORDER BY starts_at`
	rows, err := r.pool.Query(ctx, q, projectID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Update changes mutable event fields.
func (r *Repository) Update(ctx context.Context, e *models.CalendarEvent) error {
	const q = `UPDATE calendar_events SET title = $2, description = $3, starts_at = $4, ends_at = $5,
			all_day = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, e.ID, e.Title, e.Description, e.StartsAt, e.EndsAt, e.AllDay)
	return err
}

// SoftDelete tombstones an event.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE calendar_events SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
