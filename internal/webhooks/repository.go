package webhooks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

const webhookColumns = `id, project_id, url, secret, events, is_active, last_triggered_at,
	created_by, created_at, updated_at`

// Repository handles webhook and execution persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhooks repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanWebhook(row pgx.Row) (*models.Webhook, error) {
	var w models.Webhook
	err := row.Scan(&w.ID, &w.ProjectID, &w.URL, &w.Secret, &w.Events, &w.IsActive, &w.LastTriggeredAt,
		&w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a webhook.
func (r *Repository) Create(ctx context.Context, w *models.Webhook) error {
	const q = `INSERT INTO webhooks (project_id, url, secret, events, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, w.ProjectID, w.URL, w.Secret, w.Events, w.CreatedBy).
		Scan(&w.ID, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
}

// GetByID returns a webhook, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	return scanWebhook(r.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
}

// ListByProject returns a project's webhooks.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Webhook, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// ListActiveForEvent returns active webhooks in a project subscribed to
// the event.
func (r *Repository) ListActiveForEvent(ctx context.Context, projectID uuid.UUID, event string) ([]*models.Webhook, error) {
	const q = `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE project_id = $1 AND is_active AND $2 = ANY(events)`
	rows, err := r.pool.Query(ctx, q, projectID, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

func collectWebhooks(rows pgx.Rows) ([]*models.Webhook, error) {
	var list []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// Update changes a webhook's URL, subscriptions and active flag.
func (r *Repository) Update(ctx context.Context, w *models.Webhook) error {
	const q = `UPDATE webhooks SET url = $2, events = $3, is_active = $4, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, w.ID, w.URL, w.Events, w.IsActive)
	return err
}

// Delete removes a webhook and its executions.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	return err
}

// TouchTriggered stamps the last successful delivery time.
func (r *Repository) TouchTriggered(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE webhooks SET last_triggered_at = NOW() WHERE id = $1`, id)
	return err
}

// CreateExecution inserts a pending execution row.
func (r *Repository) CreateExecution(ctx context.Context, e *models.WebhookExecution) error {
	const q = `INSERT INTO webhook_executions (webhook_id, event, payload)
		VALUES ($1, $2, $3)
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.WebhookID, e.Event, e.Payload).
		Scan(&e.ID, &e.Status, &e.CreatedAt, &e.UpdatedAt)
}

// GetExecution returns an execution, or nil when absent.
func (r *Repository) GetExecution(ctx context.Context, id uuid.UUID) (*models.WebhookExecution, error) {
	const q = `SELECT id, webhook_id, event, payload, status, response_code, attempts, last_error, created_at, updated_at
		FROM webhook_executions WHERE id = $1`
	var e models.WebhookExecution
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.WebhookID, &e.Event, &e.Payload, &e.Status,
		&e.ResponseCode, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExecutions returns a webhook's recent executions, newest first.
func (r *Repository) ListExecutions(ctx context.Context, webhookID uuid.UUID, limit int) ([]*models.WebhookExecution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT id, webhook_id, event, payload, status, response_code, attempts, last_error, created_at, updated_at
		FROM webhook_executions WHERE webhook_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WebhookExecution
	for rows.Next() {
		var e models.WebhookExecution
		if err := rows.Scan(&e.ID, &e.WebhookID, &e.Event, &e.Payload, &e.Status,
			&e.ResponseCode, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// RecordAttempt writes the outcome of one delivery attempt.
func (r *Repository) RecordAttempt(ctx context.Context, id uuid.UUID, status string, responseCode int, lastError string) error {
	const q = `UPDATE webhook_executions
		SET status = $2, response_code = $3, attempts = attempts + 1, last_error = $4, updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, status, responseCode, lastError)
	return err
}
