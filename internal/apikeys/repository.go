package apikeys

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

const keyColumns = `id, user_id, name, key_hash, key_prefix, scopes, project_id, rate_limit,
	is_active, expires_at, last_used_at, created_at, updated_at`

// Repository handles API key persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an API keys repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes, &k.ProjectID, &k.RateLimit,
		&k.IsActive, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Create inserts an API key record.
func (r *Repository) Create(ctx context.Context, k *models.APIKey) error {
	const q = `INSERT INTO api_keys (user_id, name, key_hash, key_prefix, scopes, project_id, rate_limit, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_active, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, k.UserID, k.Name, k.KeyHash, k.KeyPrefix, k.Scopes, k.ProjectID, k.RateLimit, k.ExpiresAt).
		Scan(&k.ID, &k.IsActive, &k.CreatedAt, &k.UpdatedAt)
}

// GetByHash returns the key record for a hash, or nil when absent.
func (r *Repository) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	return scanKey(r.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
}

// GetByID returns a key record, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	return scanKey(r.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id))
}

// ListByUser returns a user's keys, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, k)
	}
	return list, rows.Err()
}

// UpdateSettings changes a key's scopes and rate limit.
func (r *Repository) UpdateSettings(ctx context.Context, id uuid.UUID, scopes []string, rateLimit int) error {
	const q = `UPDATE api_keys SET scopes = $2, rate_limit = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, scopes, rateLimit)
	return err
}

// Deactivate revokes a key.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE api_keys SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// TouchLastUsed stamps the key's last use. Best effort.
func (r *Repository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

// RecordUsage inserts one usage log row.
func (r *Repository) RecordUsage(ctx context.Context, keyID uuid.UUID, method, path string, status int) error {
	const q = `INSERT INTO api_usage_logs (api_key_id, method, path, status_code) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, q, keyID, method, path, status)
	return err
}

// UsageStat is one row of a key's usage summary.
type UsageStat struct {
	Day      time.Time `json:"day"`
	Requests int64     `json:"requests"`
	Errors   int64     `json:"errors"`
}

// UsageStats aggregates a key's requests per day over the last `days`.
func (r *Repository) UsageStats(ctx context.Context, keyID uuid.UUID, days int) ([]UsageStat, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	const q = `SELECT date_trunc('day', created_at) AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE status_code >= 400)
		FROM api_usage_logs
		WHERE api_key_id = $1 AND created_at > NOW() - ($2 || ' days')::interval
		GROUP BY day ORDER BY day`
	rows, err := r.pool.Query(ctx, q, keyID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []UsageStat
	for rows.Next() {
		var s UsageStat
		if err := rows.Scan(&s.Day, &s.Requests, &s.Errors); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
