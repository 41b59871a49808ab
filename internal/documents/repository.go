package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

const docColumns = `id, project_id, title, content, version, created_by, deleted_at, created_at, updated_at`

// ErrVersionMismatch is returned when a document update loses the race.
var ErrVersionMismatch = errors.New("document version mismatch")

// Repository handles document and version persistence. Soft-deleted
// documents are invisible to every read.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a documents repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Content, &d.Version, &d.CreatedBy,
		&d.DeletedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a document and its initial version snapshot in one
// transaction.
func (r *Repository) Create(ctx context.Context, d *models.Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO documents (project_id, title, content, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, version, created_at, updated_at`
	if err := tx.QueryRow(ctx, q, d.ProjectID, d.Title, d.Content, d.CreatedBy).
		Scan(&d.ID, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return err
	}
	const vq = `INSERT INTO document_versions (document_id, version, title, content, edited_by)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, vq, d.ID, d.Version, d.Title, d.Content, d.CreatedBy); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns a live document, or nil when absent or soft-deleted.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = $1 AND deleted_at IS NULL`, id))
}

// ListByProject returns a project's live documents.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+docColumns+` FROM documents WHERE project_id = $1 AND deleted_at IS NULL ORDER BY updated_at DESC`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// Update bumps the version, writes the new content and appends an
// immutable version snapshot, all in one transaction. Guarded by the
// optimistic version token.
func (r *Repository) Update(ctx context.Context, d *models.Document, expectedVersion int64, editedBy uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `UPDATE documents SET title = $3, content = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version, updated_at`
	err = tx.QueryRow(ctx, q, d.ID, expectedVersion, d.Title, d.Content).Scan(&d.Version, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionMismatch
	}
	if err != nil {
		return err
	}
	const vq = `INSERT INTO document_versions (document_id, version, title, content, edited_by)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, vq, d.ID, d.Version, d.Title, d.Content, editedBy); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SoftDelete tombstones a document.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE documents SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// ListVersions returns a document's version history, newest first.
func (r *Repository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error) {
	const q = `SELECT id, document_id, version, title, content, edited_by, created_at
		FROM document_versions WHERE document_id = $1 ORDER BY version DESC`
	rows, err := r.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DocumentVersion
	for rows.Next() {
		var v models.DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.Title, &v.Content, &v.EditedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &v)
	}
	return list, rows.Err()
}
