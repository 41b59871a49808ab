package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline/backend/internal/models"
)

const issueColumns = `id, project_id, key, title, description, type, priority, status,
	assignee_id, sprint_id, parent_id, labels, estimated_hours, story_points, due_date,
	version, created_by, deleted_at, created_at, updated_at`

// ErrVersionMismatch is returned when an optimistic update loses the race.
var ErrVersionMismatch = errors.New("issue version mismatch")

// Repository handles issue and comment persistence. Soft-deleted issues
// are invisible to every read.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an issues repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanIssue(row pgx.Row) (*models.Issue, error) {
	var i models.Issue
	err := row.Scan(&i.ID, &i.ProjectID, &i.Key, &i.Title, &i.Description, &i.Type, &i.Priority, &i.Status,
		&i.AssigneeID, &i.SprintID, &i.ParentID, &i.Labels, &i.EstimatedHours, &i.StoryPoints, &i.DueDate,
		&i.Version, &i.CreatedBy, &i.DeletedAt, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Create inserts an issue. The caller supplies the generated key.
func (r *Repository) Create(ctx context.Context, i *models.Issue) error {
	const q = `INSERT INTO issues (project_id, key, title, description, type, priority, status,
			assignee_id, sprint_id, parent_id, labels, estimated_hours, story_points, due_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, i.ProjectID, i.Key, i.Title, i.Description, i.Type, i.Priority, i.Status,
		i.AssigneeID, i.SprintID, i.ParentID, i.Labels, i.EstimatedHours, i.StoryPoints, i.DueDate, i.CreatedBy).
		Scan(&i.ID, &i.Version, &i.CreatedAt, &i.UpdatedAt)
}

// GetByID returns a live issue, or nil when absent or soft-deleted.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	q := fmt.Sprintf(`SELECT %s FROM issues WHERE id = $1 AND deleted_at IS NULL`, issueColumns)
	return scanIssue(r.pool.QueryRow(ctx, q, id))
}

// KeyExists reports whether an issue key is already taken in the project.
// Keys are unique per project, not globally; two projects sharing a key
// prefix across organizations never collide.
func (r *Repository) KeyExists(ctx context.Context, projectID uuid.UUID, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM issues WHERE project_id = $1 AND key = $2)`,
		projectID, key).Scan(&exists)
	return exists, err
}

// ListFilter narrows a project issue listing.
type ListFilter struct {
	Status     string
	AssigneeID *uuid.UUID
	SprintID   *uuid.UUID
	Backlog    bool // issues with no sprint
}

// ListByProject returns live issues in a project, newest first.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID, f ListFilter) ([]*models.Issue, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM issues WHERE project_id = $1 AND deleted_at IS NULL`, issueColumns)
	args := []interface{}{projectID}
	if f.Status != "" {
		args = append(args, f.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if f.AssigneeID != nil {
		args = append(args, *f.AssigneeID)
		fmt.Fprintf(&sb, " AND assignee_id = $%d", len(args))
	}
	if f.SprintID != nil {
		args = append(args, *f.SprintID)
		fmt.Fprintf(&sb, " AND sprint_id = $%d", len(args))
	} else if f.Backlog {
		sb.WriteString(" AND sprint_id IS NULL")
	}
	sb.WriteString(" ORDER BY created_at DESC")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIssues(rows)
}

// Search returns live issues in a project whose key, title or description
// matches the query text, capped at limit.
func (r *Repository) Search(ctx context.Context, projectID uuid.UUID, query string, limit int) ([]*models.Issue, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT %s FROM issues
		WHERE project_id = $1 AND deleted_at IS NULL
		  AND (key ILIKE $2 OR title ILIKE $2 OR description ILIKE $2)
		ORDER BY created_at DESC
		LIMIT $3`, issueColumns)
	rows, err := r.pool.Query(ctx, q, projectID, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIssues(rows)
}

// ListByIDs batch-loads live issues by ID. Missing or soft-deleted IDs are
// simply absent from the result.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Issue, error) {
	q := fmt.Sprintf(`SELECT %s FROM issues WHERE id = ANY($1) AND deleted_at IS NULL`, issueColumns)
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIssues(rows)
}

func collectIssues(rows pgx.Rows) ([]*models.Issue, error) {
	var list []*models.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}

// Update writes the full mutable field set, guarded by the optimistic
// version token. Returns ErrVersionMismatch when the stored version moved.
func (r *Repository) Update(ctx context.Context, i *models.Issue, expectedVersion int64) error {
	const q = `UPDATE issues SET title = $3, description = $4, type = $5, priority = $6, status = $7,
			assignee_id = $8, sprint_id = $9, parent_id = $10, labels = $11, estimated_hours = $12,
			story_points = $13, due_date = $14, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, q, i.ID, expectedVersion, i.Title, i.Description, i.Type, i.Priority, i.Status,
		i.AssigneeID, i.SprintID, i.ParentID, i.Labels, i.EstimatedHours, i.StoryPoints, i.DueDate).
		Scan(&i.Version, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionMismatch
	}
	return err
}

// UpdateStatus moves an issue to a workflow state without a version token.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE issues SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, status)
	return err
}

// UpdateAssignee reassigns an issue.
func (r *Repository) UpdateAssignee(ctx context.Context, id uuid.UUID, assigneeID *uuid.UUID) error {
	const q = `UPDATE issues SET assignee_id = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, assigneeID)
	return err
}

// UpdateSprint moves an issue into (or out of) a sprint.
func (r *Repository) UpdateSprint(ctx context.Context, id uuid.UUID, sprintID *uuid.UUID) error {
	const q = `UPDATE issues SET sprint_id = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, sprintID)
	return err
}

// AddLabels appends labels not already present on the issue.
func (r *Repository) AddLabels(ctx context.Context, id uuid.UUID, labelIDs []uuid.UUID) error {
	const q = `UPDATE issues
		SET labels = (SELECT ARRAY(SELECT DISTINCT unnest(labels || $2::uuid[]))),
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, labelIDs)
	return err
}

// RemoveLabel drops one label from the issue.
func (r *Repository) RemoveLabel(ctx context.Context, id, labelID uuid.UUID) error {
	const q = `UPDATE issues SET labels = array_remove(labels, $2), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, labelID)
	return err
}

// ListByLabel returns live issue IDs in a project carrying the label.
func (r *Repository) ListByLabel(ctx context.Context, projectID, labelID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT id FROM issues WHERE project_id = $1 AND $2 = ANY(labels) AND deleted_at IS NULL`
	rows, err := r.pool.Query(ctx, q, projectID, labelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SoftDelete tombstones an issue.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE issues SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// RollSprintIssuesToBacklog detaches open issues from a completed sprint.
// done is the set of workflow state IDs in the "done" category.
func (r *Repository) RollSprintIssuesToBacklog(ctx context.Context, sprintID uuid.UUID, done []string) (int64, error) {
	const q = `UPDATE issues SET sprint_id = NULL, status = 'backlog', version = version + 1, updated_at = NOW()
		WHERE sprint_id = $1 AND NOT (status = ANY($2)) AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, sprintID, done)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateComment inserts a comment.
func (r *Repository) CreateComment(ctx context.Context, cm *models.Comment) error {
	const q = `INSERT INTO comments (issue_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, cm.IssueID, cm.AuthorID, cm.Body).
		Scan(&cm.ID, &cm.CreatedAt, &cm.UpdatedAt)
}

// ListComments returns an issue's comments, oldest first.
func (r *Repository) ListComments(ctx context.Context, issueID uuid.UUID) ([]*models.Comment, error) {
	const q = `SELECT id, issue_id, author_id, body, created_at, updated_at
		FROM comments WHERE issue_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Comment
	for rows.Next() {
		var cm models.Comment
		if err := rows.Scan(&cm.ID, &cm.IssueID, &cm.AuthorID, &cm.Body, &cm.CreatedAt, &cm.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &cm)
	}
	return list, rows.Err()
}
