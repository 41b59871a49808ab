package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/queue"
)

type fakeUserStore struct {
	users map[uuid.UUID]*models.User
	err   error
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

type fakeEmailQueue struct {
	enqueued []queue.EmailPayload
	err      error
}

func (q *fakeEmailQueue) EnqueueEmail(_ context.Context, payload queue.EmailPayload) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func TestMailerEnqueuesMembershipEmails(t *testing.T) {
	userID := uuid.New()
	users := &fakeUserStore{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, Email: "dev@example.com", FullName: "Dev"},
	}}
	emails := &fakeEmailQueue{}
	m := NewMailer(users, emails, nil)

	project := &models.Project{ID: uuid.New(), Key: "TRK", Name: "Trackline"}
	m.ProjectMemberAdded(context.Background(), project, userID, "editor")

	org := &models.Organization{ID: uuid.New(), Name: "Acme"}
	m.OrgMemberAdded(context.Background(), org, userID, "admin")

	require.Len(t, emails.enqueued, 2)

	p := emails.enqueued[0]
	assert.Equal(t, "project_member_added", p.EmailType)
	assert.Equal(t, "dev@example.com", p.RecipientEmail)
	assert.Contains(t, p.Subject, "Trackline")
	assert.Contains(t, p.BodyHTML, "editor")
	assert.Contains(t, p.BodyHTML, "TRK")

	o := emails.enqueued[1]
	assert.Equal(t, "organization_member_added", o.EmailType)
	assert.Equal(t, "dev@example.com", o.RecipientEmail)
	assert.Contains(t, o.BodyHTML, "Acme")
}

func TestMailerSwallowsFailures(t *testing.T) {
	userID := uuid.New()
	project := &models.Project{ID: uuid.New(), Key: "TRK", Name: "Trackline"}

	// Unknown recipient: nothing enqueued, no panic.
	emails := &fakeEmailQueue{}
	m := NewMailer(&fakeUserStore{users: map[uuid.UUID]*models.User{}}, emails, nil)
	m.ProjectMemberAdded(context.Background(), project, userID, "viewer")
	assert.Empty(t, emails.enqueued)

	// Lookup error: same.
	m = NewMailer(&fakeUserStore{err: errors.New("db down")}, emails, nil)
	m.ProjectMemberAdded(context.Background(), project, userID, "viewer")
	assert.Empty(t, emails.enqueued)

	// Enqueue error: the mutation path must not observe it, so this simply
	// returns.
	users := &fakeUserStore{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, Email: "dev@example.com"},
	}}
	m = NewMailer(users, &fakeEmailQueue{err: errors.New("redis down")}, nil)
	m.ProjectMemberAdded(context.Background(), project, userID, "viewer")
}

func TestNilMailerIsNoOp(t *testing.T) {
	var m *Mailer
	m.ProjectMemberAdded(context.Background(), &models.Project{Name: "p"}, uuid.New(), "viewer")
	m.OrgMemberAdded(context.Background(), &models.Organization{Name: "o"}, uuid.New(), "member")
}
