// Package notify turns membership changes into queued email jobs. The
// worker drains the queue and sends over SMTP.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/queue"
)

// UserStore resolves recipients. Implementations return (nil, nil) for
// unknown users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EmailQueue accepts email jobs for the worker.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Mailer enqueues membership notification emails. Failures are logged,
// never propagated: email trouble must not fail the mutation that
// triggered it. A nil *Mailer is a no-op.
type Mailer struct {
	users  UserStore
	emails EmailQueue
	logger *zap.Logger
}

// NewMailer creates a membership notification mailer.
func NewMailer(users UserStore, emails EmailQueue, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{users: users, emails: emails, logger: logger}
}

// ProjectMemberAdded notifies a user they were added to a project.
func (m *Mailer) ProjectMemberAdded(ctx context.Context, project *models.Project, userID uuid.UUID, role string) {
	m.send(ctx, userID, "project_member_added",
		fmt.Sprintf("You were added to %s", project.Name),
		fmt.Sprintf("<p>You now have the <b>%s</b> role in the project <b>%s</b> (%s).</p>",
			role, project.Name, project.Key))
}

// OrgMemberAdded notifies a user they were added to an organization.
func (m *Mailer) OrgMemberAdded(ctx context.Context, org *models.Organization, userID uuid.UUID, role string) {
	m.send(ctx, userID, "organization_member_added",
		fmt.Sprintf("You were added to %s", org.Name),
		fmt.Sprintf("<p>You now have the <b>%s</b> role in the organization <b>%s</b>.</p>",
			role, org.Name))
}

func (m *Mailer) send(ctx context.Context, userID uuid.UUID, emailType, subject, bodyHTML string) {
	if m == nil || m.emails == nil {
		return
	}
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		m.logger.Warn("recipient lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if user == nil {
		m.logger.Warn("recipient vanished", zap.String("user_id", userID.String()))
		return
	}
	err = m.emails.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      emailType,
		RecipientEmail: user.Email,
		Subject:        subject,
		BodyHTML:       bodyHTML,
	})
	if err != nil {
		m.logger.Warn("enqueue email failed",
			zap.String("email_type", emailType), zap.String("to", user.Email), zap.Error(err))
	}
}
