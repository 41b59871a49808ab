package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/queue"
)

// Dispatcher fans a project event out to every subscribed webhook: one
// execution row and one queue job per endpoint, so endpoints fail
// independently. Implements the events notifier.
type Dispatcher struct {
	repo   *Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(repo *Repository, q *queue.Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{repo: repo, queue: q, logger: logger}
}

// Publish enqueues deliveries for every active subscription. Errors are
// logged, never propagated: webhook trouble must not fail the request
// that caused the event.
func (d *Dispatcher) Publish(ctx context.Context, projectID uuid.UUID, event string, payload interface{}) {
	hooks, err := d.repo.ListActiveForEvent(ctx, projectID, event)
	if err != nil {
		d.logger.Error("listing webhooks failed", zap.String("event", event), zap.Error(err))
		return
	}
	if len(hooks) == 0 {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"event":      event,
		"project_id": projectID,
		"data":       payload,
		"sent_at":    time.Now().UTC(),
	})
	if err != nil {
		d.logger.Error("marshal webhook payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	for _, hook := range hooks {
		exec := &models.WebhookExecution{WebhookID: hook.ID, Event: event, Payload: body}
		if err := d.repo.CreateExecution(ctx, exec); err != nil {
			d.logger.Error("create execution failed",
				zap.String("webhook_id", hook.ID.String()), zap.Error(err))
			continue
		}
		err := d.queue.EnqueueWebhookDelivery(ctx, queue.WebhookDeliveryPayload{
			ExecutionID: exec.ID,
			WebhookID:   hook.ID,
		})
		if err != nil {
			d.logger.Error("enqueue delivery failed",
				zap.String("execution_id", exec.ID.String()), zap.Error(err))
		}
	}
}

// Requeue puts an existing execution back on the delivery queue.
func (d *Dispatcher) Requeue(ctx context.Context, exec *models.WebhookExecution) error {
	return d.queue.EnqueueWebhookDelivery(ctx, queue.WebhookDeliveryPayload{
		ExecutionID: exec.ID,
		WebhookID:   exec.WebhookID,
	})
}
