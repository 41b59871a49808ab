package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trackline/backend/internal/webhooks"
	"github.com/trackline/backend/pkg/mailer"
	"github.com/trackline/backend/pkg/queue"
)

// Worker consumes the webhook and email queues.
type Worker struct {
	queue     *queue.Queue
	deliverer *webhooks.Deliverer
	mail      *mailer.Mailer
	logger    *zap.Logger
}

// New creates a worker.
func New(q *queue.Queue, deliverer *webhooks.Deliverer, mail *mailer.Mailer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: q, deliverer: deliverer, mail: mail, logger: logger}
}

// Process executes one job.
func (w *Worker) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeWebhookDelivery:
		var payload queue.WebhookDeliveryPayload
		if err := queue.DecodePayload(job, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return w.deliverer.Deliver(ctx, payload.ExecutionID)
	case queue.JobTypeEmail:
		var payload queue.EmailPayload
		if err := queue.DecodePayload(job, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return w.mail.Send(payload.RecipientEmail, payload.Subject, payload.BodyHTML)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the worker loop: dequeue, process, retry on error. Blocks
// until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := w.queue.Retry(ctx, key, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
