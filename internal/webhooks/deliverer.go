package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/metrics"
)

// SignatureHeader carries the HMAC of the delivery body.
const SignatureHeader = "X-Trackline-Signature"

// Sign computes the signature header value for a payload:
// "sha256=" followed by the hex HMAC-SHA256 of the body under the secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliverer POSTs webhook payloads and records execution outcomes. Run by
// the worker, never in the request path.
type Deliverer struct {
	repo   *Repository
	client *http.Client
	logger *zap.Logger
}

// NewDeliverer creates a deliverer with a bounded request timeout.
func NewDeliverer(repo *Repository, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{
		repo:   repo,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Deliver executes one delivery attempt for the execution. A non-2xx
// response or transport error marks the execution failed and returns an
// error so the queue retries it.
func (d *Deliverer) Deliver(ctx context.Context, executionID uuid.UUID) error {
	exec, err := d.repo.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load execution: %w", err)
	}
	if exec == nil {
		d.logger.Warn("execution vanished", zap.String("execution_id", executionID.String()))
		return nil
	}
	if exec.Status == models.ExecutionSuccess {
		return nil
	}
	hook, err := d.repo.GetByID(ctx, exec.WebhookID)
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}
	if hook == nil || !hook.IsActive {
		// Deleted or disabled since the event fired; nothing to deliver.
		return d.repo.RecordAttempt(ctx, exec.ID, models.ExecutionFailed, 0, "webhook inactive")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(exec.Payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trackline-Event", exec.Event)
	req.Header.Set(SignatureHeader, Sign(hook.Secret, exec.Payload))

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		if recErr := d.repo.RecordAttempt(ctx, exec.ID, models.ExecutionFailed, 0, err.Error()); recErr != nil {
			d.logger.Error("record attempt failed", zap.Error(recErr))
		}
		return fmt.Errorf("post %s: %w", hook.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		if recErr := d.repo.RecordAttempt(ctx, exec.ID, models.ExecutionFailed, resp.StatusCode, ""); recErr != nil {
			d.logger.Error("record attempt failed", zap.Error(recErr))
		}
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}

	metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
	if err := d.repo.RecordAttempt(ctx, exec.ID, models.ExecutionSuccess, resp.StatusCode, ""); err != nil {
		return err
	}
	if err := d.repo.TouchTriggered(ctx, hook.ID); err != nil {
		d.logger.Warn("touch last_triggered_at failed", zap.Error(err))
	}
	d.logger.Info("webhook delivered",
		zap.String("webhook_id", hook.ID.String()),
		zap.String("event", exec.Event),
		zap.Int("status", resp.StatusCode))
	return nil
}
