package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeueWebhook(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	execID := uuid.New()
	err := q.EnqueueWebhookDelivery(ctx, WebhookDeliveryPayload{ExecutionID: execID, WebhookID: uuid.New()})
	require.NoError(t, err)

	job, key, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, QueueWebhooks, key)
	assert.Equal(t, JobTypeWebhookDelivery, job.Type)
	assert.Equal(t, 0, job.Attempt)

	var payload WebhookDeliveryPayload
	require.NoError(t, DecodePayload(job, &payload))
	assert.Equal(t, execID, payload.ExecutionID)
}

func TestRetryReEnqueues(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{RecipientEmail: "a@b.c"}))
	job, key, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, key, job))
	assert.Equal(t, 1, job.Attempt)

	items, err := mr.List(QueueEmails)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRetryMovesToDLQAfterMaxRetries(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{RecipientEmail: "a@b.c"}))
	job, key, err := q.Dequeue(ctx)
	require.NoError(t, err)

	job.Attempt = MaxRetries - 1
	require.NoError(t, q.Retry(ctx, key, job))

	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	assert.Len(t, dlq, 1)

	_, err = mr.List(QueueEmails)
	assert.Error(t, err) // queue should be empty (key absent)
}
