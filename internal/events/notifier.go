// Package events fans project change notifications out to websocket
// subscribers and the webhook delivery pipeline.
package events

import (
	"context"

	"github.com/google/uuid"
)

// Notifier receives project change notifications. Implementations must
// never fail the caller: delivery problems are logged, not returned.
type Notifier interface {
	Publish(ctx context.Context, projectID uuid.UUID, event string, payload interface{})
}

// MultiNotifier fans one notification out to several sinks.
type MultiNotifier []Notifier

// Publish forwards to every sink.
func (m MultiNotifier) Publish(ctx context.Context, projectID uuid.UUID, event string, payload interface{}) {
	for _, n := range m {
		n.Publish(ctx, projectID, event, payload)
	}
}

// NopNotifier discards notifications. Useful in tests.
type NopNotifier struct{}

// Publish does nothing.
func (NopNotifier) Publish(context.Context, uuid.UUID, string, interface{}) {}
