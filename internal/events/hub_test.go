package events

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newHubClient(projectID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		send:      make(chan WSMessage, 4),
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	projectID := uuid.New()

	a := newHubClient(projectID)
	b := newHubClient(projectID)
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.SubscriberCount(projectID))

	hub.Unregister(a)
	assert.Equal(t, 1, hub.SubscriberCount(projectID))
	hub.Unregister(b)
	assert.Equal(t, 0, hub.SubscriberCount(projectID))
}

func TestHubPublishReachesRoom(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	projectID := uuid.New()
	other := newHubClient(uuid.New())
	c := newHubClient(projectID)
	hub.Register(c)
	hub.Register(other)

	hub.Publish(context.Background(), projectID, "issue.updated", map[string]string{"id": "x"})

	select {
	case msg := <-c.send:
		assert.Equal(t, "issue.updated", msg.Event)
	default:
		t.Fatal("subscribed client received nothing")
	}
	select {
	case <-other.send:
		t.Fatal("client in another room received the event")
	default:
	}
}

func TestHubBroadcastDuringChurn(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	projectID := uuid.New()

	// A resident client keeps the room alive while others churn.
	resident := newHubClient(projectID)
	hub.Register(resident)
	go func() {
		for range resident.send {
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			c := newHubClient(projectID)
			hub.Register(c)
			hub.Unregister(c)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			hub.Publish(context.Background(), projectID, "issue.updated", fmt.Sprintf("n=%d", i))
		}
	}()
	wg.Wait()

	hub.Unregister(resident)
	close(resident.send)
	assert.Equal(t, 0, hub.SubscriberCount(projectID))
}
