package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Heartbeat timings in seconds.
const (
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains project_id -> set of connections and broadcasts change
// notifications. Uses Redis pub/sub for horizontal scaling: local
// broadcast plus publish to Redis.
type Hub struct {
	projects map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per project
	mu       sync.RWMutex
	logger   *zap.Logger
	redisPub RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes project events for other instances.
type RedisPublisher interface {
	PublishProjectEvent(projectID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to a project channel and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeProject(projectID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a websocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		projects: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redisPub: redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a project room. The first client in a room
// starts the Redis subscription for it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.projects[c.ProjectID] == nil {
		h.projects[c.ProjectID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeProject(c.ProjectID, func(event string, payload []byte) {
				h.broadcastLocal(c.ProjectID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.ProjectID] = cancel
			} else {
				h.logger.Warn("project subscription failed",
					zap.String("project_id", c.ProjectID.String()), zap.Error(err))
			}
		}
	}
	h.projects[c.ProjectID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined project room",
		zap.String("client_id", c.ID), zap.String("project_id", c.ProjectID.String()))
}

// Unregister removes a client. The last client leaving a room cancels its
// Redis subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.projects[c.ProjectID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.projects, c.ProjectID)
			if cancel, ok := h.subs[c.ProjectID]; ok {
				cancel()
				delete(h.subs, c.ProjectID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left project room",
		zap.String("client_id", c.ID), zap.String("project_id", c.ProjectID.String()))
}

// broadcastLocal sends a message to all local clients in a project room.
func (h *Hub) broadcastLocal(projectID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	// Snapshot the room under the lock; Register/Unregister mutate the map
	// concurrently, and sends must not block it.
	h.mu.RLock()
	room := h.projects[projectID]
	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish broadcasts to local subscribers and fans out to other instances
// via Redis. Implements the Notifier interface.
func (h *Hub) Publish(_ context.Context, projectID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal event payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.broadcastLocal(projectID, event, json.RawMessage(data))
	if h.redisPub != nil {
		if err := h.redisPub.PublishProjectEvent(projectID, event, data); err != nil {
			h.logger.Warn("redis publish failed", zap.String("event", event), zap.Error(err))
		}
	}
}

// SubscriberCount returns the number of local clients in a project room.
func (h *Hub) SubscriberCount(projectID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}
