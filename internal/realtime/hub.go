package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Subscriber receives events published by other processes for one video.
type Subscriber interface {
	SubscribeVideo(videoID uuid.UUID, handler func(Event)) (cancel func(), err error)
}

// Hub maintains video_id -> set of connections and fans events out to them.
// With a Redis bridge, events are published to Redis and delivered to local
// clients by the subscription, so workers and every server instance reach
// the same clients exactly once.
type Hub struct {
	// videoID -> map[clientID]*Client
	videos map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]func() // cancel Redis subscription per video
	mu     sync.RWMutex
	logger *zap.Logger
	pub    Notifier
	sub    Subscriber
}

// NewHub creates a new WebSocket hub. pub and sub may be nil for a single
// process deployment.
func NewHub(logger *zap.Logger, pub Notifier, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		videos: make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Register adds a client to a video's room. Starts the Redis subscription
// for the video on its first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.videos[c.VideoID] == nil {
		h.videos[c.VideoID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeVideo(c.VideoID, h.Broadcast)
			if err != nil {
				h.logger.Warn("subscribe video events failed", zap.String("video_id", c.VideoID.String()), zap.Error(err))
			} else {
				h.subs[c.VideoID] = cancel
			}
		}
	}
	h.videos[c.VideoID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("video_id", c.VideoID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the last
// client of a video leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.videos[c.VideoID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.videos, c.VideoID)
			if cancel, ok := h.subs[c.VideoID]; ok {
				cancel()
				delete(h.subs, c.VideoID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("video_id", c.VideoID.String()))
}

// Broadcast sends an event to local clients of its video.
func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.videos[e.VideoID] {
		select {
		case c.send <- e:
		default:
			// buffer full, skip
		}
	}
}

// Publish implements Notifier.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if h.pub != nil {
		return h.pub.Publish(ctx, e)
	}
	h.Broadcast(e)
	return nil
}

// Subscribers returns the number of connected clients for a video.
func (h *Hub) Subscribers(videoID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.videos[videoID])
}
