package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/models"
	"github.com/clipreview/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by middleware on the HTTP routes
	},
}

// Lookup loads the current state of a video.
type Lookup func(ctx context.Context, id uuid.UUID) (*models.Video, error)

// Client is a single WebSocket connection watching one video.
type Client struct {
	ID      string
	VideoID uuid.UUID
	hub     *Hub
	conn    *websocket.Conn
	send    chan Event
	logger  *zap.Logger
}

// ServeWs handles GET /videos/:id/events. The first message is a snapshot of
// the record; later messages are change events.
func ServeWs(hub *Hub, lookup Lookup, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		videoID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid video id")
			return
		}
		video, err := lookup(c.Request.Context(), videoID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				response.NotFound(c, "video not found")
				return
			}
			logger.Error("load video for events failed", zap.String("video_id", videoID.String()), zap.Error(err))
			response.Internal(c, "failed to load video")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:      uuid.New().String(),
			VideoID: videoID,
			hub:     hub,
			conn:    conn,
			send:    make(chan Event, 32),
			logger:  logger,
		}
		client.send <- Event{Type: EventSnapshot, VideoID: videoID, Video: video, At: time.Now().UTC()}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump only services control frames; clients do not send commands.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case e := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
			if e.Type == EventDeleted {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "video deleted"))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
