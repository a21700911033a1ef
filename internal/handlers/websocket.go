package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/webrtc-calling/internal/middleware"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/internal/relay"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by the CORS middleware
		return true
	},
}

// CallHandler serves the relay socket. Every connection is one subscription
// for the authenticated identity.
type CallHandler struct {
	relay *relay.Relay
	log   *slog.Logger
}

func NewCallHandler(r *relay.Relay, log *slog.Logger) *CallHandler {
	return &CallHandler{relay: r, log: log}
}

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	Identity models.Identity
	Conn     *websocket.Conn

	sub    *relay.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

// HandleCall upgrades an authenticated request to a relay stream.
func (h *CallHandler) HandleCall(c *gin.Context) {
	const op = "handlers.call.handle"

	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// Bound before the handshake completes, so a peer that sees the socket
	// open can already be reached.
	sub := h.relay.Subscribe(identity)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		h.log.Warn("failed to upgrade connection", slog.String("op", op), sl.Err(err))
		return
	}

	// The request context ends with this handler, the socket does not.
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:       uuid.New().String(),
		Identity: identity,
		Conn:     conn,
		sub:      sub,
		ctx:      ctx,
		cancel:   cancel,
	}
	client.log = h.log.With(
		slog.String("identity", string(identity)),
		slog.String("connection_id", client.ID),
	)
	client.log.Info("stream opened", slog.String("op", op))

	go client.writePump()
	go client.readPump(h.relay)
}

func (c *Client) readPump(r *relay.Relay) {
	defer func() {
		c.cancel()
		c.sub.Close()
		c.Conn.Close()
		c.log.Info("stream closed")
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket error", sl.Err(err))
			}
			break
		}

		var msg models.Outbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.log.Debug("dropping unparseable message", sl.Err(err))
			continue
		}

		// Sender is always the authenticated identity of this stream.
		r.Publish(c.ctx, c.Identity, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.sub.Messages():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn("failed to write message", sl.Err(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
