package websocket

import (
	"sync"
	"time"

	"telehealth/internal/config"
	"telehealth/internal/models"
	"telehealth/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const rateLimitedCode = "RATE_LIMITED"

// Client is one authenticated websocket connection. An identity may hold
// several clients at once.
type Client struct {
	ID       string
	Identity models.Identity

	IP        string
	UserAgent string

	conn   *websocket.Conn
	outbox *Outbox

	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	rateLimit      int

	ConnectedAt time.Time

	mu           sync.Mutex
	lastSeen     time.Time
	messageCount int
	windowStart  time.Time
	received     int64
}

// NewClient wraps conn. conn may be nil for a client that is only ever
// driven through its outbox.
func NewClient(conn *websocket.Conn, identity models.Identity, cfg config.WebSocketConfig, messagesPerMinute int) *Client {
	now := time.Now()
	return &Client{
		ID:             uuid.NewString(),
		Identity:       identity,
		conn:           conn,
		outbox:         NewOutbox(cfg.SendBufferSize),
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingPeriod,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimit:      messagesPerMinute,
		ConnectedAt:    now,
		lastSeen:       now,
		windowStart:    now,
	}
}

func (c *Client) UserID() string { return c.Identity.UserID }

func (c *Client) Outbox() *Outbox { return c.outbox }

// Send encodes and enqueues one event. It reports false when the client is
// closed or the event cannot be encoded.
func (c *Client) Send(event models.EventType, requestID string, data interface{}, durable bool) bool {
	raw, err := Encode(event, requestID, data)
	if err != nil {
		logger.WithError(err).WithField("event", event).Error("Failed to encode websocket event")
		return false
	}
	return c.outbox.Push(raw, durable)
}

func (c *Client) sendError(requestID string, err error) {
	c.Send(models.EventError, requestID, errorPayload(err), false)
}

// Close stops accepting events. The write pump drains what is queued and
// then closes the socket.
func (c *Client) Close() bool {
	return c.outbox.Close()
}

func (c *Client) IsClosed() bool {
	return c.outbox.Closed()
}

func (c *Client) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// allow applies the per-connection fixed-window rate limit.
func (c *Client) allow() bool {
	if c.rateLimit <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.windowStart) > time.Minute {
		c.windowStart = now
		c.messageCount = 0
	}
	c.messageCount++
	return c.messageCount <= c.rateLimit
}

// Info is the admin view of a connection.
func (c *Client) Info() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"connection_id": c.ID,
		"user_id":       c.Identity.UserID,
		"role":          c.Identity.Role,
		"connected_at":  c.ConnectedAt,
		"last_seen":     c.lastSeen,
		"received":      c.received,
		"queued":        c.outbox.Len(),
		"dropped":       c.outbox.Dropped(),
	}
}

// ReadPump reads frames until the socket fails and hands each one to handle
// on the calling goroutine, which keeps each sender's events in order.
func (c *Client) ReadPump(handle func(*Client, *WSMessage)) {
	defer c.conn.Close()

	if c.maxMessageSize > 0 {
		c.conn.SetReadLimit(c.maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id":       c.UserID(),
					"connection_id": c.ID,
					"error":         err.Error(),
				}).Warn("WebSocket read error")
			}
			return
		}
		c.Touch()
		c.mu.Lock()
		c.received++
		c.mu.Unlock()

		msg, err := ParseMessage(raw)
		if err != nil {
			c.sendError("", err)
			continue
		}
		if !c.allow() {
			c.Send(models.EventError, msg.RequestID, ErrorPayload{
				Code:    rateLimitedCode,
				Message: "rate limit exceeded",
			}, false)
			continue
		}
		handle(c, msg)
	}
}

// WritePump writes queued events and keepalive pings until the outbox is
// closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.outbox.Ready():
			if !c.flush() {
				return
			}

		case <-c.outbox.Done():
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) flush() bool {
	for _, frame := range c.outbox.Drain() {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return false
		}
	}
	return true
}
