// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// Client represents an authenticated WebSocket connection. It implements
// chat.Conn: frames queued with Send are written by the write pump, and every
// inbound frame is handed to the hub's sessions from the read pump.
type Client struct {
	id       string
	identity model.Identity
	conn     *websocket.Conn
	hub      *Hub
	addr     string

	mu     sync.Mutex
	send   chan []byte
	closed bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	disconnectOnce sync.Once
}

// NewClient creates a new Client for an upgraded connection authenticated as
// identity. The client's send channel is buffered to handle message queuing.
func NewClient(conn *websocket.Conn, hub *Hub, identity model.Identity, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		id:             uuid.NewString(),
		identity:       identity,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection id, unique for the life of the process.
func (c *Client) ID() string { return c.id }

// Identity returns the user the connection authenticated as.
func (c *Client) Identity() model.Identity { return c.identity }

// Send queues frame for the write pump without blocking. A client whose queue
// is full cannot keep up and is closed.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		logger.Warn("Send buffer full, closing client", "addr", c.addr, "user", c.identity.ID)
		c.closeSendLocked()
		return false
	}
}

// close stops accepting frames and lets the write pump drain and exit.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
}

func (c *Client) closeSendLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// disconnect tears down the client's chat state. Only the first call has
// an effect.
func (c *Client) disconnect() {
	c.disconnectOnce.Do(func() {
		c.hub.sessions.Disconnect(context.Background(), c)
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Warn("Error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Warn("Error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// logReadError logs why the read loop is ending.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warn("Message exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		logger.Info("Client disconnected", "addr", c.addr, "user", c.identity.ID, "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		logger.Info("Client connection closed", "addr", c.addr, "user", c.identity.ID, "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		logger.Warn("Unexpected WebSocket error", "addr", c.addr, "error", err)
	default:
		logger.Warn("WebSocket read error", "addr", c.addr, "error", err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		logger.Warn("Rate limit exceeded, rejecting message",
			"addr", c.addr, "user", c.identity.ID, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			logger.Warn("Error closing connection in readPump", "addr", c.addr, "error", err)
		}
	}()

	c.setupReadConnection()
	c.hub.sessions.Connect(c.hub.ctx, c)

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			c.hub.sessions.Reject(c, rawMessage, chat.ErrRateLimited)
			continue
		}

		c.hub.sessions.Handle(c.hub.ctx, c, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		logger.Warn("Error closing connection in writePump", "addr", c.addr, "error", err)
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logger.Warn("Error setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		logger.Warn("Error writing close message", "addr", c.addr, "error", err)
	}
	return false
}

// writeTextMessage writes one frame per WebSocket message so each message is
// a complete JSON document.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			logger.Warn("Error writing message", "addr", c.addr, "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logger.Warn("Error setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		logger.Warn("Error writing ping message", "addr", c.addr, "error", err)
		return false
	}
	return true
}
