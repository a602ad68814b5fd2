package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/deskpilot/deskpilot"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
	pongWait   = 60 * time.Second
)

// Client wraps one WebSocket connection. All frames leave through sendCh
// so the write pump is the only goroutine touching the connection for
// writes; command responses and broadcasts share the same path.
type Client struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	mu          sync.RWMutex
	closed      bool
	rateLimiter *rate.Limiter
	log         zerolog.Logger
	onWriteErr  func()
}

// NewClient creates a client for an upgraded connection and starts its
// write pump. onWriteErr, if non-nil, is invoked once per failed write.
func NewClient(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig, log zerolog.Logger, onWriteErr func()) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}

	client := &Client{
		id:          uuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, 256),
		rateLimiter: limiter,
		log:         log,
		onWriteErr:  onWriteErr,
	}

	go client.writePump()

	return client
}

// ID returns a unique identifier for the connected client.
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the client's remote network address.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns the client's lifecycle context.
func (c *Client) Context() context.Context {
	return c.ctx
}

// SendChannel exposes the outbound queue for broadcast fan-out. The
// channel is never closed; once the client shuts down, queued frames
// are dropped with the connection.
func (c *Client) SendChannel() chan<- []byte {
	return c.sendCh
}

// Send queues a frame for delivery to this client.
func (c *Client) Send(ctx context.Context, message []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errors.New(deskpilot.ErrConnectionClosed)
	}

	select {
	case c.sendCh <- message:
		c.mu.RUnlock()
		return nil
	case <-ctx.Done():
		c.mu.RUnlock()
		return ctx.Err()
	case <-c.ctx.Done():
		c.mu.RUnlock()
		return errors.New(deskpilot.ErrContextCancelled)
	}
}

// Close closes the client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional
// reason. Safe to call more than once. The send channel stays open so
// concurrent broadcasters never hit a closed channel; the write pump
// exits through the cancelled context instead.
func (c *Client) CloseWithCode(ctx context.Context, code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	c.conn.WriteControl(websocket.CloseMessage, message, deadline)

	return c.conn.Close()
}

// IsAlive returns true if the connection is still active.
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CheckRateLimit reports whether the client may send another message.
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		return true
	}
	return c.rateLimiter.Allow()
}

// writePump pumps frames from the send channel to the connection and
// keeps the connection warm with periodic pings. When the pump exits it
// cancels the client context so blocked senders and the read loop see
// the session end; without that, a Send parked on a full queue after a
// write failure would never return and the registry entry would leak.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Str("client_id", c.id).Msg("write failed")
				if c.onWriteErr != nil {
					c.onWriteErr()
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
