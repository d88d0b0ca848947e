package hub

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBuffer = 256
)

// Client is one live WebSocket session. The hub owns the registration state;
// the client owns its read and write pumps. Inbound frames are forwarded
// raw to the hub so that parsing and validation happen inside the hub's
// serialization boundary.
type Client struct {
	id          ulid.ULID
	connectedAt time.Time

	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string
	closed bool

	maxMessageSize int64
	limiter        *limiter
}

// NewClient wraps an upgraded connection. The hub launches the pumps when
// the client is registered.
func NewClient(conn *websocket.Conn, h *Hub, addr string, maxMessageSize int64, rate rateConfig) *Client {
	if conn != nil && maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Client{
		id:             ulid.Make(),
		connectedAt:    time.Now(),
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            h,
		addr:           addr,
		maxMessageSize: maxMessageSize,
		limiter:        newLimiter(rate.burst, rate.refill),
	}
}

// ID returns the connection's identifier.
func (c *Client) ID() ulid.ULID {
	return c.id
}

// ConnectedAt returns when the session was opened.
func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Debug().Str("addr", c.addr).Err(err).Msg("error closing connection in read pump")
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.allow() {
			log.Debug().Str("addr", c.addr).Msg("rate limit exceeded, discarding message")
			continue
		}
		select {
		case c.hub.inbound <- inboundFrame{sender: c, data: data}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn().Str("addr", c.addr).Int64("limit", c.maxMessageSize).Msg("message exceeded size limit")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Debug().Str("addr", c.addr).Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Debug().Str("addr", c.addr).Err(err).Msg("connection closed")
	default:
		log.Warn().Str("addr", c.addr).Err(err).Msg("websocket read error")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Debug().Str("addr", c.addr).Err(err).Msg("error closing connection in write pump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					log.Debug().Str("addr", c.addr).Err(err).Msg("websocket write error")
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError reports whether the error is part of normal
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
