// Package client implements a controller-side connection to a faderhub
// server: dial with bounded exponential backoff, application-level
// heartbeats, and automatic reconnection when the hub stops answering.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Event is a decoded hub message. Fields not present for a given type stay
// at their zero value; Sliders and Config stay raw for callers that want
// the full shapes.
type Event struct {
	Type             string          `json:"type"`
	ID               int             `json:"id"`
	Value            float64         `json:"value"`
	Connected        bool            `json:"connected"`
	ConnectedClients int             `json:"connectedClients"`
	Timestamp        string          `json:"timestamp"`
	Message          string          `json:"message"`
	Sliders          json.RawMessage `json:"sliders,omitempty"`
	Config           json.RawMessage `json:"config,omitempty"`
}

// Options configures a Client.
type Options struct {
	// URL is the hub's WebSocket endpoint, e.g. ws://host:3000/ws.
	URL string
	// MaxAttempts bounds dial attempts per outage. A permanently offline
	// hub makes Run return instead of retrying forever.
	MaxAttempts int
	// BaseDelay and MaxDelay shape the exponential backoff between
	// attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// PingInterval is how often a heartbeat ping is sent. A missed pong
	// abandons the connection and re-establishes it.
	PingInterval time.Duration
	// OnEvent, when set, is invoked for every decoded hub message.
	OnEvent func(Event)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	return o
}

// Client is a reconnecting hub connection. Run owns the connection; the
// mutation helpers may be called from any goroutine while Run is active.
type Client struct {
	opts Options

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a client. Call Run to connect.
func New(opts Options) *Client {
	return &Client{opts: opts.withDefaults()}
}

// Run connects and serves events until ctx is cancelled or the retry budget
// for an outage is exhausted.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		c.setConn(conn)
		err = c.session(ctx, conn)
		c.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Msg("connection lost, reconnecting")
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, c.opts.BaseDelay, c.opts.MaxDelay)
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("waiting before redial")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
		if err == nil {
			log.Info().Str("url", c.opts.URL).Msg("connected")
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("dial failed")
	}
	return nil, errors.Errorf("giving up on %s after %d attempts", c.opts.URL, c.opts.MaxAttempts)
}

// backoffDelay returns base*2^attempt capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// session reads events and runs the heartbeat until either fails or ctx is
// cancelled.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) error {
	g, sctx := errgroup.WithContext(ctx)
	pong := make(chan struct{}, 1)

	g.Go(func() error {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return errors.Wrap(err, "reading")
			}
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Debug().Err(err).Msg("dropping undecodable event")
				continue
			}
			if ev.Type == "pong" {
				select {
				case pong <- struct{}{}:
				default:
				}
				continue
			}
			if c.opts.OnEvent != nil {
				c.opts.OnEvent(ev)
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sctx.Done():
				return sctx.Err()
			case <-ticker.C:
			}
			if err := c.writeJSON(map[string]any{"type": "ping"}); err != nil {
				return errors.Wrap(err, "sending heartbeat")
			}
			select {
			case <-pong:
			case <-sctx.Done():
				return sctx.Err()
			case <-time.After(c.opts.PingInterval):
				return errors.New("heartbeat timed out")
			}
		}
	})
	g.Go(func() error {
		<-sctx.Done()
		_ = conn.Close()
		return nil
	})
	return g.Wait()
}

// SetValue submits a value change for a channel.
func (c *Client) SetValue(id int, value float64) error {
	return c.writeJSON(map[string]any{"type": "sliderChange", "id": id, "value": value})
}

// UpdateConfig submits a partial config update for a channel.
func (c *Client) UpdateConfig(id int, fields map[string]any) error {
	return c.writeJSON(map[string]any{"type": "configUpdate", "id": id, "config": fields})
}

// SendTransport submits a transport-control action.
func (c *Client) SendTransport(action string, value int) error {
	return c.writeJSON(map[string]any{"type": "transport", "action": action, "value": value})
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}
