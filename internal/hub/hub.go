package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/faderhub/faderhub/internal/msglog"
	"github.com/faderhub/faderhub/internal/registry"
	"github.com/faderhub/faderhub/internal/sink"
)

// replayEntries is how much of the activity log a new connection receives in
// its full-state snapshot.
const replayEntries = 20

// Hub is the serialization point for all channel state. Its run loop
// processes one event at a time: client registration, inbound messages,
// and dispatch results. The registry, activity log, and connection set are
// only ever touched from that loop (plus read-locked sends), so no mutation
// can interleave with another.
type Hub struct {
	registry   *registry.Registry
	activity   *msglog.Log
	dispatcher *sink.Dispatcher

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub around the given registry, activity log, and
// dispatcher. The hub takes exclusive ownership of the registry.
func NewHub(reg *registry.Registry, activity *msglog.Log, dispatcher *sink.Dispatcher) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   reg,
		activity:   activity,
		dispatcher: dispatcher,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. Call it in its own goroutine; it returns
// after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Warn().Msg("nil client registration, skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case frame := <-h.inbound:
			h.handleInbound(frame)

		case result := <-h.dispatcher.Results():
			h.handleDispatchResult(result)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	count := len(h.clients)
	h.mutex.Unlock()

	log.Info().
		Str("conn", client.id.String()).
		Str("addr", client.addr).
		Int("clients", count).
		Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	// Snapshot inside the run loop, so the new connection sees a state no
	// other mutation can be interleaved with.
	h.sendTo(client, encodeFullState(h.registry.Snapshot(), count, h.activity.Recent(replayEntries)))
	h.broadcast(encodeConnectionStatus(count))
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	log.Info().
		Str("conn", client.id.String()).
		Str("addr", client.addr).
		Int("clients", count).
		Msg("client unregistered")

	h.broadcast(encodeConnectionStatus(count))
}

// handleInbound parses and routes one client message. Malformed or unknown
// messages are dropped without closing the connection.
func (h *Hub) handleInbound(frame inboundFrame) {
	var req request
	if err := json.Unmarshal(frame.data, &req); err != nil {
		log.Debug().Str("conn", frame.sender.id.String()).Err(err).Msg("dropping malformed message")
		return
	}

	switch req.Type {
	case typeSliderChange:
		h.handleSliderChange(req)
	case typeConfigUpdate:
		h.handleConfigUpdate(req)
	case typePing:
		h.sendTo(frame.sender, encodePong())
	case typeTransport:
		h.handleTransport(req)
	default:
		log.Debug().Str("type", req.Type).Msg("dropping message of unknown type")
	}
}

func (h *Hub) handleSliderChange(req request) {
	stored, changed, err := h.registry.ApplyValue(req.ID, req.Value)
	if err != nil {
		log.Debug().Int("id", req.ID).Err(err).Msg("dropping slider change")
		return
	}
	if !changed {
		return
	}
	ch, err := h.registry.Get(req.ID)
	if err != nil {
		return
	}
	h.dispatcher.Dispatch(ch)
	h.broadcast(encodeSliderUpdate(req.ID, stored))
}

func (h *Hub) handleConfigUpdate(req request) {
	applied, err := h.registry.ApplyConfig(req.ID, req.Config)
	if err != nil {
		log.Debug().Int("id", req.ID).Err(err).Msg("dropping config update")
		return
	}
	if applied.Empty() {
		log.Debug().Int("id", req.ID).Msg("config update had no valid fields")
		return
	}
	// Config changes never touch the output sink; they only re-broadcast.
	h.broadcast(encodeConfigUpdate(req.ID, applied))
}

func (h *Hub) handleTransport(req request) {
	if _, ok := sink.TransportCC(req.Action); !ok {
		log.Debug().Str("action", req.Action).Msg("dropping unknown transport action")
		return
	}
	h.dispatcher.DispatchTransport(req.Action, int(req.Value))
}

func (h *Hub) handleDispatchResult(result sink.Result) {
	if result.Err != nil {
		log.Warn().Err(result.Err).Int("channel", result.ChannelID).Msg("dispatch failed")
	}
	entry := h.activity.Record(result.Message)
	h.broadcast(encodeLogUpdate(entry.Timestamp, entry.Message))
}

// sendTo delivers a payload to a single client, removing it if its buffer is
// full or it is already closed.
func (h *Hub) sendTo(client *Client, payload []byte) {
	if !h.safeSend(client, payload) {
		h.removeFailed([]*Client{client})
	}
}

// broadcast fans a payload out to every registered client. Clients whose
// send buffers are full are removed rather than allowed to stall the loop.
func (h *Hub) broadcast(payload []byte) {
	var failed []*Client
	for _, client := range h.clientSnapshot() {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailed(failed)
}

func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("recovered from send on closed channel")
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailed drops clients whose sends failed and tells the survivors
// about the new connection count. Failures during that status broadcast are
// picked up by the next broadcast.
func (h *Hub) removeFailed(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var toClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			toClose = append(toClose, client.send)
			log.Warn().Str("conn", client.id.String()).Str("addr", client.addr).Msg("client removed, send buffer full")
		}
	}
	count := len(h.clients)
	h.mutex.Unlock()

	for _, ch := range toClose {
		close(ch)
	}
	if len(toClose) > 0 {
		status := encodeConnectionStatus(count)
		for _, client := range h.clientSnapshot() {
			h.safeSend(client, status)
		}
	}
}

// ClientCount reports the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Str("addr", client.addr).Err(err).Msg("error closing client connection")
		}
	}
	log.Info().Int("clients", len(clients)).Msg("closed all client connections")
}

// Shutdown stops the run loop and waits for the client goroutines to finish,
// up to the given timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		log.Warn().Msg("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
