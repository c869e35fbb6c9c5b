// Package server coordinates client registration, room event routing, and
// connection cleanup for the room chat system via the Hub type.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/router"
	"github.com/Tyrowin/roomchat/internal/session"
	"github.com/Tyrowin/roomchat/internal/typing"
)

// clientEvent is one item on the hub's inbound queue: either a raw frame or,
// when closed is set, the end of the connection. Frames and the close of a
// connection travel on the same channel so the close is always handled last.
type clientEvent struct {
	client *Client
	frame  []byte
	closed bool
}

// RoomStats reports the occupancy of one catalog room.
type RoomStats struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Members int    `json:"members"`
}

// Stats is a point-in-time snapshot of hub state.
type Stats struct {
	Clients  int         `json:"clients"`
	Sessions int         `json:"sessions"`
	Typing   int         `json:"typing"`
	Rooms    []RoomStats `json:"rooms"`
}

// Hub is the single execution queue of the chat server. Its Run loop is the
// only goroutine that touches the room registry, the session store and the
// typing coordinator; pumps and timers talk to it through channels.
type Hub struct {
	clients  map[string]*Client
	register chan *Client
	events   chan clientEvent
	expired  chan typing.Expiry

	registry *rooms.Registry
	sessions *session.Store
	typing   *typing.Coordinator
	router   *router.Router

	mutex   sync.RWMutex
	stats   Stats
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running sync.Once
}

// NewHub creates a hub for the active configuration. Typing timers run on
// the real clock.
func NewHub() *Hub {
	return NewHubWithScheduler(typing.RealScheduler{})
}

// NewHubWithScheduler creates a hub whose typing timers come from sched.
func NewHubWithScheduler(sched typing.Scheduler) *Hub {
	cfg := currentConfig()
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:  make(map[string]*Client),
		register: make(chan *Client),
		events:   make(chan clientEvent, 256),
		expired:  make(chan typing.Expiry),
		registry: rooms.NewRegistry(cfg.Rooms),
		sessions: session.NewStore(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.typing = typing.New(cfg.TypingTimeout, sched, h.enqueueExpiry)
	h.router = router.New(router.Config{StrictMembership: cfg.StrictMembership}, h.registry, h.sessions, h.typing)
	h.refreshStats()
	return h
}

// Catalog returns the rooms this hub serves.
func (h *Hub) Catalog() rooms.Catalog {
	return h.registry.Catalog()
}

// Stats returns the snapshot taken after the last processed event.
func (h *Hub) Stats() Stats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	s := h.stats
	s.Rooms = append([]RoomStats(nil), h.stats.Rooms...)
	return s
}

// Register hands a freshly upgraded client to the hub. It returns false when
// the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// enqueueExpiry runs on timer goroutines.
func (h *Hub) enqueueExpiry(e typing.Expiry) {
	select {
	case h.expired <- e:
	case <-h.ctx.Done():
	}
}

// submit queues an event from a client's read pump.
func (h *Hub) submit(ev clientEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run starts the hub's main event loop. It returns after Shutdown.
func (h *Hub) Run() {
	h.running.Do(func() {
		defer close(h.done)
		h.loop()
	})
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case ev := <-h.events:
			if ev.closed {
				h.handleDisconnect(ev.client)
			} else {
				h.handleFrame(ev.client, ev.frame)
			}

		case e := <-h.expired:
			h.deliver(h.router.Expire(e))
		}
		h.refreshStats()
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		log.Warn().Str("module", "server.hub").Msg("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.router.Connect(client.id)
	log.Info().Str("module", "server.hub").Str("conn", client.id).Str("addr", client.addr).
		Int("clients", clientCount).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleFrame(client *Client, frame []byte) {
	in, err := protocol.Decode(frame)
	if err != nil {
		log.Warn().Str("module", "server.hub").Str("conn", client.id).Err(err).Msg("dropping frame")
		return
	}

	deliveries, err := h.router.Handle(client.id, in)
	if err != nil {
		log.Warn().Str("module", "server.hub").Str("conn", client.id).Str("event", in.Event).
			Err(err).Msg("dropping event")
		return
	}

	log.Debug().Str("module", "server.hub").Str("conn", client.id).Str("event", in.Event).
		Int("deliveries", len(deliveries)).Msg("event routed")
	h.deliver(deliveries)
}

func (h *Hub) handleDisconnect(client *Client) {
	h.detach(client)

	deliveries, err := h.router.Disconnect(client.id)
	if err != nil {
		if !errors.Is(err, session.ErrUnknownSession) {
			log.Warn().Str("module", "server.hub").Str("conn", client.id).Err(err).Msg("disconnect failed")
		}
		return
	}

	log.Info().Str("module", "server.hub").Str("conn", client.id).Str("addr", client.addr).
		Int("clients", h.clientCount()).Msg("client disconnected")
	h.deliver(deliveries)
}

// deliver encodes each delivery once and queues it on every recipient.
// Recipients whose buffers are full are dropped; their read pumps report the
// disconnect later.
func (h *Hub) deliver(deliveries []router.Delivery) {
	var failed []*Client

	for _, d := range deliveries {
		payload, err := protocol.Encode(d.Event, d.Payload)
		if err != nil {
			log.Error().Str("module", "server.hub").Str("event", d.Event).Err(err).Msg("encode failed")
			continue
		}

		for _, id := range d.Recipients {
			client, ok := h.client(id)
			if !ok {
				continue
			}
			if !h.safeSend(client, payload) {
				failed = append(failed, client)
			}
		}
	}

	h.removeFailedClients(failed)
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	c, ok := h.clients[id]
	return c, ok
}

func (h *Hub) clientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "server.hub").Interface("panic", r).Msg("recovered in safeSend")
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client.id]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// detach removes the client from the delivery map and closes its send
// channel, which makes the write pump send a close frame and exit.
func (h *Hub) detach(client *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client.id)
	client.closed = true
	h.mutex.Unlock()

	close(client.send)
	return true
}

// removeFailedClients detaches clients that could not keep up. Their
// sessions stay open until the read pump reports the connection closed.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	for _, client := range clientsToRemove {
		if h.detach(client) {
			log.Warn().Str("module", "server.hub").Str("conn", client.id).Str("addr", client.addr).
				Msg("client removed due to full send buffer")
		}
	}
}

func (h *Hub) refreshStats() {
	catalog := h.registry.Catalog()
	roomStats := make([]RoomStats, 0, len(catalog))
	for _, room := range catalog {
		roomStats = append(roomStats, RoomStats{
			Key:     room.Key,
			Label:   room.Label,
			Members: h.registry.Count(room.Key),
		})
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.stats = Stats{
		Clients:  len(h.clients),
		Sessions: h.sessions.Len(),
		Typing:   h.typing.Active(),
		Rooms:    roomStats,
	}
}

// shutdownClients closes every active connection. Typing indicators are
// dropped without notification since nobody is left to receive them.
func (h *Hub) shutdownClients() {
	log.Info().Str("module", "server.hub").Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		h.typing.DropOwner(client.id)
		h.detach(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Warn().Str("module", "server.hub").Str("conn", client.id).Err(err).Msg("error closing client connection")
			}
		}
	}

	log.Info().Str("module", "server.hub").Int("closed", len(clients)).Msg("client connections closed")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info().Str("module", "server.hub").Msg("initiating hub shutdown")

	h.cancel()

	select {
	case <-h.done:
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("module", "server.hub").Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Warn().Str("module", "server.hub").Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
