// Package relay is the signaling server core: a single event loop that owns
// the room registry and routes messages between the two participants of a
// room.
package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/protocol"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/room"
)

const (
	// DefaultSweepInterval is how often expired rooms are collected.
	DefaultSweepInterval = 60 * time.Second
)

// Inbound is a message read from a client, waiting to be routed by the hub.
type Inbound struct {
	Client  *Client
	Message *protocol.Message
}

// graceExpiry fires when a completed room's grace period is over.
type graceExpiry struct {
	code       string
	generation uint64
}

// Status is a point-in-time view for health checks.
type Status struct {
	Rooms     int
	Timestamp time.Time
}

// Hub is the central brain of the signaling server.
// Every state change happens on the goroutine running Run.
type Hub struct {
	rooms   *room.Registry
	clients map[string]*Client

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries messages read by client read pumps.
	Inbound chan *Inbound

	timers chan graceExpiry
	done   chan struct{}

	grace         time.Duration
	sweepInterval time.Duration

	// schedule runs fn after d. Replaced in tests.
	schedule func(d time.Duration, fn func())

	activeRooms atomic.Int64
}

// Option customizes a Hub.
type Option func(*Hub)

// WithCompletionGrace sets how long a completed room lingers before removal.
func WithCompletionGrace(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.grace = d
		}
	}
}

// WithSweepInterval sets how often the expiry sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sweepInterval = d
		}
	}
}

// NewHub creates a new Hub around an owned registry.
func NewHub(rooms *room.Registry, opts ...Option) *Hub {
	h := &Hub{
		rooms:         rooms,
		clients:       make(map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Inbound:       make(chan *Inbound, 64),
		timers:        make(chan graceExpiry, 16),
		done:          make(chan struct{}),
		grace:         room.DefaultCompletionGrace,
		sweepInterval: DefaultSweepInterval,
	}
	h.schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's main processing loop and blocks until ctx is done.
// This is the single goroutine that manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case in := <-h.Inbound:
			h.route(in.Client, in.Message)

		case ev := <-h.timers:
			h.expireGrace(ev)

		case <-ticker.C:
			h.sweep()

		case <-ctx.Done():
			log.Info().Str("module", "relay").Msg("hub stopped")
			return
		}
		h.activeRooms.Store(int64(h.rooms.Count()))
	}
}

// Status returns the active room count; safe to call from any goroutine.
func (h *Hub) Status() Status {
	return Status{
		Rooms:     int(h.activeRooms.Load()),
		Timestamp: time.Now().UTC(),
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) register(c *Client) {
	h.clients[c.ID] = c
	log.Info().Str("module", "relay").Str("client", c.ID).Msg("client connected")
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	log.Info().Str("module", "relay").Str("client", c.ID).Msg("client disconnected")

	// Either side leaving tears the room down for both.
	if b, ok := h.rooms.BindingFor(c.ID); ok {
		if r := h.rooms.Lookup(b.Code); r != nil {
			if peer := r.Peer(c.ID); peer != "" {
				h.deliver(peer, protocol.Simple(protocol.TypePeerDisconnected))
			}
			log.Info().Str("module", "relay").Str("code", b.Code).Msg("cleaning up room after disconnect")
			h.rooms.Remove(b.Code)
		}
		h.rooms.Unbind(c.ID)
	}

	close(c.Send)
}

// route is the single dispatch point for client messages.
func (h *Hub) route(c *Client, msg *protocol.Message) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	log.Debug().Str("module", "relay").Str("type", msg.Type).Str("client", c.ID).Msg("message received")

	switch msg.Type {
	case protocol.TypeCreateRoom:
		h.handleCreateRoom(c)
	case protocol.TypeJoinRoom:
		h.handleJoinRoom(c, msg)
	case protocol.TypeSignal:
		h.handleSignal(c, msg)
	case protocol.TypeFileMetadata:
		h.handleFileMetadata(c, msg)
	case protocol.TypeReceiverReady:
		h.handleReceiverReady(c)
	case protocol.TypeTransferComplete:
		h.handleTransferComplete(c)
	case protocol.TypeCancelTransfer:
		h.handleCancelTransfer(c)
	default:
		log.Warn().Str("module", "relay").Str("type", msg.Type).Msg("unknown message type")
		h.deliverTo(c, newMessage(protocol.TypeError, protocol.ErrorPayload{Error: protocol.ErrUnknownType}))
	}
}

func (h *Hub) handleCreateRoom(c *Client) {
	code, err := h.rooms.CreateRoom(c.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("client", c.ID).Msg("error creating room")
		msg := err.Error()
		if errors.Is(err, room.ErrAlreadyBound) {
			msg = protocol.ErrAlreadyInRoom
		}
		h.reply(c, protocol.TypeRoomCreated, protocol.Result{Success: false, Error: msg})
		return
	}

	log.Info().Str("module", "relay").Str("code", code).Str("client", c.ID).Msg("room created")
	h.reply(c, protocol.TypeRoomCreated, protocol.Result{Success: true, Code: code})
}

func (h *Hub) handleJoinRoom(c *Client, msg *protocol.Message) {
	var p protocol.JoinRoomPayload
	if err := msg.Decode(&p); err != nil {
		h.reply(c, protocol.TypeJoinResult, protocol.Result{Success: false, Error: protocol.ErrInvalidCode})
		return
	}

	if err := h.rooms.JoinRoom(p.Code, c.ID); err != nil {
		log.Info().Str("module", "relay").Str("code", p.Code).Err(err).Msg("room join failed")
		h.reply(c, protocol.TypeJoinResult, protocol.Result{Success: false, Error: joinError(err)})
		return
	}

	log.Info().Str("module", "relay").Str("code", p.Code).Str("client", c.ID).Msg("client joined room")

	r := h.rooms.Lookup(p.Code)
	joined, err := protocol.NewMessage(protocol.TypePeerJoined, protocol.PeerJoinedPayload{PeerID: c.ID})
	if err == nil {
		h.deliver(r.InitiatorID, joined)
	}
	h.reply(c, protocol.TypeJoinResult, protocol.Result{Success: true, Code: p.Code})
}

func joinError(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomFull):
		return protocol.ErrRoomFull
	case errors.Is(err, room.ErrAlreadyBound):
		return protocol.ErrAlreadyInRoom
	default:
		return protocol.ErrInvalidCode
	}
}

func (h *Hub) handleSignal(c *Client, msg *protocol.Message) {
	r, _, ok := h.roomOf(c)
	if !ok {
		return
	}

	var p protocol.SignalPayload
	if err := msg.Decode(&p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("client", c.ID).Msg("dropping malformed signal")
		return
	}
	p.From = c.ID

	fwd, err := protocol.NewMessage(protocol.TypeSignal, p)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("re-encode signal")
		return
	}

	target := r.Peer(c.ID)
	if target == "" {
		log.Debug().Str("module", "relay").Str("code", r.Code).Msg("signal dropped: no other peer in room")
		return
	}
	h.deliver(target, fwd)
}

func (h *Hub) handleFileMetadata(c *Client, msg *protocol.Message) {
	r, role, ok := h.roomOf(c)
	if !ok || role != room.RoleInitiator || r.ResponderID == "" {
		return
	}
	h.deliver(r.ResponderID, msg)
}

func (h *Hub) handleReceiverReady(c *Client) {
	r, role, ok := h.roomOf(c)
	if !ok || role != room.RoleResponder {
		return
	}
	h.deliver(r.InitiatorID, protocol.Simple(protocol.TypeReceiverReady))
}

func (h *Hub) handleTransferComplete(c *Client) {
	r, _, ok := h.roomOf(c)
	if !ok {
		return
	}
	h.broadcast(r, protocol.Simple(protocol.TypeTransferComplete))

	gen, armed := h.rooms.ScheduleRemoval(r.Code)
	if !armed {
		return
	}
	code := r.Code
	h.schedule(h.grace, func() {
		select {
		case h.timers <- graceExpiry{code: code, generation: gen}:
		case <-h.done:
		}
	})
}

func (h *Hub) handleCancelTransfer(c *Client) {
	r, _, ok := h.roomOf(c)
	if !ok {
		return
	}
	h.broadcast(r, protocol.Simple(protocol.TypeTransferCancelled))
	h.rooms.Remove(r.Code)
	log.Info().Str("module", "relay").Str("code", r.Code).Msg("transfer cancelled, room removed")
}

func (h *Hub) expireGrace(ev graceExpiry) {
	if h.rooms.RemoveGeneration(ev.code, ev.generation) {
		log.Info().Str("module", "relay").Str("code", ev.code).Msg("cleaning up completed room")
	}
}

// sweep drops stale rooms. Whoever is still bound hears about it, including
// an initiator nobody joined, so it does not keep advertising a dead code.
func (h *Hub) sweep() {
	for _, r := range h.rooms.Expire() {
		h.broadcast(&r, protocol.Simple(protocol.TypeRoomExpired))
	}
}

// roomOf resolves the room a client is bound to. Messages from clients whose
// room is gone are dropped without answering the sender.
func (h *Hub) roomOf(c *Client) (*room.Room, room.Role, bool) {
	b, ok := h.rooms.BindingFor(c.ID)
	if !ok {
		log.Debug().Str("module", "relay").Str("client", c.ID).Msg("client is not in any room, dropping message")
		return nil, "", false
	}
	r := h.rooms.Lookup(b.Code)
	if r == nil {
		log.Warn().Str("module", "relay").Str("code", b.Code).Msg("room not found, dropping message")
		return nil, "", false
	}
	return r, b.Role, true
}

func (h *Hub) broadcast(r *room.Room, msg *protocol.Message) {
	for _, id := range r.Participants() {
		h.deliver(id, msg)
	}
}

func (h *Hub) reply(c *Client, t string, result protocol.Result) {
	h.deliverTo(c, newMessage(t, result))
}

func (h *Hub) deliver(clientID string, msg *protocol.Message) {
	if msg == nil {
		return
	}
	c, ok := h.clients[clientID]
	if !ok {
		log.Debug().Str("module", "relay").Str("client", clientID).Str("type", msg.Type).Msg("target gone, dropping message")
		return
	}
	h.deliverTo(c, msg)
}

// deliverTo never blocks the hub; a client whose buffer is full loses the message.
func (h *Hub) deliverTo(c *Client, msg *protocol.Message) {
	if msg == nil {
		return
	}
	select {
	case c.Send <- msg:
	default:
		log.Warn().Str("module", "relay").Str("client", c.ID).Str("type", msg.Type).Msg("send buffer full, dropping message")
	}
}

// newMessage encodes payload, returning nil when it cannot be encoded.
// Delivery skips nil messages.
func newMessage(t string, payload any) *protocol.Message {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("type", t).Msg("failed to encode message, dropping")
		return nil
	}
	return msg
}
