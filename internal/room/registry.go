// Package room holds the authoritative in-memory table of active rooms and
// the participant bindings that hang off it.
//
// A Registry is not safe for concurrent use. It is owned by a single event
// loop (the relay hub) which serializes every mutation.
package room

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/code"
)

const (
	// DefaultMaxAge is how long a room may live before the sweep removes it.
	DefaultMaxAge = 10 * time.Minute

	// DefaultCompletionGrace is the delay between transfer-complete and room removal.
	DefaultCompletionGrace = 2 * time.Minute
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrAlreadyBound = errors.New("participant is already in a room")
)

// TimeProvider abstracts the clock for deterministic expiry tests.
type TimeProvider interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Registry maps room codes to rooms and participants to their bindings.
type Registry struct {
	rooms     map[string]*Room
	bindings  map[string]Binding
	generator code.Generator
	clock     TimeProvider
	maxAge    time.Duration
	nextGen   uint64
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock.
func WithClock(c TimeProvider) Option {
	return func(r *Registry) { r.clock = c }
}

// WithGenerator replaces the code generator.
func WithGenerator(g code.Generator) Option {
	return func(r *Registry) { r.generator = g }
}

// WithMaxAge sets the age after which Expire removes a room.
func WithMaxAge(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:    make(map[string]*Room),
		bindings: make(map[string]Binding),
		clock:    systemClock{},
		maxAge:   DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom allocates a fresh code and binds participantID to it as initiator.
func (r *Registry) CreateRoom(participantID string) (string, error) {
	if _, ok := r.bindings[participantID]; ok {
		return "", ErrAlreadyBound
	}

	c, err := r.generator.Generate(func(s string) bool {
		_, ok := r.rooms[s]
		return ok
	})
	if err != nil {
		return "", err
	}

	r.nextGen++
	r.rooms[c] = &Room{
		Code:        c,
		InitiatorID: participantID,
		CreatedAt:   r.clock.Now(),
		Generation:  r.nextGen,
	}
	r.bindings[participantID] = Binding{Code: c, Role: RoleInitiator}

	log.Debug().Str("module", "room").Str("code", c).Str("client", participantID).Msg("room created")
	return c, nil
}

// JoinRoom binds participantID to the room as responder.
// A room never holds more than one responder; a second join fails with ErrRoomFull.
func (r *Registry) JoinRoom(c, participantID string) error {
	if _, ok := r.bindings[participantID]; ok {
		return ErrAlreadyBound
	}

	room, ok := r.rooms[c]
	if !ok {
		return ErrRoomNotFound
	}
	if room.ResponderID != "" {
		return ErrRoomFull
	}

	room.ResponderID = participantID
	r.bindings[participantID] = Binding{Code: c, Role: RoleResponder}

	log.Debug().Str("module", "room").Str("code", c).Str("client", participantID).Msg("room joined")
	return nil
}

// Lookup returns the room for a code, or nil.
func (r *Registry) Lookup(c string) *Room {
	return r.rooms[c]
}

// BindingFor returns the room binding of a participant.
func (r *Registry) BindingFor(participantID string) (Binding, bool) {
	b, ok := r.bindings[participantID]
	return b, ok
}

// Remove deletes a room and releases both of its bindings. Removing an
// unknown code is a no-op.
func (r *Registry) Remove(c string) {
	room, ok := r.rooms[c]
	if !ok {
		return
	}
	delete(r.rooms, c)
	for _, id := range room.Participants() {
		if b, ok := r.bindings[id]; ok && b.Code == c {
			delete(r.bindings, id)
		}
	}
	log.Debug().Str("module", "room").Str("code", c).Msg("room removed")
}

// RemoveGeneration removes the room only if it is still the same room that
// held the code at generation gen. It reports whether a room was removed.
func (r *Registry) RemoveGeneration(c string, gen uint64) bool {
	room, ok := r.rooms[c]
	if !ok || room.Generation != gen {
		return false
	}
	r.Remove(c)
	return true
}

// Unbind releases a participant's binding without touching the room.
func (r *Registry) Unbind(participantID string) {
	delete(r.bindings, participantID)
}

// ScheduleRemoval marks a room for deferred removal. It returns the room's
// generation and true only for the first call on a given room.
func (r *Registry) ScheduleRemoval(c string) (uint64, bool) {
	room, ok := r.rooms[c]
	if !ok || room.removalScheduled {
		return 0, false
	}
	room.removalScheduled = true
	return room.Generation, true
}

// Expire removes every room older than the configured max age and returns
// snapshots of the removed rooms.
func (r *Registry) Expire() []Room {
	now := r.clock.Now()

	var expired []Room
	for c, room := range r.rooms {
		if now.Sub(room.CreatedAt) <= r.maxAge {
			continue
		}
		expired = append(expired, *room)
		r.Remove(c)
		log.Info().Str("module", "room").Str("code", c).Bool("paired", room.Paired()).Msg("cleaning up expired room")
	}
	return expired
}

// Count returns the number of active rooms.
func (r *Registry) Count() int {
	return len(r.rooms)
}
