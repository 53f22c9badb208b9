package room

import "time"

// Role is the part a participant plays in a room.
type Role string

const (
	// RoleInitiator created the room and sends the file.
	RoleInitiator Role = "initiator"

	// RoleResponder joined the room with the code and receives the file.
	RoleResponder Role = "responder"
)

// Room represents a single rendezvous where two peers (initiator and responder) meet.
type Room struct {
	// Code is the short numeric identifier shared out of band.
	Code string

	// InitiatorID is the participant who created the room.
	InitiatorID string

	// ResponderID is the participant who joined the room, empty until a join succeeds.
	ResponderID string

	// CreatedAt is when the room was allocated.
	CreatedAt time.Time

	// Generation distinguishes this room from earlier rooms that used the same code.
	Generation uint64

	removalScheduled bool
}

// Paired reports whether a responder has joined.
func (r *Room) Paired() bool {
	return r.ResponderID != ""
}

// Participants returns the ids currently bound to the room.
func (r *Room) Participants() []string {
	ids := make([]string, 0, 2)
	if r.InitiatorID != "" {
		ids = append(ids, r.InitiatorID)
	}
	if r.ResponderID != "" {
		ids = append(ids, r.ResponderID)
	}
	return ids
}

// Peer returns the other participant of the room, or "" if there is none.
func (r *Room) Peer(participantID string) string {
	switch participantID {
	case r.InitiatorID:
		return r.ResponderID
	case r.ResponderID:
		return r.InitiatorID
	default:
		return ""
	}
}

// Binding ties a participant to the room it is in and the role it holds there.
type Binding struct {
	Code string
	Role Role
}
