package session

// State is the lifecycle position of a transfer session.
type State int

const (
	Idle State = iota
	Waiting
	Connecting
	Connected
	Transferring
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{
	Idle:         "idle",
	Waiting:      "waiting",
	Connecting:   "connecting",
	Connected:    "connected",
	Transferring: "transferring",
	Completed:    "completed",
	Failed:       "failed",
	Cancelled:    "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether only Reset can leave the state.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Role is the side a session plays in a transfer.
type Role int

const (
	NoRole Role = iota

	// Initiator created the room and sends the file.
	Initiator

	// Responder joined with a code and receives the file.
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "none"
	}
}

// Descriptor describes the file on offer.
type Descriptor struct {
	Name string
	Size int64
	Type string
}
