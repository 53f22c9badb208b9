// Package transport describes the direct peer channel the transfer session
// drives. The session never looks beneath this contract.
package transport

import "errors"

// Signal kinds.
const (
	KindOffer     = "offer"
	KindAnswer    = "answer"
	KindCandidate = "candidate"
)

var (
	ErrClosed    = errors.New("channel closed")
	ErrNotOpen   = errors.New("channel not open")
	ErrBadSignal = errors.New("unexpected signal")
)

// Signal is a connection-setup envelope. Only the channel implementation
// interprets Payload; everything in between carries it untouched.
type Signal struct {
	Kind    string `json:"kind"`
	Payload []byte `json:"payload"`
}

// Handlers receive channel events. They may be called from any goroutine
// and must not block.
type Handlers struct {
	// OnSignal is called for every locally generated signal that must reach the peer.
	OnSignal func(Signal)

	// OnConnected fires once the channel can carry data.
	OnConnected func()

	// OnData delivers one inbound binary message. The slice is owned by the callee.
	OnData func([]byte)

	// OnClosed fires at most once when the channel closes or fails.
	OnClosed func(error)
}

// Channel is an ordered, reliable binary message channel to one peer.
type Channel interface {
	// AcceptRemoteSignal feeds a signal produced by the peer's channel.
	AcceptRemoteSignal(Signal) error

	// Send transmits one binary message. It may block for flow control.
	Send([]byte) error

	// IsOpen reports whether Send can currently succeed.
	IsOpen() bool

	// Destroy releases the channel. It is safe to call more than once.
	Destroy() error
}

// Factory creates channels. The initiator side produces the first signal.
type Factory interface {
	NewChannel(isInitiator bool, h Handlers) (Channel, error)
}

// EmitSignal calls OnSignal if set.
func (h Handlers) EmitSignal(s Signal) {
	if h.OnSignal != nil {
		h.OnSignal(s)
	}
}

// EmitConnected calls OnConnected if set.
func (h Handlers) EmitConnected() {
	if h.OnConnected != nil {
		h.OnConnected()
	}
}

// EmitData calls OnData if set.
func (h Handlers) EmitData(b []byte) {
	if h.OnData != nil {
		h.OnData(b)
	}
}

// EmitClosed calls OnClosed if set.
func (h Handlers) EmitClosed(err error) {
	if h.OnClosed != nil {
		h.OnClosed(err)
	}
}
