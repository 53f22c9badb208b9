package session

import "github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"

// Event is anything the dispatch loop reacts to. Signaling events are
// exported so the signaling layer can post them; the rest are internal.
type Event interface {
	event()
}

// RoomCreated answers a create request.
type RoomCreated struct {
	Code string
	Err  error
}

// JoinResult answers a join request.
type JoinResult struct {
	Code string
	Err  error
}

// PeerJoined tells the initiator a responder is in the room.
type PeerJoined struct {
	PeerID string
}

// RemoteSignal carries a connection-setup signal from the peer.
type RemoteSignal struct {
	Signal transport.Signal
}

// MetadataReceived delivers the initiator's file descriptor to the responder.
type MetadataReceived struct {
	File Descriptor
}

// ReceiverReady tells the initiator the responder accepted.
type ReceiverReady struct{}

// RemoteComplete is the relay's transfer-complete broadcast.
type RemoteComplete struct{}

// RemoteCancelled is the relay's transfer-cancelled broadcast.
type RemoteCancelled struct{}

// PeerDisconnected reports that the other participant's connection ended.
type PeerDisconnected struct{}

// RoomExpired reports that the server reclaimed the room by age.
type RoomExpired struct{}

// ServerError is an error message from the server that answers no request.
type ServerError struct {
	Message string
}

// SignalingLost reports an unexpected end of the signaling connection.
type SignalingLost struct {
	Err error
}

type createRequest struct{ src Source }
type joinRequest struct{ code string }
type acceptRequest struct{}
type declineRequest struct{}
type cancelRequest struct{}
type resetRequest struct{}

type timerKind int

const (
	peerWaitTimer timerKind = iota + 1
	connectTimer
)

type timerFired struct {
	kind timerKind
	gen  uint64
}

// Channel and sender events carry the link they belong to so that late
// callbacks from a destroyed channel are ignored.
type channelSignal struct {
	link uint64
	sig  transport.Signal
}

type channelConnected struct{ link uint64 }

type channelData struct {
	link uint64
	data []byte
}

type channelClosed struct {
	link uint64
	err  error
}

type sendProgress struct {
	link  uint64
	bytes int64
}

type sendFinished struct {
	link uint64
	err  error
}

func (RoomCreated) event()      {}
func (JoinResult) event()       {}
func (PeerJoined) event()       {}
func (RemoteSignal) event()     {}
func (MetadataReceived) event() {}
func (ReceiverReady) event()    {}
func (RemoteComplete) event()   {}
func (RemoteCancelled) event()  {}
func (PeerDisconnected) event() {}
func (RoomExpired) event()      {}
func (ServerError) event()      {}
func (SignalingLost) event()    {}

func (createRequest) event()    {}
func (joinRequest) event()      {}
func (acceptRequest) event()    {}
func (declineRequest) event()   {}
func (cancelRequest) event()    {}
func (resetRequest) event()     {}
func (timerFired) event()       {}
func (channelSignal) event()    {}
func (channelConnected) event() {}
func (channelData) event()      {}
func (channelClosed) event()    {}
func (sendProgress) event()     {}
func (sendFinished) event()     {}
