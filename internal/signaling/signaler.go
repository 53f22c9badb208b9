package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/protocol"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

// Outbox carries messages to the signaling server.
type Outbox interface {
	Send(*protocol.Message) error
	Close() error
}

// Signaler turns session requests into protocol messages.
// It implements session.Signaler.
type Signaler struct {
	out Outbox
}

// NewSignaler creates a Signaler writing to out.
func NewSignaler(out Outbox) *Signaler {
	return &Signaler{out: out}
}

func (s *Signaler) CreateRoom() error {
	return s.out.Send(protocol.Simple(protocol.TypeCreateRoom))
}

func (s *Signaler) JoinRoom(code string) error {
	return s.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Code: code})
}

func (s *Signaler) SendSignal(sig transport.Signal) error {
	raw, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return s.send(protocol.TypeSignal, protocol.SignalPayload{Signal: raw})
}

func (s *Signaler) SendFileMetadata(d session.Descriptor) error {
	return s.send(protocol.TypeFileMetadata, protocol.FileMetadata{Name: d.Name, Size: d.Size, Type: d.Type})
}

func (s *Signaler) SendReceiverReady() error {
	return s.out.Send(protocol.Simple(protocol.TypeReceiverReady))
}

func (s *Signaler) SendTransferComplete() error {
	return s.out.Send(protocol.Simple(protocol.TypeTransferComplete))
}

func (s *Signaler) SendCancel() error {
	return s.out.Send(protocol.Simple(protocol.TypeCancelTransfer))
}

// Leave ends the connection. The server releases the room binding when the
// socket closes.
func (s *Signaler) Leave() error {
	return s.out.Close()
}

func (s *Signaler) send(t string, payload any) error {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return err
	}
	return s.out.Send(msg)
}
