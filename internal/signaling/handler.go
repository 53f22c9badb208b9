package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/protocol"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

// EventSink accepts session events.
type EventSink interface {
	Post(session.Event)
}

// Handler routes incoming server messages to a session as events.
type Handler struct {
	sink EventSink
}

// NewHandler creates a Handler posting to sink.
func NewHandler(sink EventSink) *Handler {
	return &Handler{sink: sink}
}

// Handle translates one server message.
func (h *Handler) Handle(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeRoomCreated:
		var r protocol.Result
		if err := msg.Decode(&r); err != nil {
			h.sink.Post(session.RoomCreated{Err: err})
			return
		}
		h.sink.Post(session.RoomCreated{Code: r.Code, Err: resultError(r)})

	case protocol.TypeJoinResult:
		var r protocol.Result
		if err := msg.Decode(&r); err != nil {
			h.sink.Post(session.JoinResult{Err: err})
			return
		}
		h.sink.Post(session.JoinResult{Code: r.Code, Err: resultError(r)})

	case protocol.TypePeerJoined:
		var p protocol.PeerJoinedPayload
		if len(msg.Payload) > 0 {
			if err := msg.Decode(&p); err != nil {
				log.Warn().Err(err).Str("module", "signaling").Msg("malformed peer-joined")
			}
		}
		h.sink.Post(session.PeerJoined{PeerID: p.PeerID})

	case protocol.TypeSignal:
		var p protocol.SignalPayload
		if err := msg.Decode(&p); err != nil {
			log.Warn().Err(err).Str("module", "signaling").Msg("dropping malformed signal")
			return
		}
		var sig transport.Signal
		if err := json.Unmarshal(p.Signal, &sig); err != nil {
			log.Warn().Err(err).Str("module", "signaling").Str("from", p.From).Msg("dropping malformed signal")
			return
		}
		h.sink.Post(session.RemoteSignal{Signal: sig})

	case protocol.TypeFileMetadata:
		var m protocol.FileMetadata
		if err := msg.Decode(&m); err != nil {
			log.Warn().Err(err).Str("module", "signaling").Msg("dropping malformed metadata")
			return
		}
		h.sink.Post(session.MetadataReceived{File: session.Descriptor{Name: m.Name, Size: m.Size, Type: m.Type}})

	case protocol.TypeReceiverReady:
		h.sink.Post(session.ReceiverReady{})
	case protocol.TypeTransferComplete:
		h.sink.Post(session.RemoteComplete{})
	case protocol.TypeTransferCancelled:
		h.sink.Post(session.RemoteCancelled{})
	case protocol.TypePeerDisconnected:
		h.sink.Post(session.PeerDisconnected{})
	case protocol.TypeRoomExpired:
		h.sink.Post(session.RoomExpired{})

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := msg.Decode(&p); err != nil {
			p.Error = "Unknown error from server"
		}
		h.sink.Post(session.ServerError{Message: p.Error})

	default:
		log.Debug().Str("module", "signaling").Str("type", msg.Type).Msg("ignoring unknown message")
	}
}

// Lost reports the end of the signaling connection.
func (h *Handler) Lost(err error) {
	h.sink.Post(session.SignalingLost{Err: err})
}

func resultError(r protocol.Result) error {
	if r.Success {
		return nil
	}
	return ServerError(r.Error)
}

// ServerError maps an error string sent by the server to a session error.
func ServerError(msg string) error {
	switch msg {
	case protocol.ErrInvalidCode:
		return session.ErrRoomNotFound
	case protocol.ErrRoomFull:
		return session.ErrRoomFull
	case protocol.ErrAlreadyInRoom:
		return session.ErrAlreadyInRoom
	case "":
		return session.ErrServer
	default:
		return fmt.Errorf("%w: %s", session.ErrServer, msg)
	}
}
