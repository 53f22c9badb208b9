// Package protocol defines the JSON messages exchanged between the signaling
// server and its clients over the websocket.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope for every client-to-server and server-to-client
// websocket frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// Client to server.
	TypeCreateRoom = "create-room"
	TypeJoinRoom   = "join-room"

	// Server to client.
	TypeRoomCreated       = "room-created"
	TypeJoinResult        = "join-result"
	TypePeerJoined        = "peer-joined"
	TypeTransferCancelled = "transfer-cancelled"
	TypePeerDisconnected  = "peer-disconnected"
	TypeRoomExpired       = "room-expired"
	TypeError             = "error"

	// Relayed in both directions.
	TypeSignal           = "signal"
	TypeFileMetadata     = "file-metadata"
	TypeReceiverReady    = "receiver-ready"
	TypeTransferComplete = "transfer-complete"
	TypeCancelTransfer   = "cancel-transfer"
)

// User-facing error strings carried in Result.Error.
const (
	ErrInvalidCode   = "Invalid code"
	ErrRoomFull      = "Room is full"
	ErrUnknownType   = "Unknown message type"
	ErrAlreadyInRoom = "Already in a room"
)

// Result answers create-room and join-room requests.
type Result struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JoinRoomPayload carries the code a responder wants to join.
type JoinRoomPayload struct {
	Code string `json:"code"`
}

// PeerJoinedPayload tells the initiator who joined.
type PeerJoinedPayload struct {
	PeerID string `json:"peerId"`
}

// SignalPayload wraps an opaque connection-setup blob. The server never looks
// inside Signal; it only stamps From on the way through.
type SignalPayload struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from,omitempty"`
}

// FileMetadata describes the file on offer.
type FileMetadata struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage creates a Message with the given type and JSON-encoded payload.
// A nil payload produces a message without a payload field.
func NewMessage(t string, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = b
	return msg, nil
}

// Simple returns a payload-less message.
func Simple(t string) *Message {
	return &Message{Type: t}
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
