package signaling

import (
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

// NewSession creates a session whose signaling runs over a websocket client
// to serverURL. The client is returned so callers can connect early.
func NewSession(serverURL string, factory transport.Factory, opts ...session.Option) (*session.Session, *Client) {
	h := &Handler{}
	client := NewClient(serverURL, h.Handle, h.Lost)
	s := session.New(NewSignaler(client), factory, opts...)
	h.sink = s
	return s, client
}
