package webrtc

import (
	"fmt"

	pion "github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

// description is the wire form of an SDP offer or answer.
type description struct {
	Type string `msgpack:"type"`
	SDP  string `msgpack:"sdp"`
}

// candidate is the wire form of a trickled ICE candidate.
type candidate struct {
	Candidate        string  `msgpack:"candidate"`
	SDPMid           *string `msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `msgpack:"usernameFragment,omitempty"`
}

func encodeDescription(desc *pion.SessionDescription) ([]byte, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: no local description", transport.ErrBadSignal)
	}
	b, err := msgpack.Marshal(description{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		return nil, fmt.Errorf("encode description: %w", err)
	}
	return b, nil
}

func decodeDescription(b []byte, want pion.SDPType) (pion.SessionDescription, error) {
	var d description
	if err := msgpack.Unmarshal(b, &d); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("%w: %v", transport.ErrBadSignal, err)
	}
	if pion.NewSDPType(d.Type) != want || d.SDP == "" {
		return pion.SessionDescription{}, fmt.Errorf("%w: expected %s, got %q", transport.ErrBadSignal, want, d.Type)
	}
	return pion.SessionDescription{Type: want, SDP: d.SDP}, nil
}

func encodeCandidate(c pion.ICECandidateInit) ([]byte, error) {
	return msgpack.Marshal(candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func decodeCandidate(b []byte) (pion.ICECandidateInit, error) {
	var c candidate
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return pion.ICECandidateInit{}, fmt.Errorf("%w: %v", transport.ErrBadSignal, err)
	}
	return pion.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}, nil
}
