// Package webrtc implements transport.Channel over a single ordered WebRTC
// data channel.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

const (
	HighWaterMark = 2 * 1024 * 1024 // backpressure threshold
	LowWaterMark  = 512 * 1024      // resume threshold

	SendTimeout   = 60 * time.Second
	GatherTimeout = 10 * time.Second
	drainPoll     = 50 * time.Millisecond

	channelLabel = "file-transfer"
)

var (
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrSendTimeout      = errors.New("timed out waiting for buffered amount to drain")
)

// Peer is one end of a data channel link.
type Peer struct {
	pc        *pion.PeerConnection
	h         transport.Handlers
	initiator bool
	trickle   bool
	gather    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	dc        *pion.DataChannel
	open      bool
	closed    bool
	remoteSet bool
	early     []pion.ICECandidateInit

	closeOnce sync.Once
	low       chan struct{}
}

func newPeer(pc *pion.PeerConnection, initiator bool, h transport.Handlers, cfg Config) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		pc:        pc,
		h:         h,
		initiator: initiator,
		trickle:   cfg.Trickle,
		gather:    cfg.GatherTimeout,
		ctx:       ctx,
		cancel:    cancel,
		low:       make(chan struct{}, 1),
	}

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.logger().Debug().Str("state", state.String()).Msg("connection state changed")
		if state == pion.PeerConnectionStateFailed {
			p.fail(ErrConnectionFailed)
		}
	})

	if p.trickle {
		pc.OnICECandidate(func(c *pion.ICECandidate) {
			if c == nil || p.isClosed() {
				return
			}
			payload, err := encodeCandidate(c.ToJSON())
			if err != nil {
				p.logger().Warn().Err(err).Msg("encode candidate")
				return
			}
			p.h.EmitSignal(transport.Signal{Kind: transport.KindCandidate, Payload: payload})
		})
	}

	if !initiator {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != channelLabel {
				p.logger().Warn().Str("label", dc.Label()).Msg("ignoring unexpected data channel")
				return
			}
			p.attach(dc)
		})
	}
	return p
}

// start creates the data channel and the offer for the initiator.
func (p *Peer) start() error {
	ordered := true
	dc, err := p.pc.CreateDataChannel(channelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	p.attach(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	go p.publishLocal(offer, transport.KindOffer)
	return nil
}

func (p *Peer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case p.low <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.open = true
		p.mu.Unlock()
		p.logger().Info().Msg("data channel open")
		p.h.EmitConnected()
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if msg.IsString {
			return
		}
		p.h.EmitData(msg.Data)
	})

	dc.OnClose(func() {
		p.fail(transport.ErrClosed)
	})
}

// publishLocal applies desc and emits it. Without trickle it first waits
// for gathering so the peer receives every candidate inlined.
func (p *Peer) publishLocal(desc pion.SessionDescription, kind string) {
	gathered := pion.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		p.fail(fmt.Errorf("set local description: %w", err))
		return
	}
	if p.trickle {
		p.emitDescription(kind)
		return
	}

	timer := time.NewTimer(p.gather)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		p.logger().Warn().Msg("candidate gathering incomplete, sending what we have")
	case <-p.ctx.Done():
		return
	}
	p.emitDescription(kind)
}

func (p *Peer) emitDescription(kind string) {
	payload, err := encodeDescription(p.pc.LocalDescription())
	if err != nil {
		p.fail(err)
		return
	}
	p.h.EmitSignal(transport.Signal{Kind: kind, Payload: payload})
}

// AcceptRemoteSignal implements transport.Channel.
func (p *Peer) AcceptRemoteSignal(s transport.Signal) error {
	if p.isClosed() {
		return transport.ErrClosed
	}

	switch s.Kind {
	case transport.KindOffer:
		if p.initiator {
			return fmt.Errorf("%w: offer sent to initiator", transport.ErrBadSignal)
		}
		desc, err := decodeDescription(s.Payload, pion.SDPTypeOffer)
		if err != nil {
			return err
		}
		if err := p.setRemote(desc); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		go p.publishLocal(answer, transport.KindAnswer)
		return nil

	case transport.KindAnswer:
		if !p.initiator {
			return fmt.Errorf("%w: answer sent to responder", transport.ErrBadSignal)
		}
		desc, err := decodeDescription(s.Payload, pion.SDPTypeAnswer)
		if err != nil {
			return err
		}
		return p.setRemote(desc)

	case transport.KindCandidate:
		ice, err := decodeCandidate(s.Payload)
		if err != nil {
			return err
		}
		p.mu.Lock()
		if !p.remoteSet {
			p.early = append(p.early, ice)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		if err := p.pc.AddICECandidate(ice); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", transport.ErrBadSignal, s.Kind)
	}
}

func (p *Peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	early := p.early
	p.early = nil
	p.mu.Unlock()

	for _, ice := range early {
		if err := p.pc.AddICECandidate(ice); err != nil {
			p.logger().Warn().Err(err).Msg("dropping early candidate")
		}
	}
	return nil
}

// Send implements transport.Channel.
func (p *Peer) Send(b []byte) error {
	p.mu.Lock()
	dc, open := p.dc, p.open
	p.mu.Unlock()
	if !open || dc == nil {
		return transport.ErrNotOpen
	}
	return dc.Send(b)
}

// WaitForWindow blocks while more than HighWaterMark bytes are queued.
func (p *Peer) WaitForWindow(ctx context.Context) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil {
		return transport.ErrNotOpen
	}

	timer := time.NewTimer(SendTimeout)
	defer timer.Stop()
	for dc.BufferedAmount() >= HighWaterMark {
		select {
		case <-p.low:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return transport.ErrClosed
		case <-timer.C:
			return ErrSendTimeout
		}
	}
	return nil
}

// WaitForDrain blocks until everything queued on the data channel has been
// handed off, giving up after SendTimeout.
func (p *Peer) WaitForDrain(ctx context.Context) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil {
		return transport.ErrNotOpen
	}

	timer := time.NewTimer(SendTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for dc.BufferedAmount() > 0 {
		if !p.IsOpen() {
			return transport.ErrClosed
		}
		select {
		case <-ticker.C:
		case <-p.low:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return transport.ErrClosed
		case <-timer.C:
			return ErrSendTimeout
		}
	}
	return nil
}

// IsOpen implements transport.Channel.
func (p *Peer) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Destroy implements transport.Channel. OnClosed is not called for a
// destroyed peer.
func (p *Peer) Destroy() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.open = false
		dc := p.dc
		p.mu.Unlock()
		p.cancel()

		if dc != nil {
			if cerr := dc.Close(); cerr != nil {
				p.logger().Debug().Err(cerr).Msg("close data channel")
			}
		}
		err = p.pc.Close()
	})
	return err
}

// fail reports err once and tears the connection down.
func (p *Peer) fail(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.open = false
	p.mu.Unlock()

	p.logger().Warn().Err(err).Msg("peer channel closed")
	p.h.EmitClosed(err)

	go func() {
		p.closeOnce.Do(func() {
			p.cancel()
			_ = p.pc.Close()
		})
	}()
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) logger() *zerolog.Logger {
	role := "responder"
	if p.initiator {
		role = "initiator"
	}
	l := log.With().Str("module", "webrtc").Str("role", role).Logger()
	return &l
}
