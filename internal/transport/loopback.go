package transport

import (
	"fmt"
	"strconv"
	"sync"
)

// Loopback is an in-process Factory. Channels it creates find each other
// through the offer/answer exchange, so signals still have to travel through
// whatever carries them between the two sessions.
type Loopback struct {
	mu     sync.Mutex
	offers map[string]*Pipe
	next   int
}

// NewLoopback creates an empty loopback network.
func NewLoopback() *Loopback {
	return &Loopback{offers: make(map[string]*Pipe)}
}

// NewChannel implements Factory.
func (l *Loopback) NewChannel(isInitiator bool, h Handlers) (Channel, error) {
	p := &Pipe{
		net:    l,
		h:      h,
		events: make(chan func(), 1024),
		quit:   make(chan struct{}),
	}
	go p.run()

	if isInitiator {
		l.mu.Lock()
		l.next++
		p.id = strconv.Itoa(l.next)
		l.offers[p.id] = p
		l.mu.Unlock()

		p.enqueue(func() { p.h.EmitSignal(Signal{Kind: KindOffer, Payload: []byte(p.id)}) })
	}
	return p, nil
}

func (l *Loopback) claim(id string) *Pipe {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.offers[id]
	delete(l.offers, id)
	return p
}

// Pipe is one end of a loopback channel.
type Pipe struct {
	net *Loopback
	id  string
	h   Handlers

	mu     sync.Mutex
	peer   *Pipe
	open   bool
	closed bool

	events chan func()
	quit   chan struct{}
}

func (p *Pipe) run() {
	for {
		select {
		case fn := <-p.events:
			fn()
		case <-p.quit:
			return
		}
	}
}

func (p *Pipe) enqueue(fn func()) {
	select {
	case p.events <- fn:
	case <-p.quit:
	}
}

// AcceptRemoteSignal implements Channel.
func (p *Pipe) AcceptRemoteSignal(s Signal) error {
	switch s.Kind {
	case KindOffer:
		initiator := p.net.claim(string(s.Payload))
		if initiator == nil {
			return fmt.Errorf("%w: unknown offer %q", ErrBadSignal, s.Payload)
		}
		p.mu.Lock()
		p.peer = initiator
		p.id = initiator.id
		p.mu.Unlock()

		initiator.mu.Lock()
		initiator.peer = p
		initiator.mu.Unlock()

		p.enqueue(func() { p.h.EmitSignal(Signal{Kind: KindAnswer, Payload: []byte(p.id)}) })
		return nil

	case KindAnswer:
		p.mu.Lock()
		peer := p.peer
		p.mu.Unlock()
		if peer == nil || string(s.Payload) != p.id {
			return fmt.Errorf("%w: answer without offer", ErrBadSignal)
		}
		for _, end := range []*Pipe{p, peer} {
			end.mu.Lock()
			ok := !end.closed
			end.open = ok
			end.mu.Unlock()
			if ok {
				end.enqueue(end.h.EmitConnected)
			}
		}
		return nil

	case KindCandidate:
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrBadSignal, s.Kind)
	}
}

// Send implements Channel.
func (p *Pipe) Send(b []byte) error {
	p.mu.Lock()
	peer, open := p.peer, p.open
	p.mu.Unlock()
	if !open || peer == nil {
		return ErrNotOpen
	}

	data := append([]byte(nil), b...)
	peer.enqueue(func() { peer.h.EmitData(data) })
	return nil
}

// IsOpen implements Channel.
func (p *Pipe) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Destroy implements Channel. The peer end observes ErrClosed.
func (p *Pipe) Destroy() error {
	peer := p.shutdown()
	if peer != nil {
		peer.Fail(ErrClosed)
	}
	return nil
}

// Fail closes this end and reports err through OnClosed, as a broken link would.
func (p *Pipe) Fail(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.open = false
	peer := p.peer
	p.mu.Unlock()

	p.enqueue(func() {
		p.h.EmitClosed(err)
		close(p.quit)
	})
	if peer != nil {
		peer.Fail(err)
	}
}

// Destroyed reports whether Destroy or Fail has run.
func (p *Pipe) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pipe) shutdown() *Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.open = false
	if p.id != "" && p.peer == nil {
		p.net.claim(p.id)
	}
	close(p.quit)
	return p.peer
}
