package session

import (
	"bytes"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/stream"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

// fakeRelay forwards between two sessions the way the signaling server would
// for a single room.
type fakeRelay struct {
	mu        sync.Mutex
	code      string
	open      bool
	initiator *Session
	responder *Session
	completes int
}

type relaySide struct {
	relay *fakeRelay
	self  func() *Session
	other func() *Session
}

func newFakeRelay() (*fakeRelay, *relaySide, *relaySide) {
	r := &fakeRelay{}
	sender := &relaySide{relay: r}
	receiver := &relaySide{relay: r}
	sender.self = func() *Session { return r.initiator }
	sender.other = func() *Session { return r.responder }
	receiver.self = func() *Session { return r.responder }
	receiver.other = func() *Session { return r.initiator }
	return r, sender, receiver
}

func (s *relaySide) peer() *Session {
	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	if !s.relay.open {
		return nil
	}
	return s.other()
}

func (s *relaySide) CreateRoom() error {
	s.relay.mu.Lock()
	s.relay.code = "0451"
	s.relay.open = true
	self := s.self()
	s.relay.mu.Unlock()

	self.Post(RoomCreated{Code: "0451"})
	return nil
}

func (s *relaySide) JoinRoom(code string) error {
	s.relay.mu.Lock()
	ok := s.relay.open && code == s.relay.code
	self, other := s.self(), s.other()
	s.relay.mu.Unlock()

	if !ok {
		self.Post(JoinResult{Err: ErrRoomNotFound})
		return nil
	}
	// The joiner hears about its room before anything the initiator sends.
	self.Post(JoinResult{Code: code})
	other.Post(PeerJoined{PeerID: "responder"})
	return nil
}

func (s *relaySide) SendSignal(sig transport.Signal) error {
	if p := s.peer(); p != nil {
		p.Post(RemoteSignal{Signal: sig})
	}
	return nil
}

func (s *relaySide) SendFileMetadata(d Descriptor) error {
	if p := s.peer(); p != nil {
		p.Post(MetadataReceived{File: d})
	}
	return nil
}

func (s *relaySide) SendReceiverReady() error {
	if p := s.peer(); p != nil {
		p.Post(ReceiverReady{})
	}
	return nil
}

func (s *relaySide) SendTransferComplete() error {
	s.relay.mu.Lock()
	s.relay.completes++
	s.relay.mu.Unlock()
	if p := s.peer(); p != nil {
		p.Post(RemoteComplete{})
		s.self().Post(RemoteComplete{})
	}
	return nil
}

func (s *relaySide) SendCancel() error {
	p := s.peer()
	s.relay.mu.Lock()
	s.relay.open = false
	s.relay.mu.Unlock()
	if p != nil {
		p.Post(RemoteCancelled{})
	}
	return nil
}

func (s *relaySide) Leave() error {
	p := s.peer()
	s.relay.mu.Lock()
	s.relay.open = false
	s.relay.mu.Unlock()
	if p != nil {
		p.Post(PeerDisconnected{})
	}
	return nil
}

type pair struct {
	relay     *fakeRelay
	net       *transport.Loopback
	initiator *Session
	responder *Session
	out       *MemoryOutput
}

func newPair(t *testing.T) *pair {
	t.Helper()
	p := &pair{net: transport.NewLoopback(), out: &MemoryOutput{}}
	relay, initSide, respSide := newFakeRelay()
	p.relay = relay

	p.initiator = New(initSide, p.net)
	p.responder = New(respSide, p.net, WithOutput(func(Descriptor) (Output, error) { return p.out, nil }))
	relay.initiator = p.initiator
	relay.responder = p.responder

	start(t, p.initiator)
	start(t, p.responder)
	return p
}

func TestPairTransfersFile(t *testing.T) {
	sizes := map[string]int{
		"empty":      0,
		"small":      1000,
		"multichunk": 10*stream.ChunkSize + 7,
	}

	for name, size := range sizes {
		t.Run(name, func(t *testing.T) {
			p := newPair(t)
			data := make([]byte, size)
			_, err := rand.Read(data)
			require.NoError(t, err)

			p.initiator.Create(Source{
				File:   Descriptor{Name: "report.pdf", Size: int64(size), Type: "application/pdf"},
				Reader: bytes.NewReader(data),
			})
			code := waitFor(t, p.initiator, func(s Snapshot) bool { return s.Code != "" }).Code
			assert.Len(t, code, 4)

			p.responder.Join(code)
			offered := waitFor(t, p.responder, func(s Snapshot) bool { return s.HasFile })
			assert.Equal(t, "report.pdf", offered.File.Name)
			assert.Equal(t, int64(size), offered.File.Size)
			assert.Equal(t, Waiting, offered.State)

			p.responder.Accept()
			waitState(t, p.initiator, Completed)
			done := waitState(t, p.responder, Completed)
			waitFor(t, p.initiator, func(s Snapshot) bool { return s.PeerConfirmed })

			assert.Equal(t, 1.0, done.Fraction)
			assert.True(t, bytes.Equal(data, p.out.Bytes()), "received bytes differ")

			p.relay.mu.Lock()
			assert.Equal(t, 2, p.relay.completes)
			p.relay.mu.Unlock()
		})
	}
}

func TestPairUnknownCode(t *testing.T) {
	p := newPair(t)

	p.responder.Join("9999")
	snap := waitFor(t, p.responder, func(s Snapshot) bool { return s.Err != nil })
	assert.Equal(t, Idle, snap.State)
	assert.ErrorIs(t, snap.Err, ErrRoomNotFound)
}

func TestPairInitiatorCancelsBeforeAccept(t *testing.T) {
	p := newPair(t)

	p.initiator.Create(Source{
		File:   Descriptor{Name: "a.bin", Size: 3},
		Reader: bytes.NewReader([]byte("abc")),
	})
	code := waitFor(t, p.initiator, func(s Snapshot) bool { return s.Code != "" }).Code
	p.responder.Join(code)
	waitFor(t, p.responder, func(s Snapshot) bool { return s.HasFile })

	p.initiator.Cancel()
	waitState(t, p.initiator, Cancelled)
	snap := waitState(t, p.responder, Failed)
	assert.ErrorIs(t, snap.Err, ErrTransferCancelled)

	// The room is gone.
	p.responder.Reset()
	waitState(t, p.responder, Idle)
	p.responder.Join(code)
	snap = waitFor(t, p.responder, func(s Snapshot) bool { return s.Err != nil })
	assert.ErrorIs(t, snap.Err, ErrRoomNotFound)
}

func TestPairDecline(t *testing.T) {
	p := newPair(t)

	p.initiator.Create(Source{
		File:   Descriptor{Name: "a.bin", Size: 3},
		Reader: bytes.NewReader([]byte("abc")),
	})
	code := waitFor(t, p.initiator, func(s Snapshot) bool { return s.Code != "" }).Code
	p.responder.Join(code)
	waitFor(t, p.responder, func(s Snapshot) bool { return s.HasFile })

	p.responder.Decline()
	snap := waitState(t, p.responder, Cancelled)
	assert.ErrorIs(t, snap.Err, ErrDeclined)

	snap = waitState(t, p.initiator, Failed)
	assert.ErrorIs(t, snap.Err, ErrTransferCancelled)
	assert.False(t, p.out.Committed)
}

func TestPairResponderCancelsBeforeAccept(t *testing.T) {
	p := newPair(t)
	data := bytes.Repeat([]byte("z"), 4*stream.ChunkSize)

	p.initiator.Create(Source{
		File:   Descriptor{Name: "z.bin", Size: int64(len(data))},
		Reader: bytes.NewReader(data),
	})
	code := waitFor(t, p.initiator, func(s Snapshot) bool { return s.Code != "" }).Code
	p.responder.Join(code)
	waitFor(t, p.responder, func(s Snapshot) bool { return s.HasFile })

	p.responder.Cancel()
	waitState(t, p.responder, Cancelled)
	snap := waitState(t, p.initiator, Failed)
	assert.ErrorIs(t, snap.Err, ErrTransferCancelled)
}
