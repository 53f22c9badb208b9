// Package session is the client-side transfer state machine. One Session
// covers one transfer attempt for either role. All state changes happen on
// the goroutine running Run; everything else posts events to it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/stream"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

const (
	DefaultPeerTimeout    = 5 * time.Minute
	DefaultConnectTimeout = 30 * time.Second

	eventBuffer = 256
)

// Signaler sends requests to the signaling server on behalf of a session.
// Replies come back as events through Post.
type Signaler interface {
	CreateRoom() error
	JoinRoom(code string) error
	SendSignal(transport.Signal) error
	SendFileMetadata(Descriptor) error
	SendReceiverReady() error
	SendTransferComplete() error
	SendCancel() error

	// Leave releases the room binding by ending the signaling connection.
	Leave() error
}

// Session drives one transfer.
type Session struct {
	signaler Signaler
	factory  transport.Factory
	clock    Clock

	peerTimeout    time.Duration
	connectTimeout time.Duration
	openOutput     func(Descriptor) (Output, error)
	onUpdate       func(Snapshot)

	events chan Event
	done   chan struct{}

	// Owned by the dispatch loop.
	state    State
	role     Role
	code     string
	file     Descriptor
	hasFile  bool
	src      Source
	out      Output
	savedAs  string
	err      error
	joining  bool
	bound    bool
	progress Progress

	ch        transport.Channel
	link      uint64
	pending   []transport.Signal
	peerReady bool
	asm       *stream.Assembler
	stopSend  context.CancelFunc

	completeSent    bool
	remoteCompletes int
	peerConfirmed   bool

	timer    Timer
	timerGen uint64

	mu   sync.RWMutex
	snap Snapshot
}

// Option customizes a Session.
type Option func(*Session)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithPeerTimeout sets how long an initiator waits for someone to join.
func WithPeerTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.peerTimeout = d
		}
	}
}

// WithConnectTimeout sets how long the direct channel may take to open.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithOutput sets where an accepted file is written.
func WithOutput(open func(Descriptor) (Output, error)) Option {
	return func(s *Session) { s.openOutput = open }
}

// WithOnUpdate registers a callback run on the dispatch goroutine after
// every event. It must not block.
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(s *Session) { s.onUpdate = fn }
}

// New creates an idle session. Call Run before posting events.
func New(signaler Signaler, factory transport.Factory, opts ...Option) *Session {
	s := &Session{
		signaler:       signaler,
		factory:        factory,
		clock:          systemClock{},
		peerTimeout:    DefaultPeerTimeout,
		connectTimeout: DefaultConnectTimeout,
		events:         make(chan Event, eventBuffer),
		done:           make(chan struct{}),
	}
	s.openOutput = func(Descriptor) (Output, error) { return &MemoryOutput{}, nil }
	for _, opt := range opts {
		opt(s)
	}
	s.snap = Snapshot{State: Idle}
	return s
}

// Run is the dispatch loop. It returns when ctx is done, after cancelling
// any transfer still in flight.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)

		case <-ctx.Done():
			if !s.state.Terminal() && (s.state != Idle || s.joining) {
				s.onCancel()
			}
			s.release()
			s.publish()
			return ctx.Err()
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Post queues an event for the dispatch loop.
func (s *Session) Post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Create opens a room and offers src as the initiator.
func (s *Session) Create(src Source) { s.Post(createRequest{src: src}) }

// Join enters the room with the given code as the responder.
func (s *Session) Join(code string) { s.Post(joinRequest{code: code}) }

// Accept takes the offered file.
func (s *Session) Accept() { s.Post(acceptRequest{}) }

// Decline refuses the offered file.
func (s *Session) Decline() { s.Post(declineRequest{}) }

// Cancel aborts the transfer.
func (s *Session) Cancel() { s.Post(cancelRequest{}) }

// Reset releases everything and returns to Idle.
func (s *Session) Reset() { s.Post(resetRequest{}) }

// Snapshot returns the state as of the last processed event.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// dispatch is the single entry point for every event.
func (s *Session) dispatch(ev Event) {
	before := s.state

	switch e := ev.(type) {
	case createRequest:
		s.onCreate(e)
	case joinRequest:
		s.onJoin(e)
	case acceptRequest:
		s.onAccept()
	case declineRequest:
		s.onDecline()
	case cancelRequest:
		s.onCancel()
	case resetRequest:
		s.onReset()

	case RoomCreated:
		s.onRoomCreated(e)
	case JoinResult:
		s.onJoinResult(e)
	case PeerJoined:
		s.onPeerJoined(e)
	case RemoteSignal:
		s.onRemoteSignal(e)
	case MetadataReceived:
		s.onMetadata(e)
	case ReceiverReady:
		s.onReceiverReady()
	case RemoteComplete:
		s.onRemoteComplete()
	case RemoteCancelled:
		s.onPeerLoss(ErrTransferCancelled)
	case PeerDisconnected:
		s.onPeerLoss(ErrPeerDisconnected)
	case RoomExpired:
		s.onPeerLoss(WrapError("room", ErrTimeout, "room expired"))
	case ServerError:
		s.logger().Warn().Str("error", e.Message).Msg("signaling server error")
	case SignalingLost:
		s.onSignalingLost(e)

	case timerFired:
		s.onTimer(e)
	case channelSignal:
		s.onChannelSignal(e)
	case channelConnected:
		s.onChannelConnected(e)
	case channelData:
		s.onChannelData(e)
	case channelClosed:
		s.onChannelClosed(e)
	case sendProgress:
		s.onSendProgress(e)
	case sendFinished:
		s.onSendFinished(e)
	}

	if s.state != before {
		s.logger().Debug().Str("from", before.String()).Msg("state changed")
	}
	s.publish()
}

func (s *Session) publish() {
	now := s.clock.Now()
	snap := Snapshot{
		State:     s.state,
		Role:      s.role,
		Code:      s.code,
		File:      s.file,
		HasFile:   s.hasFile,
		Bytes:     s.progress.Bytes,
		Fraction:  s.progress.Fraction(),
		Rate:      s.progress.Rate(now),
		StartedAt: s.progress.StartedAt,
		SavedAs:   s.savedAs,
		Err:       s.err,

		PeerConfirmed: s.peerConfirmed,
	}
	snap.Remaining, snap.RemainingKnown = s.progress.Remaining(now)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
}

func (s *Session) arm(kind timerKind, d time.Duration) {
	s.disarm()
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(d, func() {
		s.Post(timerFired{kind: kind, gen: gen})
	})
}

func (s *Session) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// openChannel creates the transport for the current role. Callbacks are
// tagged with a fresh link id.
func (s *Session) openChannel(initiator bool) error {
	s.link++
	link := s.link

	ch, err := s.factory.NewChannel(initiator, transport.Handlers{
		OnSignal:    func(sig transport.Signal) { s.Post(channelSignal{link: link, sig: sig}) },
		OnConnected: func() { s.Post(channelConnected{link: link}) },
		OnData:      func(b []byte) { s.Post(channelData{link: link, data: b}) },
		OnClosed:    func(err error) { s.Post(channelClosed{link: link, err: err}) },
	})
	if err != nil {
		return err
	}
	s.ch = ch
	return nil
}

func (s *Session) startSending() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSend = cancel

	link, ch, src, size := s.link, s.ch, s.src.Reader, s.file.Size
	go func() {
		err := stream.NewSender(ch).SendChunks(ctx, src, size, func(n int64) {
			s.Post(sendProgress{link: link, bytes: n})
		})
		s.Post(sendFinished{link: link, err: err})
	}()
}

// release tears down the transport and the signaling binding, each step
// best-effort.
func (s *Session) release() {
	s.disarm()

	if s.stopSend != nil {
		s.stopSend()
		s.stopSend = nil
	}
	if s.ch != nil {
		if err := s.ch.Destroy(); err != nil {
			s.logger().Warn().Err(err).Msg("destroy channel")
		}
		s.ch = nil
		s.link++
	}
	if s.out != nil {
		if err := s.out.Discard(); err != nil {
			s.logger().Warn().Err(err).Msg("discard partial file")
		}
		s.out = nil
	}
	s.pending = nil
	s.asm = nil

	if s.bound {
		s.bound = false
		if err := s.signaler.Leave(); err != nil {
			s.logger().Warn().Err(err).Msg("leave signaling")
		}
	}
}

// fail is the single entry point for every failure. notify asks the relay to
// tear the room down for the peer as well.
func (s *Session) fail(reason error, notify bool) {
	if s.state.Terminal() {
		return
	}
	s.logger().Error().Err(reason).Msg("transfer failed")

	if notify && s.bound {
		if err := s.signaler.SendCancel(); err != nil {
			s.logger().Warn().Err(err).Msg("notify cancel")
		}
	}
	s.release()
	s.joining = false
	s.state = Failed
	s.err = reason
}

func (s *Session) logger() *zerolog.Logger {
	l := log.With().Str("module", "session").Str("role", s.role.String()).Str("state", s.state.String())
	if s.code != "" {
		l = l.Str("code", s.code)
	}
	logger := l.Logger()
	return &logger
}
