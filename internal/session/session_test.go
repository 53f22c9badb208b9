package session

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/stream"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

type fixture struct {
	s       *Session
	sig     *recSignaler
	factory *fakeFactory
	clock   *fakeClock
	out     *MemoryOutput
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sig:     &recSignaler{},
		factory: &fakeFactory{},
		clock:   newFakeClock(),
		out:     &MemoryOutput{},
	}
	f.s = New(f.sig, f.factory,
		WithClock(f.clock),
		WithOutput(func(Descriptor) (Output, error) { return f.out, nil }),
	)
	start(t, f.s)
	return f
}

func textFile(data []byte) Source {
	return Source{
		File:   Descriptor{Name: "a.txt", Size: int64(len(data)), Type: "text/plain"},
		Reader: bytes.NewReader(data),
	}
}

// initiatorAt drives a fresh initiator to the requested state.
func initiatorAt(t *testing.T, want State, data []byte) *fixture {
	t.Helper()
	f := newFixture(t)

	f.s.Create(textFile(data))
	f.s.Post(RoomCreated{Code: "0451"})
	waitFor(t, f.s, func(s Snapshot) bool { return s.Code == "0451" })
	if want == Waiting {
		return f
	}

	f.s.Post(PeerJoined{PeerID: "responder"})
	waitState(t, f.s, Connecting)
	if want == Connecting {
		return f
	}

	f.factory.last().connect()
	waitState(t, f.s, Connected)
	if want == Connected {
		return f
	}

	f.s.Post(ReceiverReady{})
	waitState(t, f.s, want)
	return f
}

// responderAt drives a fresh responder to the requested state.
func responderAt(t *testing.T, want State, size int64) *fixture {
	t.Helper()
	f := newFixture(t)

	f.s.Join("0451")
	f.s.Post(JoinResult{Code: "0451"})
	waitState(t, f.s, Waiting)
	f.s.Post(MetadataReceived{File: Descriptor{Name: "a.txt", Size: size, Type: "text/plain"}})
	waitFor(t, f.s, func(s Snapshot) bool { return s.HasFile })
	if want == Waiting {
		return f
	}

	f.s.Accept()
	waitState(t, f.s, Connecting)
	if want == Connecting {
		return f
	}

	f.factory.last().connect()
	waitState(t, f.s, want)
	return f
}

func TestInitiatorHappyPath(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 3*stream.ChunkSize+5)
	f := initiatorAt(t, Connected, data)

	assert.Equal(t, []string{"create", "metadata"}, f.sig.snapshot())
	assert.Equal(t, Descriptor{Name: "a.txt", Size: int64(len(data)), Type: "text/plain"}, f.sig.meta[0])
	assert.True(t, f.factory.last().initiator)

	f.s.Post(ReceiverReady{})
	snap := waitState(t, f.s, Completed)
	assert.Equal(t, 1.0, snap.Fraction)
	assert.Equal(t, int64(len(data)), snap.Bytes)
	assert.Equal(t, len(data), f.factory.last().sentBytes())
	assert.Equal(t, 1, f.sig.count("complete"))

	// Completed keeps the channel until reset.
	assert.False(t, f.factory.last().isDestroyed())
}

func TestInitiatorCompletesAfterDrain(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 2*stream.ChunkSize)
	f := initiatorAt(t, Connected, data)
	release := f.factory.last().holdDrain()

	f.s.Post(ReceiverReady{})
	waitFor(t, f.s, func(s Snapshot) bool { return s.Bytes == int64(len(data)) })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Transferring, f.s.Snapshot().State)
	assert.Zero(t, f.sig.count("complete"))

	close(release)
	waitState(t, f.s, Completed)
	assert.Equal(t, 1, f.sig.count("complete"))
}

func TestPeerConfirmation(t *testing.T) {
	t.Run("after own notification", func(t *testing.T) {
		f := initiatorAt(t, Completed, []byte("hello"))
		assert.False(t, f.s.Snapshot().PeerConfirmed)

		// The first broadcast is the echo of our own.
		f.s.Post(RemoteComplete{})
		time.Sleep(20 * time.Millisecond)
		assert.False(t, f.s.Snapshot().PeerConfirmed)

		f.s.Post(RemoteComplete{})
		waitFor(t, f.s, func(s Snapshot) bool { return s.PeerConfirmed })
	})

	t.Run("before drain returns", func(t *testing.T) {
		f := initiatorAt(t, Connected, []byte("hello"))
		f.factory.last().holdDrain()

		f.s.Post(ReceiverReady{})
		waitFor(t, f.s, func(s Snapshot) bool { return s.Bytes == 5 })
		f.s.Post(RemoteComplete{})

		snap := waitState(t, f.s, Completed)
		assert.True(t, snap.PeerConfirmed)
		assert.Equal(t, 1, f.sig.count("complete"))
	})

	t.Run("ignored by responder", func(t *testing.T) {
		f := responderAt(t, Transferring, 2)
		f.s.Post(RemoteComplete{})
		f.s.Post(RemoteComplete{})
		time.Sleep(20 * time.Millisecond)
		snap := f.s.Snapshot()
		assert.Equal(t, Transferring, snap.State)
		assert.False(t, snap.PeerConfirmed)
	})

	t.Run("cleared by reset", func(t *testing.T) {
		f := initiatorAt(t, Completed, []byte("hello"))
		f.s.Post(RemoteComplete{})
		f.s.Post(RemoteComplete{})
		waitFor(t, f.s, func(s Snapshot) bool { return s.PeerConfirmed })

		f.s.Reset()
		snap := waitState(t, f.s, Idle)
		assert.False(t, snap.PeerConfirmed)
	})
}

func TestReceiverReadyBeforeConnect(t *testing.T) {
	f := initiatorAt(t, Connecting, []byte("hello"))

	f.s.Post(ReceiverReady{})
	f.factory.last().connect()
	waitState(t, f.s, Completed)
	assert.Equal(t, 5, f.factory.last().sentBytes())
}

func TestResponderHappyPath(t *testing.T) {
	f := responderAt(t, Transferring, 10)
	ch := f.factory.last()
	assert.False(t, ch.initiator)
	assert.Equal(t, []string{"join", "ready"}, f.sig.snapshot())

	ch.h.EmitData([]byte("hello"))
	snap := waitFor(t, f.s, func(s Snapshot) bool { return s.Bytes == 5 })
	assert.Equal(t, 0.5, snap.Fraction)
	assert.Equal(t, Transferring, snap.State)

	ch.h.EmitData([]byte("world"))
	snap = waitState(t, f.s, Completed)
	assert.Equal(t, 1.0, snap.Fraction)
	assert.Equal(t, "helloworld", f.out.String())
	assert.True(t, f.out.Committed)
	assert.Equal(t, 1, f.sig.count("complete"))
}

func TestResponderHoldsMetadataUntilAccept(t *testing.T) {
	f := responderAt(t, Waiting, 1000)

	snap := f.s.Snapshot()
	assert.Equal(t, Waiting, snap.State)
	assert.Equal(t, Descriptor{Name: "a.txt", Size: 1000, Type: "text/plain"}, snap.File)
	assert.Nil(t, f.factory.last(), "no channel before accept")
}

func TestSignalsBufferedUntilAccept(t *testing.T) {
	f := responderAt(t, Waiting, 10)

	offer := transport.Signal{Kind: transport.KindOffer, Payload: []byte("o")}
	cand := transport.Signal{Kind: transport.KindCandidate, Payload: []byte("c")}
	f.s.Post(RemoteSignal{Signal: offer})
	f.s.Post(RemoteSignal{Signal: cand})

	f.s.Accept()
	waitState(t, f.s, Connecting)
	assert.Equal(t, []transport.Signal{offer, cand}, f.factory.last().accepted)
}

func TestLocalSignalsForwarded(t *testing.T) {
	f := initiatorAt(t, Connecting, []byte("x"))

	offer := transport.Signal{Kind: transport.KindOffer, Payload: []byte("sdp")}
	f.factory.last().h.EmitSignal(offer)
	require.Eventually(t, func() bool { return f.sig.count("signal") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, offer, f.sig.sigs[0])
}

func TestDataBeforeOpenNotification(t *testing.T) {
	f := responderAt(t, Connecting, 3)

	f.factory.last().h.EmitData([]byte("abc"))
	waitState(t, f.s, Completed)
	assert.Equal(t, "abc", f.out.String())
}

func TestZeroByteFile(t *testing.T) {
	t.Run("initiator", func(t *testing.T) {
		f := initiatorAt(t, Completed, nil)
		assert.Equal(t, 1.0, f.s.Snapshot().Fraction)
		assert.Equal(t, 0, f.factory.last().sentBytes())
	})
	t.Run("responder", func(t *testing.T) {
		f := responderAt(t, Completed, 0)
		assert.True(t, f.out.Committed)
		assert.Equal(t, 1, f.sig.count("complete"))
	})
}

func TestOverflowFailsAndDiscards(t *testing.T) {
	f := responderAt(t, Transferring, 4)
	ch := f.factory.last()

	ch.h.EmitData([]byte("abcde"))
	snap := waitState(t, f.s, Failed)
	assert.ErrorIs(t, snap.Err, stream.ErrOverflow)
	assert.True(t, f.out.Discarded)
	assert.False(t, f.out.Committed)
	assert.True(t, ch.isDestroyed())
	assert.Equal(t, 1, f.sig.count("cancel"))
	assert.Equal(t, 1, f.sig.count("leave"))
}

func TestPeerLossFromEveryState(t *testing.T) {
	type setup func(t *testing.T) *fixture
	cases := map[string]setup{
		"initiator waiting":      func(t *testing.T) *fixture { return initiatorAt(t, Waiting, []byte("x")) },
		"initiator connecting":   func(t *testing.T) *fixture { return initiatorAt(t, Connecting, []byte("x")) },
		"initiator connected":    func(t *testing.T) *fixture { return initiatorAt(t, Connected, []byte("x")) },
		"responder waiting":      func(t *testing.T) *fixture { return responderAt(t, Waiting, 10) },
		"responder connecting":   func(t *testing.T) *fixture { return responderAt(t, Connecting, 10) },
		"responder transferring": func(t *testing.T) *fixture { return responderAt(t, Transferring, 10) },
	}
	events := map[Event]error{
		PeerDisconnected{}: ErrPeerDisconnected,
		RemoteCancelled{}:  ErrTransferCancelled,
		RoomExpired{}:      ErrTimeout,
	}

	for name, setup := range cases {
		for ev, want := range events {
			t.Run(fmt.Sprintf("%s/%T", name, ev), func(t *testing.T) {
				f := setup(t)
				f.s.Post(ev)

				snap := waitState(t, f.s, Failed)
				assert.ErrorIs(t, snap.Err, want)
				if ch := f.factory.last(); ch != nil {
					assert.True(t, ch.isDestroyed(), "dangling channel")
				}
				// The server already tore the room down.
				assert.Zero(t, f.sig.count("cancel"))
				assert.Equal(t, 1, f.sig.count("leave"))
			})
		}
	}
}

func TestCompletedIgnoresLateEvents(t *testing.T) {
	f := responderAt(t, Transferring, 2)
	f.factory.last().h.EmitData([]byte("ok"))
	waitState(t, f.s, Completed)

	f.s.Post(PeerDisconnected{})
	f.s.Post(RemoteCancelled{})
	f.factory.last().h.EmitClosed(errors.New("gone"))
	f.s.Post(RemoteComplete{})
	f.s.Cancel()

	time.Sleep(20 * time.Millisecond)
	snap := f.s.Snapshot()
	assert.Equal(t, Completed, snap.State)
	assert.NoError(t, snap.Err)
	assert.Equal(t, 1, f.sig.count("complete"))
}

func TestTransportErrorFails(t *testing.T) {
	f := initiatorAt(t, Connected, []byte("x"))
	ch := f.factory.last()

	ch.h.EmitClosed(errors.New("ice failed"))
	snap := waitState(t, f.s, Failed)
	assert.ErrorIs(t, snap.Err, ErrConnectionLost)
	assert.Contains(t, snap.Err.Error(), "ice failed")
	assert.True(t, ch.isDestroyed())
	assert.Equal(t, 1, f.sig.count("cancel"))
}

func TestStaleChannelEventsIgnored(t *testing.T) {
	f := initiatorAt(t, Connecting, []byte("x"))
	stale := f.factory.last()

	f.s.Reset()
	waitState(t, f.s, Idle)
	f.s.Create(textFile([]byte("y")))
	f.s.Post(RoomCreated{Code: "0452"})
	waitFor(t, f.s, func(s Snapshot) bool { return s.Code == "0452" })

	stale.h.EmitClosed(errors.New("late"))
	stale.h.EmitConnected()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Waiting, f.s.Snapshot().State)
}

func TestPeerWaitTimeout(t *testing.T) {
	f := initiatorAt(t, Waiting, []byte("x"))

	f.clock.Advance(DefaultPeerTimeout - time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Waiting, f.s.Snapshot().State)

	f.clock.Advance(time.Second)
	snap := waitState(t, f.s, Failed)
	assert.ErrorIs(t, snap.Err, ErrTimeout)

	var te *TransferError
	require.ErrorAs(t, snap.Err, &te)
	assert.Equal(t, "wait for peer", te.Op)
	assert.Equal(t, 1, f.sig.count("cancel"))
	assert.Equal(t, 1, f.sig.count("leave"))
}

func TestPeerJoinDisarmsWaitTimer(t *testing.T) {
	f := initiatorAt(t, Connecting, []byte("x"))

	f.clock.Advance(DefaultPeerTimeout)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Connecting, f.s.Snapshot().State)
}

func TestConnectTimeout(t *testing.T) {
	f := responderAt(t, Connecting, 10)

	f.clock.Advance(DefaultConnectTimeout)
	snap := waitState(t, f.s, Failed)
	assert.ErrorIs(t, snap.Err, ErrTimeout)
	assert.True(t, f.factory.last().isDestroyed())
	assert.True(t, f.out.Discarded)
}

func TestDecline(t *testing.T) {
	f := responderAt(t, Waiting, 10)

	f.s.Decline()
	snap := waitState(t, f.s, Cancelled)
	assert.ErrorIs(t, snap.Err, ErrDeclined)
	assert.Equal(t, []string{"join", "cancel", "leave"}, f.sig.snapshot())
}

func TestLocalCancelOrder(t *testing.T) {
	f := initiatorAt(t, Connected, []byte("x"))

	f.s.Cancel()
	snap := waitState(t, f.s, Cancelled)
	assert.ErrorIs(t, snap.Err, ErrCancelled)
	assert.True(t, f.factory.last().isDestroyed())

	calls := f.sig.snapshot()
	assert.Equal(t, []string{"cancel", "leave"}, calls[len(calls)-2:])
}

func TestJoinValidation(t *testing.T) {
	f := newFixture(t)

	f.s.Join("12a4")
	snap := waitFor(t, f.s, func(s Snapshot) bool { return s.Err != nil })
	assert.ErrorIs(t, snap.Err, ErrInvalidCode)
	assert.Equal(t, Idle, snap.State)
	assert.Empty(t, f.sig.snapshot())
}

func TestJoinRejectedStaysIdle(t *testing.T) {
	f := newFixture(t)

	f.s.Join("9999")
	f.s.Post(JoinResult{Err: ErrRoomNotFound})
	snap := waitFor(t, f.s, func(s Snapshot) bool { return s.Err != nil })
	assert.Equal(t, Idle, snap.State)
	assert.ErrorIs(t, snap.Err, ErrRoomNotFound)
	assert.Equal(t, NoRole, snap.Role)

	// The session can try again.
	f.s.Join("0451")
	f.s.Post(JoinResult{Code: "0451"})
	waitState(t, f.s, Waiting)
}

func TestCreateRejected(t *testing.T) {
	f := newFixture(t)

	f.s.Create(textFile([]byte("x")))
	f.s.Post(RoomCreated{Err: errors.New("unable to generate unique code")})
	snap := waitState(t, f.s, Failed)
	assert.Contains(t, snap.Err.Error(), "unique code")
}

func TestSignalingLost(t *testing.T) {
	f := initiatorAt(t, Connecting, []byte("x"))

	f.s.Post(SignalingLost{Err: errors.New("eof")})
	snap := waitState(t, f.s, Failed)
	assert.ErrorIs(t, snap.Err, ErrSignalingLost)
	assert.Zero(t, f.sig.count("leave"))
}

func TestResetAfterCompletion(t *testing.T) {
	f := initiatorAt(t, Completed, []byte("x"))
	ch := f.factory.last()

	f.s.Reset()
	snap := waitState(t, f.s, Idle)
	assert.Equal(t, Snapshot{State: Idle}, snap)
	assert.True(t, ch.isDestroyed())
	assert.Equal(t, 1, f.sig.count("leave"))
}

func TestRunCancelTearsDown(t *testing.T) {
	sig := &recSignaler{}
	factory := &fakeFactory{}
	s := New(sig, factory)
	cancel := start(t, s)

	s.Create(textFile([]byte("x")))
	s.Post(RoomCreated{Code: "0451"})
	waitFor(t, s, func(snap Snapshot) bool { return snap.Code == "0451" })

	cancel()
	<-s.Done()
	assert.Equal(t, Cancelled, s.Snapshot().State)
	assert.Equal(t, []string{"create", "cancel", "leave"}, sig.snapshot())
}

func TestOnUpdateObservesTransitions(t *testing.T) {
	var seen []State
	updates := make(chan Snapshot, 64)
	s := New(&recSignaler{}, &fakeFactory{}, WithOnUpdate(func(snap Snapshot) { updates <- snap }))
	start(t, s)

	s.Create(textFile([]byte("x")))
	s.Cancel()
	for len(seen) < 2 {
		select {
		case snap := <-updates:
			seen = append(seen, snap.State)
		case <-time.After(time.Second):
			t.Fatal("no update")
		}
	}
	assert.Equal(t, []State{Waiting, Cancelled}, seen)
}
