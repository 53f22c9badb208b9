package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/code"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/stream"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
)

const maxPendingSignals = 64

func (s *Session) onCreate(e createRequest) {
	if s.state != Idle || s.joining {
		return
	}
	if e.src.File.Size < 0 || (e.src.File.Size > 0 && e.src.Reader == nil) {
		s.err = NewError("create room", ErrInvalidMetadata)
		return
	}

	s.role = Initiator
	s.file = e.src.File
	s.hasFile = true
	s.src = e.src
	s.err = nil
	s.state = Waiting
	s.bound = true

	if err := s.signaler.CreateRoom(); err != nil {
		s.fail(WrapError("create room", ErrSignalingLost, err.Error()), false)
	}
}

func (s *Session) onRoomCreated(e RoomCreated) {
	if s.role != Initiator || s.state != Waiting || s.code != "" {
		return
	}
	if e.Err != nil {
		s.fail(NewError("create room", e.Err), false)
		return
	}

	s.code = e.Code
	s.arm(peerWaitTimer, s.peerTimeout)
	s.logger().Info().Msg("room created, waiting for peer")
}

func (s *Session) onPeerJoined(e PeerJoined) {
	if s.role != Initiator || s.state != Waiting || s.code == "" {
		return
	}
	s.disarm()
	s.logger().Info().Str("peer", e.PeerID).Msg("peer joined")

	if err := s.openChannel(true); err != nil {
		s.fail(NewError("create channel", err), true)
		return
	}
	if err := s.signaler.SendFileMetadata(s.file); err != nil {
		s.fail(WrapError("send metadata", ErrSignalingLost, err.Error()), true)
		return
	}
	s.state = Connecting
}

func (s *Session) onJoin(e joinRequest) {
	if s.state != Idle || s.joining {
		return
	}
	if !code.Valid(e.code) {
		s.err = ErrInvalidCode
		return
	}

	s.role = Responder
	s.code = e.code
	s.err = nil
	s.joining = true
	s.bound = true

	if err := s.signaler.JoinRoom(e.code); err != nil {
		s.rejectJoin(WrapError("join room", ErrSignalingLost, err.Error()))
	}
}

func (s *Session) onJoinResult(e JoinResult) {
	if s.role != Responder || !s.joining {
		return
	}
	s.joining = false

	if e.Err != nil {
		s.rejectJoin(NewError("join room", e.Err))
		return
	}
	s.state = Waiting
	s.logger().Info().Msg("joined room, waiting for file")
}

// rejectJoin leaves the session Idle with the reason recorded.
func (s *Session) rejectJoin(reason error) {
	s.logger().Warn().Err(reason).Msg("join rejected")
	s.joining = false
	s.release()
	s.role = NoRole
	s.code = ""
	s.err = reason
}

func (s *Session) onMetadata(e MetadataReceived) {
	if s.role != Responder || s.state != Waiting || s.hasFile {
		return
	}
	if e.File.Size < 0 || e.File.Name == "" {
		s.fail(WrapError("receive metadata", ErrInvalidMetadata, e.File.Name), true)
		return
	}
	s.file = e.File
	s.hasFile = true
}

func (s *Session) onAccept() {
	if s.role != Responder || s.state != Waiting || !s.hasFile {
		return
	}

	out, err := s.openOutput(s.file)
	if err != nil {
		s.fail(WrapError("open output", err, s.file.Name), true)
		return
	}
	s.out = out
	s.asm = stream.NewAssembler(s.file.Size, out)

	if err := s.openChannel(false); err != nil {
		s.fail(NewError("create channel", err), true)
		return
	}
	for _, sig := range s.pending {
		if err := s.ch.AcceptRemoteSignal(sig); err != nil {
			s.fail(WrapError("signal", ErrConnectionLost, err.Error()), true)
			return
		}
	}
	s.pending = nil

	if err := s.signaler.SendReceiverReady(); err != nil {
		s.fail(WrapError("send ready", ErrSignalingLost, err.Error()), true)
		return
	}
	s.state = Connecting
	s.arm(connectTimer, s.connectTimeout)
}

func (s *Session) onDecline() {
	if s.role != Responder || s.state != Waiting {
		return
	}
	if err := s.signaler.SendCancel(); err != nil {
		s.logger().Warn().Err(err).Msg("notify decline")
	}
	s.release()
	s.state = Cancelled
	s.err = ErrDeclined
}

// onCancel notifies the relay, destroys the transport and releases the
// binding, in that order.
func (s *Session) onCancel() {
	if s.state.Terminal() {
		return
	}
	if s.bound {
		if err := s.signaler.SendCancel(); err != nil {
			s.logger().Warn().Err(err).Msg("notify cancel")
		}
	}
	s.release()
	s.joining = false
	s.state = Cancelled
	s.err = ErrCancelled
}

func (s *Session) onReset() {
	if !s.state.Terminal() && (s.state != Idle || s.joining) {
		s.onCancel()
	}
	s.release()

	s.state = Idle
	s.role = NoRole
	s.code = ""
	s.file = Descriptor{}
	s.hasFile = false
	s.src = Source{}
	s.savedAs = ""
	s.err = nil
	s.joining = false
	s.progress = Progress{}
	s.peerReady = false
	s.completeSent = false
	s.remoteCompletes = 0
	s.peerConfirmed = false
}

func (s *Session) onRemoteSignal(e RemoteSignal) {
	if s.state == Idle || s.state.Terminal() {
		return
	}
	if s.ch == nil {
		// The offer can arrive while the responder is still deciding.
		if s.role == Responder && len(s.pending) < maxPendingSignals {
			s.pending = append(s.pending, e.Signal)
		}
		return
	}

	if err := s.ch.AcceptRemoteSignal(e.Signal); err != nil {
		if e.Signal.Kind == transport.KindCandidate {
			s.logger().Warn().Err(err).Msg("ignoring bad candidate")
			return
		}
		s.fail(WrapError("signal", ErrConnectionLost, err.Error()), true)
	}
}

func (s *Session) onReceiverReady() {
	if s.role != Initiator {
		return
	}
	switch s.state {
	case Connecting:
		s.peerReady = true
		s.arm(connectTimer, s.connectTimeout)
	case Connected:
		s.peerReady = true
		s.beginTransfer()
	}
}

func (s *Session) onChannelSignal(e channelSignal) {
	if e.link != s.link || s.ch == nil {
		return
	}
	if err := s.signaler.SendSignal(e.sig); err != nil {
		s.logger().Warn().Err(err).Str("kind", e.sig.Kind).Msg("send signal")
	}
}

func (s *Session) onChannelConnected(e channelConnected) {
	if e.link != s.link || s.state != Connecting {
		return
	}
	s.disarm()
	s.state = Connected
	s.logger().Info().Msg("direct channel open")

	if s.role == Responder || s.peerReady {
		s.beginTransfer()
	}
}

func (s *Session) beginTransfer() {
	s.disarm()
	s.state = Transferring
	s.progress = Progress{Size: s.file.Size, StartedAt: s.clock.Now()}

	if s.file.Size == 0 {
		s.complete()
		return
	}
	if s.role == Initiator {
		s.startSending()
	}
}

func (s *Session) onChannelData(e channelData) {
	if e.link != s.link || s.role != Responder {
		return
	}
	if s.state == Connecting {
		// Data can overtake the open notification.
		s.state = Connected
		s.beginTransfer()
	}
	if s.state != Transferring {
		return
	}

	done, err := s.asm.Add(e.data)
	if err != nil {
		s.fail(WrapError("receive", err, s.file.Name), true)
		return
	}
	s.progress.Bytes = s.asm.Received()
	if done {
		s.complete()
	}
}

func (s *Session) onSendProgress(e sendProgress) {
	if e.link != s.link || s.state != Transferring {
		return
	}
	if e.bytes > s.progress.Bytes {
		s.progress.Bytes = e.bytes
	}
}

// onSendFinished completes the initiator once the sender has drained the
// channel. Handing the last chunk over is not enough.
func (s *Session) onSendFinished(e sendFinished) {
	if e.link != s.link {
		return
	}
	s.stopSend = nil
	if s.state != Transferring || errors.Is(e.err, context.Canceled) {
		return
	}
	if e.err != nil {
		s.fail(WrapError("send", e.err, s.file.Name), true)
		return
	}
	s.complete()
}

// onRemoteComplete counts transfer-complete broadcasts. The relay echoes the
// initiator's own notification, so the responder's is the one not owed.
func (s *Session) onRemoteComplete() {
	if s.role != Initiator {
		s.logger().Debug().Msg("peer reported transfer complete")
		return
	}
	if s.state != Transferring && s.state != Completed {
		return
	}
	s.remoteCompletes++
	owed := 0
	if s.completeSent {
		owed = 1
	}
	if s.remoteCompletes <= owed || s.peerConfirmed {
		return
	}

	s.peerConfirmed = true
	s.logger().Info().Msg("receiver confirmed the file")
	if s.state == Transferring {
		// Every byte arrived even though the drain has not returned yet.
		s.complete()
	}
}

// complete runs once per transfer, when every byte has been sent or received.
func (s *Session) complete() {
	if s.out != nil {
		path, err := s.out.Commit()
		if err != nil {
			s.fail(WrapError("save", err, s.file.Name), true)
			return
		}
		s.savedAs = path
		s.out = nil
	}

	s.progress.Bytes = s.file.Size
	s.state = Completed
	s.logger().Info().Int64("bytes", s.file.Size).Msg("transfer complete")

	if !s.completeSent {
		s.completeSent = true
		if err := s.signaler.SendTransferComplete(); err != nil {
			s.logger().Warn().Err(err).Msg("notify complete")
		}
	}
}

func (s *Session) onChannelClosed(e channelClosed) {
	if e.link != s.link || s.state.Terminal() {
		return
	}
	reason := "closed"
	if e.err != nil {
		reason = e.err.Error()
	}
	s.fail(WrapError("transport", ErrConnectionLost, reason), true)
}

func (s *Session) onPeerLoss(reason error) {
	if s.state == Idle || s.state.Terminal() {
		return
	}
	// The room is already gone on the server.
	s.fail(reason, false)
}

func (s *Session) onSignalingLost(e SignalingLost) {
	s.bound = false
	if s.joining {
		s.rejectJoin(WrapError("join room", ErrSignalingLost, errString(e.Err)))
		return
	}
	if s.state == Idle || s.state.Terminal() {
		return
	}
	s.fail(WrapError("signaling", ErrSignalingLost, errString(e.Err)), false)
}

func (s *Session) onTimer(e timerFired) {
	if e.gen != s.timerGen {
		return
	}
	s.timer = nil

	switch e.kind {
	case peerWaitTimer:
		if s.role == Initiator && s.state == Waiting {
			s.fail(WrapError("wait for peer", ErrTimeout, fmt.Sprintf("no one joined within %s", s.peerTimeout)), true)
		}
	case connectTimer:
		if s.state == Connecting {
			s.fail(WrapError("connect", ErrTimeout, fmt.Sprintf("peer did not connect within %s", s.connectTimeout)), true)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
