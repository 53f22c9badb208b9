package commands

import (
	"context"
	"errors"
	"time"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
)

var errInterrupted = errors.New("interrupted")

// watcher hands session updates from the session goroutine to the command.
// Only the latest snapshot is kept.
type watcher struct {
	ch chan session.Snapshot
}

func newWatcher() *watcher {
	return &watcher{ch: make(chan session.Snapshot, 1)}
}

// push never blocks. It has a single caller, the session loop.
func (w *watcher) push(s session.Snapshot) {
	for {
		select {
		case w.ch <- s:
			return
		default:
		}
		select {
		case <-w.ch:
		default:
		}
	}
}

func (w *watcher) updates() <-chan session.Snapshot {
	return w.ch
}

// until blocks until an update satisfies cond or ctx ends.
func (w *watcher) until(ctx context.Context, cond func(session.Snapshot) bool) (session.Snapshot, error) {
	for {
		select {
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		case s := <-w.ch:
			if cond(s) {
				return s, nil
			}
		}
	}
}

// settle polls s until it reaches a terminal state or d passes.
func settle(s *session.Session, d time.Duration) session.Snapshot {
	deadline := time.Now().Add(d)
	for {
		snap := s.Snapshot()
		if snap.State.Terminal() || time.Now().After(deadline) {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// interrupt cancels s and gives it a moment to notify the peer.
func interrupt(s *session.Session) error {
	s.Cancel()
	settle(s, interruptWait)
	return errInterrupted
}
