package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/config"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/signaling"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/ui"
)

// transferContext is a running session plus the feed of its updates.
type transferContext struct {
	session *session.Session
	watch   *watcher
	stop    func()
}

// startSession runs a session against cfg until close is called. The
// session outlives ctx so an interrupted command can still notify its peer.
func startSession(cfg *config.Client, opts ...session.Option) *transferContext {
	w := newWatcher()
	opts = append([]session.Option{
		session.WithPeerTimeout(cfg.PeerTimeout),
		session.WithConnectTimeout(cfg.ConnectTimeout),
		session.WithOnUpdate(w.push),
	}, opts...)

	s, client := signaling.NewSession(cfg.ServerURL, newFactory(cfg), opts...)
	runCtx, cancel := context.WithCancel(context.Background())
	go s.Run(runCtx)

	log.Debug().Str("module", "cli").Str("server", cfg.ServerURL).Msg("session started")
	return &transferContext{
		session: s,
		watch:   w,
		stop: func() {
			cancel()
			<-s.Done()
			client.Close()

			flush, done := context.WithTimeout(context.Background(), interruptWait)
			defer done()
			client.Wait(flush)
		},
	}
}

func (t *transferContext) close() {
	t.stop()
}

// awaitConfirmation holds a completed sender open until the receiver reports
// the file saved, the session leaves Completed, or confirmWait passes.
func (t *transferContext) awaitConfirmation(ctx context.Context) bool {
	timeout := time.NewTimer(confirmWait)
	defer timeout.Stop()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap := t.session.Snapshot()
		if snap.PeerConfirmed {
			return true
		}
		if snap.State != session.Completed {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-timeout.C:
			log.Debug().Str("module", "cli").Dur("waited", confirmWait).Msg("receiver never confirmed")
			return false
		case <-ticker.C:
		}
	}
}

// follow shows progress until the session ends and reports the outcome.
func (t *transferContext) follow(ctx context.Context, mode ui.TransferMode, from session.Snapshot) error {
	model := ui.NewTransferModel(mode, from, t.watch.updates(), t.session.Cancel)
	final, err := ui.RunTransfer(ctx, model, programOptions...)
	if err != nil {
		log.Debug().Err(err).Str("module", "cli").Msg("progress display stopped")
		if ctx.Err() != nil {
			return interrupt(t.session)
		}
		final = settle(t.session, time.Hour)
	}
	return report(final)
}

// report prints the outcome of a finished session.
func report(snap session.Snapshot) error {
	switch snap.State {
	case session.Completed:
		fmt.Fprintln(ui.Output)
		ui.RenderTransferSummary(ui.Summarize(snap, time.Now()))
		if snap.SavedAs != "" {
			ui.PrintSuccessf("Saved to %s", snap.SavedAs)
		} else {
			ui.PrintSuccess("Transfer complete")
		}
		return nil
	default:
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("transfer stopped while %s", snap.State)
	}
}
