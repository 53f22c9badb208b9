package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/code"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/config"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/files"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/ui"
)

type receiveOptions struct {
	dir string
	yes bool
	in  io.Reader
}

func newReceiveCmd() *cobra.Command {
	var opts receiveOptions

	cmd := &cobra.Command{
		Use:     "receive <code>",
		Aliases: []string{"r"},
		Short:   "Receive a file from a sender",
		Long: `Receive a file directly from a sender over WebRTC.

Examples:
  tunneldrop receive 0451
  tunneldrop receive 0451 --dir ~/Downloads
  tunneldrop receive 0451 --relay --turn turn.example.com -u me -p secret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := strings.TrimSpace(args[0])
			if !code.Valid(c) {
				return session.ErrInvalidCode
			}
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			opts.in = cmd.InOrStdin()
			return receiveFile(cmd.Context(), cfg, c, opts)
		},
	}
	addNetworkFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", ".", "Directory to save the file in")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Accept the file without asking")
	return cmd
}

func receiveFile(parent context.Context, cfg *config.Client, roomCode string, opts receiveOptions) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tc := startSession(cfg, session.WithOutput(files.Writers(opts.dir)))
	defer tc.close()

	fmt.Fprintln(ui.Output)
	stopSpinner := ui.RunConnectionSpinner(fmt.Sprintf("Joining room %s...", roomCode))
	tc.session.Join(roomCode)
	snap, err := tc.watch.until(ctx, func(s session.Snapshot) bool {
		return s.HasFile || s.Err != nil || s.State.Terminal()
	})
	stopSpinner()
	if err != nil {
		return interrupt(tc.session)
	}
	if !snap.HasFile {
		return report(snap)
	}

	ui.RenderFile(snap.File)

	accept := opts.yes
	if !accept {
		accept, err = askConsent(ctx, opts.in, ui.Output)
		if err != nil {
			return interrupt(tc.session)
		}
	}
	if !accept {
		tc.session.Decline()
		settle(tc.session, interruptWait)
		ui.PrintWarning("Transfer declined")
		return nil
	}

	tc.session.Accept()
	return tc.follow(ctx, ui.ModeReceive, snap)
}

// askConsent asks whether to take the file. Only an explicit yes accepts.
func askConsent(ctx context.Context, in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintf(out, "\n%s Do you want to receive this file? [y/N] ", ui.IconQuestion)

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-answer:
		return isYes(line), nil
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
