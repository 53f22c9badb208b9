package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/config"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/files"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/ui"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "send <file>",
		Aliases: []string{"s"},
		Short:   "Send a file to a receiver",
		Long: `Send a file directly to a receiver over WebRTC.

A 4-digit code is printed once the room is created. Read it to the receiver,
who runs "tunneldrop receive <code>".

Examples:
  tunneldrop send report.pdf
  tunneldrop send --relay --turn turn.example.com -u me -p secret report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return sendFile(cmd.Context(), cfg, args[0])
		},
	}
	addNetworkFlags(cmd.Flags())
	return cmd
}

func sendFile(parent context.Context, cfg *config.Client, path string) error {
	info, err := files.ValidateFile(path)
	if err != nil {
		return err
	}
	src, closer, err := files.Open(info)
	if err != nil {
		return err
	}
	defer closer.Close()

	fmt.Fprintln(ui.Output)
	ui.RenderFile(info.Descriptor())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tc := startSession(cfg)
	defer tc.close()

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	tc.session.Create(src)
	snap, err := tc.watch.until(ctx, func(s session.Snapshot) bool {
		return s.Code != "" || s.State.Terminal()
	})
	stopSpinner()
	if err != nil {
		return interrupt(tc.session)
	}
	if snap.State.Terminal() {
		return report(snap)
	}

	fmt.Fprintln(ui.Output)
	ui.RenderCode(snap.Code)

	if err := tc.follow(ctx, ui.ModeSend, snap); err != nil {
		return err
	}
	tc.awaitConfirmation(ctx)
	return nil
}
