// Package commands is the tunneldrop command line.
package commands

import (
	"context"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/config"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/transport"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/ui"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/version"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/webrtc"
)

var (
	// newFactory builds the peer transport for cfg.
	newFactory = func(cfg *config.Client) transport.Factory {
		return webrtc.NewFactory(webrtc.ConfigFrom(cfg))
	}

	// programOptions are passed to every progress program.
	programOptions []tea.ProgramOption
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "tunneldrop",
		Short: "Send one file to another machine with a 4-digit code",
		Long: `TunnelDrop transfers a single file directly between two machines over WebRTC.
The sender gets a 4-digit code from the signaling server and reads it to the
receiver, who joins with it. File bytes never pass through the server.`,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newSendCmd(), newReceiveCmd(), newVersionCmd())
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root := NewRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true

	if err := root.ExecuteContext(context.Background()); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// addNetworkFlags registers the settings config.Load reads.
func addNetworkFlags(fs *pflag.FlagSet) {
	fs.String("server", config.DefaultServerURL, "Signaling server websocket URL")
	fs.StringSliceP("stun", "s", []string{config.DefaultSTUN}, "STUN server URLs")
	fs.StringP("turn", "t", "", "TURN server host")
	fs.StringP("turn-user", "u", "", "TURN username")
	fs.StringP("turn-pass", "p", "", "TURN password")
	fs.BoolP("relay", "r", false, "Force relay through the TURN server")
	fs.Bool("trickle", false, "Send ICE candidates as they are gathered")
	fs.Duration("peer-timeout", config.DefaultPeerTimeout, "How long to wait for the other side to join")
	fs.Duration("connect-timeout", config.DefaultConnectTimeout, "How long to wait for the peer connection to open")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("tunneldrop %s\n", version.Version)
		},
	}
}

// interruptWait bounds how long an interrupted command waits for the
// session to tell the peer.
const interruptWait = 2 * time.Second

// confirmWait bounds how long a finished sender keeps its connection open
// for the receiver's confirmation.
var confirmWait = 10 * time.Second
