package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/peercall/internal/ui"
	"github.com/BioHazard786/peercall/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "peercall",
	Short:   "Peer-to-peer audio/video calls using WebRTC, with webapp support",
	Long:    `PeerCall is a command-line tool for one-to-one audio and video calls over WebRTC. Two participants meet in a room on a lightweight signaling server, negotiate a direct connection and then talk peer to peer, falling back to TURN when no direct path exists. Rooms are interoperable with the PeerCall webapp.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.FormatError(err))
		stop()
		os.Exit(1)
	}
}
