package cmd

import (
	"log/slog"

	"github.com/BioHazard786/peercall/internal/relay"
	"github.com/BioHazard786/peercall/internal/ui"
	"github.com/spf13/cobra"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a signaling server",
	Long: `Run the room signaling server that pairs callers and relays their
offers, answers and candidates. It serves /ws for clients and /health for probes.

Examples:
  peercall serve
  peercall serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ui.PrintInfof("%s Signaling server listening on %s", ui.IconListener, flagServeAddr)
		return relay.ListenAndServe(cmd.Context(), flagServeAddr, slog.Default())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&flagServeAddr, "addr", "a", ":8080", "Listen address")
}
