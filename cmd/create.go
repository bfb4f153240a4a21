package cmd

import (
	"github.com/spf13/cobra"
)

var createFlags callFlags

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c", "new"},
	Short:   "Create a room and wait for someone to join the call",
	Long: `Create a new call room on the signaling server. The room ID and webapp
link are shown once the room exists; the call starts when the other person joins.

Keys during a call:
  m  mute / unmute the microphone
  v  turn the camera on / off
  q  hang up

Examples:
  peercall create
  peercall create --video cam.ivf --audio mic.ogg
  peercall create --codec msgpack --relay --turn turn:turn.example.com:3478 -u alice -p secret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd.Context(), "", &createFlags)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createFlags.register(createCmd)
}
