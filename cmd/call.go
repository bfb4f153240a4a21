package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/peercall/internal/call"
	"github.com/BioHazard786/peercall/internal/config"
	"github.com/BioHazard786/peercall/internal/signaling"
	"github.com/BioHazard786/peercall/internal/ui"
	"github.com/spf13/cobra"
)

// callFlags are shared by create and join.
type callFlags struct {
	domain       string
	signalingURL string
	codec        string
	stun         []string
	turn         string
	turnUser     string
	turnPass     string
	relay        bool
	video        string
	audio        string
	noVideo      bool
	noAudio      bool
}

func (f *callFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.domain, "domain", "d", "", "Custom domain")
	cmd.Flags().StringVar(&f.signalingURL, "signaling-url", "", "Signaling server URL (default wss://<domain>/ws)")
	cmd.Flags().StringVarP(&f.codec, "codec", "c", "", "Signaling codec: json or msgpack")
	cmd.Flags().StringSliceVarP(&f.stun, "stun", "s", nil, "Custom STUN server (repeatable)")
	cmd.Flags().StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVarP(&f.turnUser, "turn-user", "u", "", "TURN username")
	cmd.Flags().StringVarP(&f.turnPass, "turn-pass", "p", "", "TURN password")
	cmd.Flags().BoolVarP(&f.relay, "relay", "r", false, "Force relay mode")
	cmd.Flags().StringVar(&f.video, "video", "", "IVF (VP8) file to send as camera")
	cmd.Flags().StringVar(&f.audio, "audio", "", "Ogg (Opus) file to send as microphone")
	cmd.Flags().BoolVar(&f.noVideo, "no-video", false, "Join without a camera track")
	cmd.Flags().BoolVar(&f.noAudio, "no-audio", false, "Join without a microphone track")
}

func (f *callFlags) options() config.Options {
	return config.Options{
		Domain:       f.domain,
		SignalingURL: f.signalingURL,
		Codec:        f.codec,
		STUNServers:  f.stun,
		TURNServer:   f.turn,
		TURNUser:     f.turnUser,
		TURNPass:     f.turnPass,
		ForceRelay:   f.relay,
		VideoFile:    f.video,
		AudioFile:    f.audio,
	}
}

// runCall connects to signaling, then creates (roomID empty) or joins a room
// and shows the call until it ends.
func runCall(ctx context.Context, roomID string, f *callFlags) error {
	cfg, err := LoadConfig(f.options())
	if err != nil {
		return err
	}
	logger := slog.Default()

	constraints := cfg.Constraints()
	if f.noVideo {
		constraints.Video = nil
	}
	if f.noAudio {
		constraints.Audio = nil
	}
	if constraints.Video == nil && constraints.Audio == nil {
		return errors.New("nothing to send: both --no-video and --no-audio given")
	}
	if cfg.AutoRelay {
		ui.PrintWarning("VPN or CGNAT detected, routing the call through TURN")
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner(ui.IconSignal + " Connecting to server...")
	conn, err := NewConnectionContext(ctx, cfg, logger)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	coord, err := NewCoordinator(cfg, logger)
	if err != nil {
		return err
	}

	// room is written by the driver goroutine and read once Run returns
	room := roomID
	var view *ui.CallView
	driver := call.NewDriver(coord, conn.Client, conn.Handler.Events(), call.DriverOptions{
		RoomID:      roomID,
		Constraints: constraints,
		OnRoom: func(id string) {
			room = id
			view.RoomReady(id)
		},
		OnPeer: func(present bool) { view.PeerPresent(present) },
		Logger: logger,
	})
	view = ui.NewCallView(coord.CurrentState, driver, cfg.GetRoomLink)

	err = view.Run(func() error { return driver.Run(ctx) })

	if errors.Is(err, signaling.ErrJoinFailed) || errors.Is(err, call.ErrMediaAccessDenied) {
		return err
	}

	fmt.Println()
	ui.RenderCallSummary(ui.CallSummary{
		RoomID:   room,
		Outcome:  outcome(err),
		Duration: view.Duration(),
		Tracks:   driver.Feed().Stats(),
	})

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return ui.IconHangUp + " Hung up"
	case errors.Is(err, context.Canceled):
		return ui.IconHangUp + " Interrupted"
	case errors.Is(err, call.ErrConnectionFailed):
		return ui.IconError + " Connection failed"
	case errors.Is(err, call.ErrSignalingLost):
		return ui.IconError + " Signaling connection lost"
	default:
		return ui.IconError + " " + err.Error()
	}
}
