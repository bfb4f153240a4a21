package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/peercall/internal/call"
	"github.com/BioHazard786/peercall/internal/config"
	"github.com/BioHazard786/peercall/internal/logging"
	"github.com/BioHazard786/peercall/internal/media"
	"github.com/BioHazard786/peercall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

const connectTimeout = 15 * time.Second

// ConnectionContext owns the signaling connection for one call.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ConnectionContext, error) {
	codec, err := signaling.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := signaling.NewClient(cfg.SignalingURL, codec, logger)
	if err := client.Connect(dialCtx); err != nil {
		return nil, fmt.Errorf("connect to server: %w", err)
	}

	handler := signaling.NewHandler(client, logger)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Handler != nil {
		c.Handler.Close()
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// NewCoordinator builds the coordinator for cfg, capturing from the
// configured files.
func NewCoordinator(cfg *config.Config, logger *slog.Logger) (*call.Coordinator, error) {
	se := webrtc.SettingEngine{LoggerFactory: logging.NewPionFactory(logger)}
	api, err := call.NewAPI(&se)
	if err != nil {
		return nil, fmt.Errorf("create webrtc api: %w", err)
	}

	return call.New(call.Config{
		API:                  api,
		ICEServers:           cfg.ICEServers(),
		ICECandidatePoolSize: config.DefaultCandidatePool,
		ICETransportPolicy:   cfg.TransportPolicy(),
		Source:               media.NewFileSource(cfg.VideoFile, cfg.AudioFile, logger),
		Logger:               logger,
	})
}
