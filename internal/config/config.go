package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BioHazard786/peercall/internal/media"
	pion "github.com/pion/webrtc/v4"
)

// Default configuration values (production)
const (
	DefaultDomain        = "peercall.qzz.io"
	DefaultCodec         = "json"
	DefaultCandidatePool = 10
)

// DefaultSTUN is the public STUN pool used for candidate discovery.
var DefaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

var ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")

// Config holds application configuration
type Config struct {
	// Domain is the signaling server domain
	Domain string

	// SignalingURL defaults to wss://<domain>/ws
	SignalingURL string

	// Codec selects the signaling wire codec ("json" or "msgpack")
	Codec string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// AutoRelay is set when TURN is configured and the host looks like it
	// sits behind a VPN or CGNAT
	AutoRelay bool

	// Capture files for the file-backed media source; empty means idle track
	VideoFile string
	AudioFile string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain       string
	SignalingURL string
	Codec        string
	STUNServers  []string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	VideoFile    string
	AudioFile    string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)

	cfg := &Config{
		Domain:       domain,
		SignalingURL: pick(opts.SignalingURL, "SIGNALING_URL", fmt.Sprintf("wss://%s/ws", domain)),
		Codec:        strings.ToLower(pick(opts.Codec, "SIGNALING_CODEC", DefaultCodec)),
		STUNServers:  opts.STUNServers,
		TURNServer:   pick(opts.TURNServer, "TURN_URL", ""),
		TURNUser:     pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:     pick(opts.TURNPass, "TURN_CREDENTIAL", ""),
		ForceRelay:   opts.ForceRelay,
		VideoFile:    pick(opts.VideoFile, "VIDEO_FILE", ""),
		AudioFile:    pick(opts.AudioFile, "AUDIO_FILE", ""),
	}

	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = splitList(os.Getenv("STUN_SERVERS"))
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = DefaultSTUN
	}

	if !cfg.ForceRelay {
		if v := os.Getenv("FORCE_RELAY"); v != "" {
			relay, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("FORCE_RELAY: %w", err)
			}
			cfg.ForceRelay = relay
		}
	}

	switch cfg.Codec {
	case "json", "msgpack":
	default:
		return nil, fmt.Errorf("unsupported signaling codec %q", cfg.Codec)
	}

	if cfg.ForceRelay && !cfg.HasTURN() {
		return nil, ErrRelayWithoutTURN
	}
	cfg.AutoRelay = !cfg.ForceRelay && cfg.HasTURN() && RestrictedNetwork()

	return cfg, nil
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// HasTURN reports whether the authenticated relay endpoint is fully configured.
// A partial TURN configuration is ignored.
func (c *Config) HasTURN() bool {
	return c.TURNServer != "" && c.TURNUser != "" && c.TURNPass != ""
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("https://%s/room/%s", c.Domain, roomID)
}

// ICEServers returns the ordered ICE server list: the STUN pool first, then
// the TURN endpoint when configured.
func (c *Config) ICEServers() []pion.ICEServer {
	servers := []pion.ICEServer{{URLs: c.STUNServers}}
	if c.HasTURN() {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{c.TURNServer},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// TransportPolicy returns relay-only when relay is forced or detected.
func (c *Config) TransportPolicy() pion.ICETransportPolicy {
	if (c.ForceRelay || c.AutoRelay) && c.HasTURN() {
		return pion.ICETransportPolicyRelay
	}
	return pion.ICETransportPolicyAll
}

// Constraints returns the capture constraints tuned for low latency.
func (c *Config) Constraints() media.Constraints {
	return media.Constraints{
		Video: &media.VideoConstraints{
			Width:      media.Range{Ideal: 1280, Max: 1920},
			Height:     media.Range{Ideal: 720, Max: 1080},
			FrameRate:  media.Range{Ideal: 30, Max: 60},
			FacingMode: "user",
		},
		Audio: &media.AudioConstraints{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			SampleRate:       48000,
			ChannelCount:     1,
		},
	}
}
