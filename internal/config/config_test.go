package config

import (
	"testing"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DOMAIN", "SIGNALING_URL", "SIGNALING_CODEC", "STUN_SERVERS",
		"TURN_URL", "TURN_USERNAME", "TURN_CREDENTIAL", "FORCE_RELAY",
		"VIDEO_FILE", "AUDIO_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultDomain, cfg.Domain)
	assert.Equal(t, "wss://"+DefaultDomain+"/ws", cfg.SignalingURL)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, DefaultSTUN, cfg.STUNServers)
	assert.False(t, cfg.HasTURN())

	servers := cfg.ICEServers()
	require.Len(t, servers, 1)
	assert.Len(t, servers[0].URLs, 5)
	assert.Equal(t, pion.ICETransportPolicyAll, cfg.TransportPolicy())
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOMAIN", "env.example.com")
	t.Setenv("SIGNALING_CODEC", "msgpack")

	cfg, err := Load(Options{Domain: "flag.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "flag.example.com", cfg.Domain)
	assert.Equal(t, "wss://flag.example.com/ws", cfg.SignalingURL)
	assert.Equal(t, "msgpack", cfg.Codec)
}

func TestLoad_TURNAppendedLast(t *testing.T) {
	clearEnv(t)
	t.Setenv("STUN_SERVERS", "stun:a.example.com:3478, stun:b.example.com:3478")
	t.Setenv("TURN_URL", "turn:turn.example.com:3478")
	t.Setenv("TURN_USERNAME", "alice")
	t.Setenv("TURN_CREDENTIAL", "secret")

	cfg, err := Load(Options{ForceRelay: true})
	require.NoError(t, err)

	servers := cfg.ICEServers()
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, "alice", servers[1].Username)
	assert.Equal(t, pion.ICETransportPolicyRelay, cfg.TransportPolicy())
}

func TestLoad_PartialTURNIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("TURN_URL", "turn:turn.example.com:3478")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Len(t, cfg.ICEServers(), 1)
}

func TestLoad_Rejects(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{ForceRelay: true})
	assert.ErrorIs(t, err, ErrRelayWithoutTURN)

	_, err = Load(Options{Codec: "xml"})
	assert.Error(t, err)

	t.Setenv("FORCE_RELAY", "maybe")
	_, err = Load(Options{})
	assert.Error(t, err)
}

func TestConstraints(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(Options{})
	require.NoError(t, err)

	c := cfg.Constraints()
	require.NotNil(t, c.Video)
	require.NotNil(t, c.Audio)
	assert.Equal(t, 30, c.Video.FrameRate.Ideal)
	assert.Equal(t, 48000, c.Audio.SampleRate)
	assert.Equal(t, 1, c.Audio.ChannelCount)
}
