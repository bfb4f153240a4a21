package call

import (
	"github.com/BioHazard786/peercall/internal/media"
	"github.com/pion/webrtc/v4"
)

// ConnectionState is the coordinator's view of the peer connection.
// Disconnected is recoverable; Failed and Closed end the session.
type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

func (s ConnectionState) String() string { return string(s) }

// Terminal reports whether no further transition is possible for the session.
func (s ConnectionState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

func stateFromPion(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

// MediaState holds one enabled flag per kind.
type MediaState struct {
	Audio bool
	Video bool
}

func allEnabled() MediaState {
	return MediaState{Audio: true, Video: true}
}

func (m MediaState) Enabled(kind media.Kind) bool {
	if kind == media.KindVideo {
		return m.Video
	}
	return m.Audio
}

func (m *MediaState) set(kind media.Kind, enabled bool) {
	if kind == media.KindVideo {
		m.Video = enabled
		return
	}
	m.Audio = enabled
}

// Snapshot is a consistent copy of the coordinator state for presentation.
type Snapshot struct {
	RoomID     string
	Initiator  bool
	Connection ConnectionState
	Local      MediaState
	Remote     MediaState
}
