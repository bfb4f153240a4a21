package call

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/peercall/internal/media"
	"github.com/pion/webrtc/v4"
)

// Hooks receive transient session events. They run on pion goroutines and
// must not call back into the coordinator synchronously.
type Hooks struct {
	// OnCandidate delivers a locally gathered candidate for the partner.
	OnCandidate func(roomID string, candidate json.RawMessage)

	// OnRemoteTrack is called once per inbound track. When nil the track
	// is drained and discarded.
	OnRemoteTrack func(kind media.Kind, track *webrtc.TrackRemote)

	OnStateChange func(state ConnectionState)
}

// Session is one negotiation lifespan in a room. It owns its peer connection.
type Session struct {
	RoomID    string
	Initiator bool

	pc    *webrtc.PeerConnection
	hooks Hooks

	// closed is checked by pion callbacks and by steps finishing after
	// teardown; teardown never takes negotiate.
	closed atomic.Bool

	negotiate    sync.Mutex
	offerPending bool
	remoteSet    bool
	pending      []webrtc.ICECandidateInit
	applied      int

	// endOnce reports at most one of failed or closed.
	endOnce sync.Once
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

func (s *Session) close() {
	if s.closed.CompareAndSwap(false, true) {
		s.pc.Close()
	}
}

func (s *Session) stateChanged(state ConnectionState) {
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(state)
	}
}
