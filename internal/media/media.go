package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Kind identifies a media track type
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Kinds lists every kind in attach order.
var Kinds = []Kind{KindAudio, KindVideo}

var (
	ErrPermissionDenied  = errors.New("media access denied")
	ErrDeviceUnavailable = errors.New("media device unavailable")
)

// KindOf maps a pion codec type to a Kind.
func KindOf(t webrtc.RTPCodecType) Kind {
	if t == webrtc.RTPCodecTypeVideo {
		return KindVideo
	}
	return KindAudio
}

// Range is an ideal/max pair as used by capture constraints
type Range struct {
	Ideal int `json:"ideal"`
	Max   int `json:"max,omitempty"`
}

type VideoConstraints struct {
	Width      Range  `json:"width"`
	Height     Range  `json:"height"`
	FrameRate  Range  `json:"frameRate"`
	FacingMode string `json:"facingMode,omitempty"`
}

type AudioConstraints struct {
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
	AutoGainControl  bool `json:"autoGainControl"`
	SampleRate       int  `json:"sampleRate"`
	ChannelCount     int  `json:"channelCount"`
}

// Constraints is passed through to the Source. A nil kind requests no track of
// that kind.
type Constraints struct {
	Video *VideoConstraints `json:"video,omitempty"`
	Audio *AudioConstraints `json:"audio,omitempty"`
}

// Wants reports whether the constraints request a track of kind.
func (c Constraints) Wants(kind Kind) bool {
	switch kind {
	case KindVideo:
		return c.Video != nil
	case KindAudio:
		return c.Audio != nil
	}
	return false
}

// Source acquires and controls local capture.
type Source interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
	TracksOf(s *Stream, kind Kind) []*Track
	SetEnabled(t *Track, enabled bool)
	Release(s *Stream)
}

// Track is one local capture track. Disabling it keeps the device running but
// stops samples from being written.
type Track struct {
	kind    Kind
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
}

// NewTrack creates an enabled track of kind in streamID, using VP8 for video
// and Opus for audio.
func NewTrack(kind Kind, streamID string) (*Track, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if kind == KindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, string(kind), streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	t := &Track{kind: kind, local: local}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) Kind() Kind                            { return t.kind }
func (t *Track) Local() *webrtc.TrackLocalStaticSample { return t.local }
func (t *Track) Enabled() bool                         { return t.enabled.Load() }
func (t *Track) Stopped() bool                         { return t.stopped.Load() }
func (t *Track) SetEnabled(enabled bool)               { t.enabled.Store(enabled) }

// Stream groups the tracks of one acquisition
type Stream struct {
	ID string

	tracks []*Track
	stop   func()
	once   sync.Once
}

// NewStream wraps tracks. stop, if non-nil, runs once on the first Stop.
func NewStream(id string, tracks []*Track, stop func()) *Stream {
	return &Stream{ID: id, tracks: tracks, stop: stop}
}

func (s *Stream) Tracks() []*Track {
	return s.tracks
}

// TracksOf returns the tracks of kind, at most one per kind.
func (s *Stream) TracksOf(kind Kind) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop ends every track. Safe to call repeatedly.
func (s *Stream) Stop() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.stopped.Store(true)
		}
		if s.stop != nil {
			s.stop()
		}
	})
}
