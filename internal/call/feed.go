package call

import (
	"sync"
	"time"

	"github.com/BioHazard786/peercall/internal/media"
	"github.com/pion/webrtc/v4"
)

// TrackStats counts what arrived on one remote track.
type TrackStats struct {
	Kind    media.Kind
	Codec   string
	Packets uint64
	Bytes   uint64
	First   time.Time
	Last    time.Time
}

// Feed drains remote tracks and keeps per-kind counters. Media is never
// decoded or stored.
type Feed struct {
	mu     sync.Mutex
	tracks map[media.Kind]*TrackStats
}

func NewFeed() *Feed {
	return &Feed{tracks: make(map[media.Kind]*TrackStats)}
}

// Consume reads track until it ends. It returns immediately.
func (f *Feed) Consume(kind media.Kind, track *webrtc.TrackRemote) {
	f.mu.Lock()
	f.tracks[kind] = &TrackStats{Kind: kind, Codec: track.Codec().MimeType}
	f.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := track.Read(buf)
			if err != nil {
				return
			}
			f.record(kind, n)
		}
	}()
}

func (f *Feed) record(kind media.Kind, n int) {
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.tracks[kind]
	if !ok {
		st = &TrackStats{Kind: kind}
		f.tracks[kind] = st
	}
	if st.Packets == 0 {
		st.First = now
	}
	st.Packets++
	st.Bytes += uint64(n)
	st.Last = now
}

// Stats returns a copy of the counters, audio first.
func (f *Feed) Stats() []TrackStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []TrackStats
	for _, kind := range media.Kinds {
		if st, ok := f.tracks[kind]; ok {
			out = append(out, *st)
		}
	}
	return out
}
