package call

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/peercall/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

const testRoom = "482913"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loopbackAPI keeps candidate gathering on the loopback interface so two
// in-process peers connect without touching the network.
func loopbackAPI(t *testing.T) *webrtc.API {
	t.Helper()

	se := &webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	se.SetInterfaceFilter(func(name string) bool { return strings.HasPrefix(name, "lo") })

	api, err := NewAPI(se)
	require.NoError(t, err)
	return api
}

func testConstraints() media.Constraints {
	return media.Constraints{
		Video: &media.VideoConstraints{FrameRate: media.Range{Ideal: 30, Max: 60}},
		Audio: &media.AudioConstraints{SampleRate: 48000, ChannelCount: 1},
	}
}

func newCoordinator(t *testing.T, src media.Source) *Coordinator {
	t.Helper()
	if src == nil {
		src = media.NewFileSource("", "", quietLogger())
	}
	c, err := New(Config{API: loopbackAPI(t), Source: src, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Teardown(nil) })
	return c
}

// testPeer is one side of an in-process call.
type testPeer struct {
	coord   *Coordinator
	session *Session
	cands   chan json.RawMessage
}

func newPeer(t *testing.T) *testPeer {
	t.Helper()
	return &testPeer{
		coord: newCoordinator(t, nil),
		cands: make(chan json.RawMessage, 64),
	}
}

func (p *testPeer) join(t *testing.T, initiator bool) {
	t.Helper()

	_, err := p.coord.AcquireLocalMedia(context.Background(), testConstraints())
	require.NoError(t, err)

	p.session, err = p.coord.CreateSession(testRoom, initiator, Hooks{
		OnCandidate: func(_ string, c json.RawMessage) {
			select {
			case p.cands <- c:
			default:
			}
		},
	})
	require.NoError(t, err)
}

// forward applies every candidate gathered by from to to until the test ends.
func forward(t *testing.T, from, to *testPeer) {
	t.Helper()

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	go func() {
		for {
			select {
			case c := <-from.cands:
				to.coord.AddRemoteCandidate(to.session, c)
			case <-stop:
				return
			}
		}
	}()
}

func nextCandidate(t *testing.T, p *testPeer) json.RawMessage {
	t.Helper()
	select {
	case c := <-p.cands:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no candidate gathered")
		return nil
	}
}

// gathered returns what p has gathered after a short settle, without
// waiting for more.
func gathered(p *testPeer) []json.RawMessage {
	time.Sleep(200 * time.Millisecond)
	var out []json.RawMessage
	for {
		select {
		case c := <-p.cands:
			out = append(out, c)
		default:
			return out
		}
	}
}

func requireConnected(t *testing.T, peers ...*testPeer) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, p := range peers {
			if p.coord.CurrentState().Connection != StateConnected {
				return false
			}
		}
		return true
	}, 15*time.Second, 50*time.Millisecond)
}

// noErrors asserts nothing was reported on the error channel.
func noErrors(t *testing.T, c *Coordinator) {
	t.Helper()
	select {
	case err := <-c.Errors():
		t.Fatalf("unexpected error report: %v", err)
	default:
	}
}

func pendingCount(s *Session) int {
	s.negotiate.Lock()
	defer s.negotiate.Unlock()
	return len(s.pending)
}

func appliedCount(s *Session) int {
	s.negotiate.Lock()
	defer s.negotiate.Unlock()
	return s.applied
}

func currentSession(c *Coordinator) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

type deniedSource struct{ err error }

func (d deniedSource) Acquire(context.Context, media.Constraints) (*media.Stream, error) {
	return nil, d.err
}
func (deniedSource) TracksOf(*media.Stream, media.Kind) []*media.Track { return nil }
func (deniedSource) SetEnabled(*media.Track, bool)                     {}
func (deniedSource) Release(*media.Stream)                             {}

// gatedSource blocks Acquire until gate is closed and records releases.
type gatedSource struct {
	*media.FileSource
	entered  chan struct{}
	gate     chan struct{}
	released chan *media.Stream
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		FileSource: media.NewFileSource("", "", quietLogger()),
		entered:    make(chan struct{}),
		gate:       make(chan struct{}),
		released:   make(chan *media.Stream, 4),
	}
}

func (g *gatedSource) Acquire(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	close(g.entered)
	<-g.gate
	return g.FileSource.Acquire(ctx, c)
}

func (g *gatedSource) Release(s *media.Stream) {
	g.released <- s
	g.FileSource.Release(s)
}
