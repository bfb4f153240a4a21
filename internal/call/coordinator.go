package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/peercall/internal/media"
	"github.com/pion/webrtc/v4"
)

const errorBuffer = 16

// Config is fixed for the coordinator's lifetime.
type Config struct {
	// API defaults to NewAPI(nil).
	API *webrtc.API

	ICEServers           []webrtc.ICEServer
	ICECandidatePoolSize uint8
	ICETransportPolicy   webrtc.ICETransportPolicy

	Source media.Source
	Logger *slog.Logger
}

// Coordinator turns room membership and signaling events into a media
// session. Operations on one session are expected from a single goroutine;
// pion callbacks and Teardown may run concurrently with them.
type Coordinator struct {
	api      *webrtc.API
	pcConfig webrtc.Configuration
	source   media.Source
	log      *slog.Logger
	errs     chan error

	mu      sync.Mutex
	stream  *media.Stream
	gen     uint64
	session *Session
	conn    ConnectionState
	local   MediaState
	remote  MediaState
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Source == nil {
		return nil, errors.New("call: media source is required")
	}

	api := cfg.API
	if api == nil {
		var err error
		if api, err = NewAPI(nil); err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		api: api,
		pcConfig: webrtc.Configuration{
			ICEServers:           cfg.ICEServers,
			ICECandidatePoolSize: cfg.ICECandidatePoolSize,
			ICETransportPolicy:   cfg.ICETransportPolicy,
		},
		source: cfg.Source,
		log:    logger,
		errs:   make(chan error, errorBuffer),
		conn:   StateNew,
		local:  allEnabled(),
		remote: allEnabled(),
	}, nil
}

// Errors carries step-local failures and the terminal ErrConnectionFailed
// or ErrConnectionClosed. Reports are dropped when nobody drains the channel.
func (c *Coordinator) Errors() <-chan error {
	return c.errs
}

func (c *Coordinator) report(err error) {
	c.log.Warn("Call error", "error", err)
	select {
	case c.errs <- err:
	default:
		c.log.Debug("Error channel full, dropping report", "error", err)
	}
}

// CurrentState returns a snapshot of room, connection and media state.
func (c *Coordinator) CurrentState() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Connection: c.conn,
		Local:      c.local,
		Remote:     c.remote,
	}
	if c.session != nil {
		snap.RoomID = c.session.RoomID
		snap.Initiator = c.session.Initiator
	}
	return snap
}

// AcquireLocalMedia requests capture once; later calls return the held
// stream. A Teardown during acquisition releases the result.
func (c *Coordinator) AcquireLocalMedia(ctx context.Context, constraints media.Constraints) (*media.Stream, error) {
	c.mu.Lock()
	if c.stream != nil {
		stream := c.stream
		c.mu.Unlock()
		return stream, nil
	}
	gen := c.gen
	c.mu.Unlock()

	stream, err := c.source.Acquire(ctx, constraints)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, newError("acquire media", "", err)
		}
		return nil, wrapError("acquire media", "", ErrMediaAccessDenied, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.source.Release(stream)
		return nil, newError("acquire media", "", ErrSessionClosed)
	}
	if c.stream != nil {
		held := c.stream
		c.mu.Unlock()
		c.source.Release(stream)
		return held, nil
	}
	c.stream = stream
	for _, kind := range media.Kinds {
		for _, t := range c.source.TracksOf(stream, kind) {
			c.source.SetEnabled(t, c.local.Enabled(kind))
		}
	}
	c.mu.Unlock()

	c.log.Info("Local media acquired", "stream", stream.ID)
	return stream, nil
}

// CreateSession allocates the peer connection for roomID and attaches every
// enabled local track.
func (c *Coordinator) CreateSession(roomID string, initiator bool, hooks Hooks) (*Session, error) {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return nil, newError("create session", roomID, ErrMediaNotAcquired)
	}
	if c.session != nil {
		c.mu.Unlock()
		return nil, newError("create session", roomID, ErrSessionActive)
	}
	stream, local := c.stream, c.local
	c.mu.Unlock()

	pc, err := c.api.NewPeerConnection(c.pcConfig)
	if err != nil {
		return nil, wrapError("create session", roomID, ErrNegotiation, err)
	}

	s := &Session{
		RoomID:    roomID,
		Initiator: initiator,
		pc:        pc,
		hooks:     hooks,
	}
	// registered before any gathering the candidate pool may start
	c.register(s)

	for _, kind := range media.Kinds {
		if err := c.attach(pc, stream, kind, local.Enabled(kind)); err != nil {
			s.close()
			return nil, wrapError("create session", roomID, ErrNegotiation, err)
		}
	}

	c.mu.Lock()
	switch {
	case c.stream != stream:
		c.mu.Unlock()
		s.close()
		return nil, newError("create session", roomID, ErrSessionClosed)
	case c.session != nil:
		c.mu.Unlock()
		s.close()
		return nil, newError("create session", roomID, ErrSessionActive)
	}
	c.session = s
	c.conn = StateNew
	c.remote = allEnabled()
	c.mu.Unlock()

	c.log.Info("Session created", "room", roomID, "initiator", initiator)
	return s, nil
}

// attach adds the track of kind when enabled, or a receive-only transceiver
// so the partner's media of that kind is still negotiated.
func (c *Coordinator) attach(pc *webrtc.PeerConnection, stream *media.Stream, kind media.Kind, enabled bool) error {
	if enabled {
		if tracks := c.source.TracksOf(stream, kind); len(tracks) > 0 {
			for _, t := range tracks {
				if _, err := pc.AddTrack(t.Local()); err != nil {
					return fmt.Errorf("add %s track: %w", kind, err)
				}
			}
			return nil
		}
	}

	codecType := webrtc.RTPCodecTypeAudio
	if kind == media.KindVideo {
		codecType = webrtc.RTPCodecTypeVideo
	}
	_, err := pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (c *Coordinator) register(s *Session) {
	s.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || s.Closed() || s.hooks.OnCandidate == nil {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			c.log.Error("Failed to encode candidate", "room", s.RoomID, "error", err)
			return
		}
		s.hooks.OnCandidate(s.RoomID, data)
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if s.Closed() {
			return
		}
		kind := media.KindOf(track.Kind())
		c.log.Info("Remote track", "room", s.RoomID, "kind", kind, "codec", track.Codec().MimeType)
		if s.hooks.OnRemoteTrack != nil {
			s.hooks.OnRemoteTrack(kind, track)
			return
		}
		discard(track)
	})

	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		c.observe(s, stateFromPion(st))
	})
}

// observe relays a transition reported by the peer connection. A close we
// did not ask for means the partner shut the connection down.
func (c *Coordinator) observe(s *Session, state ConnectionState) {
	if state == StateNew || s.Closed() {
		return
	}

	c.mu.Lock()
	if c.session != s || s.Closed() {
		c.mu.Unlock()
		return
	}
	c.conn = state
	c.mu.Unlock()

	c.log.Info("Connection state changed", "room", s.RoomID, "state", state)
	s.stateChanged(state)

	switch state {
	case StateFailed:
		c.ended(s, ErrConnectionFailed)
	case StateClosed:
		c.ended(s, ErrConnectionClosed)
	}
}

func (c *Coordinator) ended(s *Session, kind error) {
	s.endOnce.Do(func() {
		e := newError("connection", s.RoomID, kind)
		e.session = s
		c.report(e)
	})
}

// advance moves new to connecting once a description has been produced or
// consumed.
func (c *Coordinator) advance(s *Session) {
	c.mu.Lock()
	if c.session != s || c.conn != StateNew {
		c.mu.Unlock()
		return
	}
	c.conn = StateConnecting
	c.mu.Unlock()

	s.stateChanged(StateConnecting)
}

func live(op string, s *Session) error {
	if s == nil {
		return newError(op, "", ErrSessionClosed)
	}
	if s.Closed() {
		return newError(op, s.RoomID, ErrSessionClosed)
	}
	return nil
}

// fail reports and returns a negotiation error, unless the session died
// underneath the step.
func (c *Coordinator) fail(op string, s *Session, err error) error {
	if s.Closed() {
		return newError(op, s.RoomID, ErrSessionClosed)
	}
	e := wrapError(op, s.RoomID, ErrNegotiation, err)
	c.report(e)
	return e
}

// ProduceOffer creates and sets the local offer. Only one offer may be
// outstanding.
func (c *Coordinator) ProduceOffer(s *Session) (json.RawMessage, error) {
	const op = "produce offer"
	if err := live(op, s); err != nil {
		return nil, err
	}

	s.negotiate.Lock()
	defer s.negotiate.Unlock()

	if s.offerPending {
		return nil, c.fail(op, s, ErrOfferPending)
	}

	offer, err := createOffer(s.pc)
	if err != nil {
		return nil, c.fail(op, s, err)
	}
	if s.Closed() {
		return nil, newError(op, s.RoomID, ErrSessionClosed)
	}

	s.offerPending = true
	c.advance(s)

	data, err := json.Marshal(offer)
	if err != nil {
		return nil, c.fail(op, s, err)
	}
	c.log.Debug("Offer produced", "room", s.RoomID)
	return data, nil
}

// AcceptOffer applies the partner's offer and returns our answer.
func (c *Coordinator) AcceptOffer(s *Session, offer json.RawMessage) (json.RawMessage, error) {
	const op = "accept offer"
	if err := live(op, s); err != nil {
		return nil, err
	}

	s.negotiate.Lock()
	defer s.negotiate.Unlock()

	switch {
	case s.offerPending:
		return nil, c.fail(op, s, errors.New("offer received while our offer is pending"))
	case s.remoteSet:
		return nil, c.fail(op, s, errors.New("duplicate offer"))
	}

	desc, err := parseDescription(offer, webrtc.SDPTypeOffer)
	if err != nil {
		return nil, c.fail(op, s, err)
	}

	answer, err := createAnswer(s.pc, desc)
	if err != nil {
		// the remote description may have been applied before the answer failed
		if s.pc.RemoteDescription() != nil {
			c.remoteApplied(s)
		}
		return nil, c.fail(op, s, err)
	}
	if s.Closed() {
		return nil, newError(op, s.RoomID, ErrSessionClosed)
	}

	c.remoteApplied(s)
	c.advance(s)

	data, err := json.Marshal(answer)
	if err != nil {
		return nil, c.fail(op, s, err)
	}
	c.log.Debug("Answer produced", "room", s.RoomID)
	return data, nil
}

// AcceptAnswer applies the partner's answer to our outstanding offer.
func (c *Coordinator) AcceptAnswer(s *Session, answer json.RawMessage) error {
	const op = "accept answer"
	if err := live(op, s); err != nil {
		return err
	}

	s.negotiate.Lock()
	defer s.negotiate.Unlock()

	if !s.offerPending {
		return c.fail(op, s, errors.New("answer without a pending offer"))
	}

	desc, err := parseDescription(answer, webrtc.SDPTypeAnswer)
	if err != nil {
		return c.fail(op, s, err)
	}

	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return c.fail(op, s, fmt.Errorf("set remote description: %w", err))
	}
	if s.Closed() {
		return newError(op, s.RoomID, ErrSessionClosed)
	}

	s.offerPending = false
	c.remoteApplied(s)

	c.log.Debug("Answer applied", "room", s.RoomID)
	return nil
}

// AddRemoteCandidate buffers the candidate until the remote description is
// set. Bad candidates are reported on Errors and never returned.
func (c *Coordinator) AddRemoteCandidate(s *Session, candidate json.RawMessage) error {
	const op = "add candidate"
	if err := live(op, s); err != nil {
		return err
	}

	s.negotiate.Lock()
	defer s.negotiate.Unlock()

	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		c.report(wrapError(op, s.RoomID, ErrCandidateApply, err))
		return nil
	}

	if !s.remoteSet {
		s.pending = append(s.pending, init)
		c.log.Debug("Candidate buffered", "room", s.RoomID, "pending", len(s.pending))
		return nil
	}

	c.apply(s, init)
	return nil
}

// remoteApplied marks the remote description as set; candidates from then on
// go straight to the peer connection. Caller holds negotiate.
func (c *Coordinator) remoteApplied(s *Session) {
	s.remoteSet = true
	c.flush(s)
}

// flush applies buffered candidates in arrival order. Caller holds negotiate.
func (c *Coordinator) flush(s *Session) {
	pending := s.pending
	s.pending = nil
	for _, init := range pending {
		c.apply(s, init)
	}
	if len(pending) > 0 {
		c.log.Debug("Buffered candidates flushed", "room", s.RoomID, "count", len(pending))
	}
}

func (c *Coordinator) apply(s *Session, init webrtc.ICECandidateInit) {
	if err := s.pc.AddICECandidate(init); err != nil {
		if !s.Closed() {
			c.report(wrapError("add candidate", s.RoomID, ErrCandidateApply, err))
		}
		return
	}
	s.applied++
}

// ToggleLocalTrack flips the enabled flag of kind and returns the new value.
// The device keeps running; only the flow of samples stops.
func (c *Coordinator) ToggleLocalTrack(kind media.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	enabled := !c.local.Enabled(kind)
	c.local.set(kind, enabled)
	if c.stream != nil {
		for _, t := range c.source.TracksOf(c.stream, kind) {
			c.source.SetEnabled(t, enabled)
		}
	}

	c.log.Info("Local track toggled", "kind", kind, "enabled", enabled)
	return enabled
}

// ObserveRemoteToggle records the partner's announced media state. It is
// presentation-only.
func (c *Coordinator) ObserveRemoteToggle(kind media.Kind, enabled bool) {
	c.mu.Lock()
	c.remote.set(kind, enabled)
	c.mu.Unlock()

	c.log.Debug("Remote track toggled", "kind", kind, "enabled", enabled)
}

// Teardown releases local media and closes the session. s may be nil or
// already torn down; a stale session is closed without touching current
// state.
func (c *Coordinator) Teardown(s *Session) {
	c.mu.Lock()
	if s != nil && s != c.session {
		c.mu.Unlock()
		s.close()
		return
	}

	c.gen++
	cur := c.session
	stream := c.stream
	c.session = nil
	c.stream = nil
	c.conn = StateClosed
	c.mu.Unlock()

	if cur != nil {
		cur.close()
		cur.stateChanged(StateClosed)
		c.log.Info("Session closed", "room", cur.RoomID)
	}
	if stream != nil {
		c.source.Release(stream)
	}
}

// discard drains a remote track nobody consumes.
func discard(track *webrtc.TrackRemote) {
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	}()
}
