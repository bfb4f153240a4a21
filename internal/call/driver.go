package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/peercall/internal/media"
	"github.com/BioHazard786/peercall/internal/signaling"
)

// Signaler is the outbound side of the signaling connection.
type Signaler interface {
	Send(msg *signaling.Message) error
}

// Intent is a user action forwarded into the driver loop.
type Intent int

const (
	IntentToggleAudio Intent = iota
	IntentToggleVideo
	IntentHangUp
)

type DriverOptions struct {
	// RoomID to join. Empty creates a room first.
	RoomID      string
	Constraints media.Constraints

	// OnRoom is called once the room id is known.
	OnRoom func(roomID string)

	// OnPeer reports the partner joining (true) or leaving (false).
	OnPeer func(present bool)

	Logger *slog.Logger
}

// Driver runs every coordinator operation for one call from a single
// goroutine, fed by signaling events and user intents.
type Driver struct {
	coord   *Coordinator
	out     Signaler
	events  <-chan signaling.Event
	opts    DriverOptions
	log     *slog.Logger
	feed    *Feed
	intents chan Intent
	done    chan struct{}

	// owned by the Run goroutine
	room    string
	session *Session
}

func NewDriver(coord *Coordinator, out Signaler, events <-chan signaling.Event, opts DriverOptions) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		coord:   coord,
		out:     out,
		events:  events,
		opts:    opts,
		log:     logger,
		feed:    NewFeed(),
		intents: make(chan Intent, 8),
		done:    make(chan struct{}),
	}
}

// Feed exposes the remote media counters.
func (d *Driver) Feed() *Feed {
	return d.feed
}

// Coordinator returns the coordinator the driver operates.
func (d *Driver) Coordinator() *Coordinator {
	return d.coord
}

// Send queues an intent. It reports false once Run has returned.
func (d *Driver) Send(i Intent) bool {
	select {
	case <-d.done:
		return false
	default:
	}

	select {
	case d.intents <- i:
		return true
	case <-d.done:
		return false
	}
}

func (d *Driver) Toggle(kind media.Kind) bool {
	if kind == media.KindVideo {
		return d.Send(IntentToggleVideo)
	}
	return d.Send(IntentToggleAudio)
}

func (d *Driver) HangUp() bool {
	return d.Send(IntentHangUp)
}

// Run acquires media, joins the room and drives the call until hang up,
// context cancellation, connection failure or loss of signaling. Media
// failure returns before anything is sent. When the partner leaves, the room
// is kept and a fresh session waits for the next one.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.done)

	if _, err := d.coord.AcquireLocalMedia(ctx, d.opts.Constraints); err != nil {
		return err
	}
	defer func() { d.coord.Teardown(d.session) }()

	first := signaling.CreateRoom()
	if d.opts.RoomID != "" {
		d.setRoom(d.opts.RoomID)
		first = signaling.JoinRoom(d.opts.RoomID)
	}
	if err := d.send(first); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			d.leave()
			return ctx.Err()

		case intent := <-d.intents:
			if intent == IntentHangUp {
				d.log.Info("Hanging up", "room", d.room)
				d.leave()
				return nil
			}
			d.toggle(intent)

		case err := <-d.coord.Errors():
			if !d.current(err) {
				continue
			}
			switch {
			case errors.Is(err, ErrConnectionFailed):
				d.leave()
				return err
			case errors.Is(err, ErrConnectionClosed):
				d.log.Info("Peer closed the connection", "room", d.room)
				if err := d.rejoin(ctx); err != nil {
					return err
				}
			}

		case ev, ok := <-d.events:
			if !ok {
				return ErrSignalingLost
			}
			if err := d.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) handle(ctx context.Context, ev signaling.Event) error {
	switch ev := ev.(type) {
	case signaling.RoomCreated:
		d.log.Info("Room created", "room", ev.RoomID)
		d.setRoom(ev.RoomID)
		return d.send(signaling.JoinRoom(ev.RoomID))

	case signaling.JoinFailed:
		return ev.Err()

	case signaling.Joined:
		if d.session != nil {
			d.log.Warn("Ignoring repeated join acknowledgment", "room", ev.RoomID)
			return nil
		}
		room := ev.RoomID
		if room == "" {
			room = d.room
		}
		s, err := d.coord.CreateSession(room, ev.Initiator, d.hooks())
		if err != nil {
			return err
		}
		d.session = s
		d.setRoom(room)
		if !ev.Initiator {
			d.announce()
		}

	case signaling.PeerJoined:
		d.log.Info("Peer joined", "room", d.room, "peer", ev.PeerID)
		d.peer(true)
		if d.session == nil {
			return nil
		}
		d.announce()
		if !d.session.Initiator {
			return nil
		}
		offer, err := d.coord.ProduceOffer(d.session)
		if err != nil {
			return d.stepFailed(err)
		}
		return d.send(signaling.NewOffer(d.room, offer))

	case signaling.PeerLeft:
		d.log.Info("Peer left the room", "room", d.room, "peer", ev.PeerID)
		d.peer(false)
		return d.rejoin(ctx)

	case signaling.Offer:
		if d.session == nil {
			d.log.Warn("Dropping offer received before joining")
			return nil
		}
		answer, err := d.coord.AcceptOffer(d.session, ev.SDP)
		if err != nil {
			return d.stepFailed(err)
		}
		return d.send(signaling.NewAnswer(d.room, answer))

	case signaling.Answer:
		if d.session == nil {
			return nil
		}
		return d.stepFailed(d.coord.AcceptAnswer(d.session, ev.SDP))

	case signaling.Candidate:
		if d.session == nil {
			return nil
		}
		return d.stepFailed(d.coord.AddRemoteCandidate(d.session, ev.Candidate))

	case signaling.PeerToggle:
		d.coord.ObserveRemoteToggle(ev.Kind, ev.Enabled)

	case signaling.ServerError:
		d.log.Warn("Signaling server error", "error", ev.Message)
	}
	return nil
}

// current reports whether a connection report belongs to the live session.
func (d *Driver) current(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.session != nil && e.session == d.session
}

// rejoin replaces the session after the partner has gone. Whoever stays
// becomes the initiator and offers to the next peer that joins. Local
// mute and camera choices carry over.
func (d *Driver) rejoin(ctx context.Context) error {
	if d.session == nil {
		return nil
	}

	d.coord.Teardown(d.session)
	d.session = nil
	if _, err := d.coord.AcquireLocalMedia(ctx, d.opts.Constraints); err != nil {
		return err
	}
	s, err := d.coord.CreateSession(d.room, true, d.hooks())
	if err != nil {
		return err
	}
	d.session = s

	d.log.Info("Waiting for the next peer", "room", d.room)
	return nil
}

func (d *Driver) hooks() Hooks {
	return Hooks{
		OnCandidate: func(roomID string, candidate json.RawMessage) {
			if err := d.out.Send(signaling.NewCandidate(roomID, candidate)); err != nil {
				d.log.Debug("Candidate not sent", "room", roomID, "error", err)
			}
		},
		OnRemoteTrack: d.feed.Consume,
	}
}

func (d *Driver) toggle(intent Intent) {
	kind := media.KindAudio
	if intent == IntentToggleVideo {
		kind = media.KindVideo
	}

	enabled := d.coord.ToggleLocalTrack(kind)
	if d.session == nil {
		return
	}
	if err := d.out.Send(signaling.NewToggle(d.room, kind, enabled)); err != nil {
		d.log.Debug("Toggle not announced", "kind", kind, "error", err)
	}
}

// announce tells a new partner which local kinds are switched off.
func (d *Driver) announce() {
	local := d.coord.CurrentState().Local
	for _, kind := range media.Kinds {
		if local.Enabled(kind) {
			continue
		}
		if err := d.out.Send(signaling.NewToggle(d.room, kind, false)); err != nil {
			d.log.Debug("Toggle not announced", "kind", kind, "error", err)
		}
	}
}

// stepFailed keeps the call alive after a negotiation step error; only a
// dead session ends it.
func (d *Driver) stepFailed(err error) error {
	if err == nil || !errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

func (d *Driver) send(msg *signaling.Message) error {
	if err := d.out.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w: %w", msg.Type, ErrSignalingLost, err)
	}
	return nil
}

func (d *Driver) leave() {
	if d.room == "" {
		return
	}
	if err := d.out.Send(signaling.LeaveRoom(d.room)); err != nil {
		d.log.Debug("Leave not sent", "room", d.room, "error", err)
	}
}

func (d *Driver) setRoom(roomID string) {
	if roomID == "" || roomID == d.room {
		return
	}
	d.room = roomID
	if d.opts.OnRoom != nil {
		d.opts.OnRoom(roomID)
	}
}

func (d *Driver) peer(present bool) {
	if d.opts.OnPeer != nil {
		d.opts.OnPeer(present)
	}
}
