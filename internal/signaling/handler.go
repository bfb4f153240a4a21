package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/peercall/internal/media"
)

var ErrJoinFailed = errors.New("failed to join room")

// Event is a routed inbound message. Events are delivered on a single
// channel so their causal order survives routing.
type Event interface {
	event()
}

type (
	// RoomCreated answers create-room.
	RoomCreated struct{ RoomID string }

	// Joined is delivered once per successful join. Initiator is true when
	// the room was empty, meaning this side produces the offer.
	Joined struct {
		RoomID    string
		Initiator bool
	}

	// JoinFailed replaces Joined when the relay rejects the join.
	JoinFailed struct{ Reason string }

	PeerJoined struct{ PeerID string }
	PeerLeft   struct{ PeerID string }

	Offer struct {
		RoomID string
		SDP    json.RawMessage
	}

	Answer struct {
		RoomID string
		SDP    json.RawMessage
	}

	Candidate struct {
		RoomID    string
		Candidate json.RawMessage
	}

	// PeerToggle reports the partner muting or unmuting one kind.
	PeerToggle struct {
		Kind    media.Kind
		Enabled bool
	}

	// ServerError is a relay error unrelated to joining.
	ServerError struct{ Message string }
)

func (RoomCreated) event() {}
func (Joined) event()      {}
func (JoinFailed) event()  {}
func (PeerJoined) event()  {}
func (PeerLeft) event()    {}
func (Offer) event()       {}
func (Answer) event()      {}
func (Candidate) event()   {}
func (PeerToggle) event()  {}
func (ServerError) event() {}

// Err wraps the rejection reason in ErrJoinFailed.
func (j JoinFailed) Err() error {
	return fmt.Errorf("%w: %s", ErrJoinFailed, j.Reason)
}

// Inbox is the inbound side of a signaling connection.
type Inbox interface {
	Incoming() <-chan *Message
}

// Handler routes incoming signaling messages into events.
type Handler struct {
	inbox  Inbox
	events chan Event
	stop   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

// NewHandler creates a new message handler.
func NewHandler(inbox Inbox, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		inbox:  inbox,
		events: make(chan Event, 32),
		stop:   make(chan struct{}),
		log:    logger,
	}
}

// Start routes messages until the inbox closes or Close is called, then
// closes the event channel.
func (h *Handler) Start() {
	defer close(h.events)

	for {
		select {
		case msg, ok := <-h.inbox.Incoming():
			if !ok {
				return
			}
			ev, ok := Route(msg)
			if !ok {
				h.log.Debug("Ignoring signaling message", "type", msg.Type)
				continue
			}
			select {
			case h.events <- ev:
			case <-h.stop:
				return
			}
		case <-h.stop:
			return
		}
	}
}

// Events returns the ordered event stream.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// Close stops routing. Safe to call repeatedly.
func (h *Handler) Close() {
	h.once.Do(func() { close(h.stop) })
}

// Route maps a message to its event. Unknown types and messages missing
// their payload are not routed.
func Route(msg *Message) (Event, bool) {
	switch msg.Type {
	case MessageTypeRoomCreated:
		return RoomCreated{RoomID: msg.RoomID}, msg.RoomID != ""

	case MessageTypeRoomJoined:
		return Joined{RoomID: msg.RoomID, Initiator: msg.IsInitiator}, true

	case MessageTypeJoinError:
		return JoinFailed{Reason: msg.Error}, true

	case MessageTypePeerJoined:
		return PeerJoined{PeerID: msg.PeerID}, true

	case MessageTypePeerLeft:
		return PeerLeft{PeerID: msg.PeerID}, true

	case MessageTypeOffer:
		return Offer{RoomID: msg.RoomID, SDP: msg.SDP}, len(msg.SDP) > 0

	case MessageTypeAnswer:
		return Answer{RoomID: msg.RoomID, SDP: msg.SDP}, len(msg.SDP) > 0

	case MessageTypeCandidate:
		return Candidate{RoomID: msg.RoomID, Candidate: msg.Candidate}, len(msg.Candidate) > 0

	case MessageTypeVideoToggle, MessageTypeAudioToggle:
		if msg.Enabled == nil {
			return nil, false
		}
		kind := media.KindAudio
		if msg.Type == MessageTypeVideoToggle {
			kind = media.KindVideo
		}
		return PeerToggle{Kind: kind, Enabled: *msg.Enabled}, true

	case MessageTypeError:
		return ServerError{Message: msg.Error}, true
	}
	return nil, false
}
