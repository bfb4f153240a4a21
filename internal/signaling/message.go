package signaling

import (
	"encoding/json"

	"github.com/BioHazard786/peercall/internal/media"
)

// Message is the envelope for every frame exchanged with the relay. SDP and
// Candidate carry the peer connection's JSON untouched by the signaling path.
// Msgpack keeps their bytes; the JSON codec compacts and escapes them, so
// over JSON they arrive equal as JSON values rather than byte for byte.
type Message struct {
	Type        string          `json:"type" msgpack:"type"`
	RoomID      string          `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	PeerID      string          `json:"peerId,omitempty" msgpack:"peerId,omitempty"`
	SDP         json.RawMessage `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty" msgpack:"enabled,omitempty"`
	IsInitiator bool            `json:"isInitiator,omitempty" msgpack:"isInitiator,omitempty"`
	Error       string          `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Message type constants.
const (
	// client -> relay
	MessageTypeCreateRoom = "create-room"
	MessageTypeJoinRoom   = "join-room"
	MessageTypeLeaveRoom  = "leave-room"

	// relayed between peers
	MessageTypeOffer       = "offer"
	MessageTypeAnswer      = "answer"
	MessageTypeCandidate   = "candidate"
	MessageTypeVideoToggle = "peer-video-toggle"
	MessageTypeAudioToggle = "peer-audio-toggle"

	// relay -> client
	MessageTypeRoomCreated = "room-created"
	MessageTypeRoomJoined  = "room-joined"
	MessageTypeJoinError   = "join-error"
	MessageTypePeerJoined  = "peer-joined"
	MessageTypePeerLeft    = "peer-left"
	MessageTypeError       = "error"
)

// IsRelayed reports whether the relay forwards a message of type t to the
// other participant unchanged.
func IsRelayed(t string) bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate,
		MessageTypeVideoToggle, MessageTypeAudioToggle:
		return true
	}
	return false
}

func CreateRoom() *Message {
	return &Message{Type: MessageTypeCreateRoom}
}

func JoinRoom(roomID string) *Message {
	return &Message{Type: MessageTypeJoinRoom, RoomID: roomID}
}

func LeaveRoom(roomID string) *Message {
	return &Message{Type: MessageTypeLeaveRoom, RoomID: roomID}
}

func NewOffer(roomID string, sdp json.RawMessage) *Message {
	return &Message{Type: MessageTypeOffer, RoomID: roomID, SDP: sdp}
}

func NewAnswer(roomID string, sdp json.RawMessage) *Message {
	return &Message{Type: MessageTypeAnswer, RoomID: roomID, SDP: sdp}
}

func NewCandidate(roomID string, candidate json.RawMessage) *Message {
	return &Message{Type: MessageTypeCandidate, RoomID: roomID, Candidate: candidate}
}

// NewToggle announces a local media toggle to the partner.
func NewToggle(roomID string, kind media.Kind, enabled bool) *Message {
	t := MessageTypeAudioToggle
	if kind == media.KindVideo {
		t = MessageTypeVideoToggle
	}
	return &Message{Type: t, RoomID: roomID, Enabled: &enabled}
}
