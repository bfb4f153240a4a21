package relay

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/BioHazard786/peercall/internal/signaling"
)

const (
	roomIDSpace  = 1_000_000
	emptyRoomTTL = 10 * time.Minute
	reapInterval = time.Minute
)

// Rejection reasons sent with join-error.
const (
	ReasonInvalidRoom = "Invalid room ID"
	ReasonNotFound    = "Room not found"
	ReasonFull        = "Room is full"
	ReasonNotInRoom   = "You must join a room first"
)

type inbound struct {
	from *Peer
	msg  *signaling.Message
}

// Hub manages all rooms and peers. Run is the only goroutine touching its
// state.
type Hub struct {
	rooms      map[string]*Room
	register   chan *Peer
	unregister chan *Peer
	inbound    chan inbound
	log        *slog.Logger
	now        func() time.Time
	done       chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		inbound:    make(chan inbound),
		log:        logger,
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

// ValidRoomID reports whether id is exactly six ASCII digits.
func ValidRoomID(id string) bool {
	if len(id) != 6 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// generateRoomID picks an unused six digit id.
func (h *Hub) generateRoomID() string {
	for {
		id := fmt.Sprintf("%06d", randomIndex(roomIDSpace))
		if _, ok := h.rooms[id]; !ok {
			return id
		}
	}
}

// randomIndex returns a cryptographically secure random index below max.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("failed to generate random index: %v", err))
	}
	return int(n.Int64())
}

// Run processes registrations and messages until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	reap := time.NewTicker(reapInterval)
	defer reap.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-h.register:
			h.log.Debug("Peer connected", "peer", p.ID, "codec", p.codec.Subprotocol())

		case p := <-h.unregister:
			h.log.Debug("Peer disconnected", "peer", p.ID)
			h.leave(p)
			close(p.send)

		case in := <-h.inbound:
			h.handle(in.from, in.msg)

		case <-reap.C:
			h.reapEmpty()
		}
	}
}

func (h *Hub) handle(p *Peer, msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeCreateRoom:
		room := &Room{ID: h.generateRoomID(), CreatedAt: h.now()}
		h.rooms[room.ID] = room
		h.log.Info("Room created", "room", room.ID, "peer", p.ID)
		h.deliver(p, &signaling.Message{Type: signaling.MessageTypeRoomCreated, RoomID: room.ID})

	case signaling.MessageTypeJoinRoom:
		h.join(p, msg.RoomID)

	case signaling.MessageTypeLeaveRoom:
		h.leave(p)

	default:
		if !signaling.IsRelayed(msg.Type) {
			h.log.Debug("Unknown message type", "type", msg.Type, "peer", p.ID)
			return
		}
		h.forward(p, msg)
	}
}

func (h *Hub) join(p *Peer, roomID string) {
	reject := func(reason string) {
		h.log.Info("Join rejected", "room", roomID, "peer", p.ID, "reason", reason)
		h.deliver(p, &signaling.Message{Type: signaling.MessageTypeJoinError, RoomID: roomID, Error: reason})
	}

	if !ValidRoomID(roomID) {
		reject(ReasonInvalidRoom)
		return
	}
	room, ok := h.rooms[roomID]
	if !ok {
		reject(ReasonNotFound)
		return
	}
	if p.roomID == roomID {
		// repeated join: acknowledge again without telling the other side
		h.deliver(p, &signaling.Message{
			Type:        signaling.MessageTypeRoomJoined,
			RoomID:      roomID,
			IsInitiator: room.Members[0] == p,
		})
		return
	}
	if room.full() {
		reject(ReasonFull)
		return
	}

	h.leave(p)
	room.add(p)
	p.roomID = roomID

	initiator := len(room.Members) == 1
	h.log.Info("Peer joined room", "room", roomID, "peer", p.ID, "initiator", initiator)

	// the joiner learns its role before the other side is told to offer
	h.deliver(p, &signaling.Message{
		Type:        signaling.MessageTypeRoomJoined,
		RoomID:      roomID,
		IsInitiator: initiator,
	})
	if other := room.other(p); other != nil {
		h.deliver(other, &signaling.Message{
			Type:   signaling.MessageTypePeerJoined,
			RoomID: roomID,
			PeerID: p.ID,
		})
	}
}

// leave removes p from its room, notifies the other participant and drops
// the room once empty.
func (h *Hub) leave(p *Peer) {
	if p.roomID == "" {
		return
	}
	room, ok := h.rooms[p.roomID]
	p.roomID = ""
	if !ok || !room.remove(p) {
		return
	}

	if room.empty() {
		delete(h.rooms, room.ID)
		h.log.Info("Room deleted", "room", room.ID)
		return
	}

	h.log.Info("Peer left room", "room", room.ID, "peer", p.ID)
	for _, m := range room.Members {
		h.deliver(m, &signaling.Message{
			Type:   signaling.MessageTypePeerLeft,
			RoomID: room.ID,
			PeerID: p.ID,
		})
	}
}

// forward relays msg unchanged to the other participant.
func (h *Hub) forward(p *Peer, msg *signaling.Message) {
	room, ok := h.rooms[p.roomID]
	if p.roomID == "" || !ok {
		h.deliver(p, &signaling.Message{Type: signaling.MessageTypeError, Error: ReasonNotInRoom})
		return
	}

	other := room.other(p)
	if other == nil {
		h.log.Debug("No other peer to relay to", "room", room.ID, "type", msg.Type)
		return
	}
	h.deliver(other, msg)
}

// deliver never blocks the hub; a peer that stops reading loses messages.
func (h *Hub) deliver(p *Peer, msg *signaling.Message) {
	select {
	case p.send <- msg:
	default:
		h.log.Warn("Peer send buffer full, dropping message", "peer", p.ID, "type", msg.Type)
	}
}

// reapEmpty deletes rooms created but never joined.
func (h *Hub) reapEmpty() {
	cutoff := h.now().Add(-emptyRoomTTL)
	for id, room := range h.rooms {
		if room.empty() && room.CreatedAt.Before(cutoff) {
			delete(h.rooms, id)
			h.log.Debug("Reaped unused room", "room", id)
		}
	}
}
