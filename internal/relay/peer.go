package relay

import (
	"time"

	"github.com/BioHazard786/peercall/internal/signaling"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP with candidates

	sendBuffer = 256
)

// Peer is one websocket connection to the relay.
type Peer struct {
	// ID is assigned on connect and announced to the other participant.
	ID string

	hub   *Hub
	conn  *websocket.Conn
	codec signaling.Codec

	// roomID is owned by the hub goroutine.
	roomID string

	// send is drained by writePump; the hub closes it on unregister.
	send chan *signaling.Message
}

// readPump pumps messages from the websocket connection to the hub.
func (p *Peer) readPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.done:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.log.Debug("Peer read error", "peer", p.ID, "error", err)
			}
			return
		}

		var msg signaling.Message
		if err := p.codec.Unmarshal(data, &msg); err != nil {
			p.hub.log.Warn("Dropping undecodable frame", "peer", p.ID, "error", err)
			continue
		}

		select {
		case p.hub.inbound <- inbound{from: p, msg: &msg}:
		case <-p.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection. Each
// peer encodes with its own codec, so JSON and msgpack peers can share a room.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := p.codec.Marshal(msg)
			if err != nil {
				p.hub.log.Error("Failed to encode message", "peer", p.ID, "type", msg.Type, "error", err)
				continue
			}
			if err := p.conn.WriteMessage(p.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
