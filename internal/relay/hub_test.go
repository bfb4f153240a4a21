package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/peercall/internal/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startRelay serves a hub on an httptest server and returns its ws URL.
func startRelay(t *testing.T) (string, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(quietLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewMux(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", srv
}

type wsPeer struct {
	t     *testing.T
	conn  *websocket.Conn
	codec signaling.Codec
}

func dial(t *testing.T, url string, codec signaling.Codec) *wsPeer {
	t.Helper()

	d := websocket.Dialer{Subprotocols: []string{codec.Subprotocol()}}
	conn, _, err := d.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, codec.Subprotocol(), conn.Subprotocol())
	return &wsPeer{t: t, conn: conn, codec: codec}
}

func (p *wsPeer) send(msg *signaling.Message) {
	p.t.Helper()
	data, err := p.codec.Marshal(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(p.codec.FrameType(), data))
}

func (p *wsPeer) recv() *signaling.Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)

	var msg signaling.Message
	require.NoError(p.t, p.codec.Unmarshal(data, &msg))
	return &msg
}

func (p *wsPeer) expect(msgType string) *signaling.Message {
	p.t.Helper()
	msg := p.recv()
	require.Equal(p.t, msgType, msg.Type, "got %+v", msg)
	return msg
}

// createRoom creates a room through p and joins it as initiator.
func createRoom(p *wsPeer) string {
	p.t.Helper()
	p.send(signaling.CreateRoom())
	roomID := p.expect(signaling.MessageTypeRoomCreated).RoomID
	require.True(p.t, ValidRoomID(roomID), roomID)

	p.send(signaling.JoinRoom(roomID))
	joined := p.expect(signaling.MessageTypeRoomJoined)
	require.True(p.t, joined.IsInitiator)
	return roomID
}

func TestValidRoomID(t *testing.T) {
	assert.True(t, ValidRoomID("482913"))
	assert.True(t, ValidRoomID("000000"))
	assert.False(t, ValidRoomID("48291"))
	assert.False(t, ValidRoomID("4829130"))
	assert.False(t, ValidRoomID("48291a"))
	assert.False(t, ValidRoomID("４８２９１３"))
	assert.False(t, ValidRoomID(""))
}

func TestCreateAndJoin(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url, signaling.JSON)
	b := dial(t, url, signaling.JSON)

	roomID := createRoom(a)

	b.send(signaling.JoinRoom(roomID))
	joined := b.expect(signaling.MessageTypeRoomJoined)
	assert.Equal(t, roomID, joined.RoomID)
	assert.False(t, joined.IsInitiator)

	peer := a.expect(signaling.MessageTypePeerJoined)
	_, err := uuid.Parse(peer.PeerID)
	assert.NoError(t, err)
}

func TestJoinRejections(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url, signaling.JSON)
	b := dial(t, url, signaling.JSON)
	c := dial(t, url, signaling.Msgpack)

	c.send(signaling.JoinRoom("abc"))
	assert.Equal(t, ReasonInvalidRoom, c.expect(signaling.MessageTypeJoinError).Error)

	roomID := createRoom(a)
	missing := "000000"
	if roomID == missing {
		missing = "000001"
	}
	c.send(signaling.JoinRoom(missing))
	assert.Equal(t, ReasonNotFound, c.expect(signaling.MessageTypeJoinError).Error)

	b.send(signaling.JoinRoom(roomID))
	b.expect(signaling.MessageTypeRoomJoined)

	c.send(signaling.JoinRoom(roomID))
	assert.Equal(t, ReasonFull, c.expect(signaling.MessageTypeJoinError).Error)
}

func TestForwardsAcrossCodecs(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url, signaling.JSON)
	b := dial(t, url, signaling.Msgpack)

	roomID := createRoom(a)
	b.send(signaling.JoinRoom(roomID))
	b.expect(signaling.MessageTypeRoomJoined)
	a.expect(signaling.MessageTypePeerJoined)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`)
	a.send(signaling.NewOffer(roomID, sdp))
	offer := b.expect(signaling.MessageTypeOffer)
	assert.Equal(t, []byte(sdp), []byte(offer.SDP))

	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 127.0.0.1 50000 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	b.send(signaling.NewCandidate(roomID, cand))
	got := a.expect(signaling.MessageTypeCandidate)
	assert.JSONEq(t, string(cand), string(got.Candidate))

	b.send(&signaling.Message{Type: signaling.MessageTypeVideoToggle, RoomID: roomID, Enabled: new(bool)})
	toggle := a.expect(signaling.MessageTypeVideoToggle)
	require.NotNil(t, toggle.Enabled)
	assert.False(t, *toggle.Enabled)
}

func TestRelayBeforeJoin(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url, signaling.JSON)

	a.send(signaling.NewOffer("482913", json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	assert.Equal(t, ReasonNotInRoom, a.expect(signaling.MessageTypeError).Error)
}

func TestPeerLeft(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url, signaling.JSON)
	b := dial(t, url, signaling.JSON)

	roomID := createRoom(a)
	b.send(signaling.JoinRoom(roomID))
	b.expect(signaling.MessageTypeRoomJoined)
	bID := a.expect(signaling.MessageTypePeerJoined).PeerID

	b.send(signaling.LeaveRoom(roomID))
	left := a.expect(signaling.MessageTypePeerLeft)
	assert.Equal(t, bID, left.PeerID)

	// the room survives with a; a newcomer joins as the second participant
	c := dial(t, url, signaling.JSON)
	c.send(signaling.JoinRoom(roomID))
	assert.False(t, c.expect(signaling.MessageTypeRoomJoined).IsInitiator)
	cID := a.expect(signaling.MessageTypePeerJoined).PeerID

	c.conn.Close()
	assert.Equal(t, cID, a.expect(signaling.MessageTypePeerLeft).PeerID)
}

func TestRepeatedJoinIsAcknowledged(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url, signaling.JSON)
	b := dial(t, url, signaling.Msgpack)

	roomID := createRoom(a)
	a.send(signaling.JoinRoom(roomID))
	assert.True(t, a.expect(signaling.MessageTypeRoomJoined).IsInitiator)

	b.send(signaling.JoinRoom(roomID))
	assert.False(t, b.expect(signaling.MessageTypeRoomJoined).IsInitiator)
	a.expect(signaling.MessageTypePeerJoined)

	b.send(signaling.JoinRoom(roomID))
	again := b.expect(signaling.MessageTypeRoomJoined)
	assert.Equal(t, roomID, again.RoomID)
	assert.False(t, again.IsInitiator)

	// a only ever hears of b once; its next message is b leaving
	b.send(signaling.LeaveRoom(roomID))
	a.expect(signaling.MessageTypePeerLeft)
}

func TestEmptyRoomIsDeleted(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url, signaling.JSON)
	b := dial(t, url, signaling.JSON)

	roomID := createRoom(a)
	a.send(signaling.LeaveRoom(roomID))
	// the hub has handled the leave once a's next request is answered
	a.send(signaling.CreateRoom())
	a.expect(signaling.MessageTypeRoomCreated)

	b.send(signaling.JoinRoom(roomID))
	assert.Equal(t, ReasonNotFound, b.expect(signaling.MessageTypeJoinError).Error)
}

func TestReapEmpty(t *testing.T) {
	now := time.Now()
	h := NewHub(quietLogger())
	h.now = func() time.Time { return now }

	h.rooms["111111"] = &Room{ID: "111111", CreatedAt: now.Add(-emptyRoomTTL - time.Second)}
	h.rooms["222222"] = &Room{ID: "222222", CreatedAt: now}
	h.rooms["333333"] = &Room{ID: "333333", CreatedAt: now.Add(-time.Hour), Members: []*Peer{{ID: "p"}}}

	h.reapEmpty()

	assert.NotContains(t, h.rooms, "111111")
	assert.Contains(t, h.rooms, "222222")
	assert.Contains(t, h.rooms, "333333")
}

func TestHealth(t *testing.T) {
	_, srv := startRelay(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
