package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer reflects every frame back on the negotiated subprotocol.
func echoServer(t *testing.T, protocols ...string) string {
	t.Helper()

	upgrader := websocket.Upgrader{Subprotocols: protocols}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		require.True(t, ok, "incoming closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestClient_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Subprotocol(), func(t *testing.T) {
			url := echoServer(t, Subprotocols()...)

			c := NewClient(url, codec, nil)
			require.NoError(t, c.Connect(context.Background()))
			defer c.Close()

			assert.Equal(t, codec.Subprotocol(), c.Codec().Subprotocol())

			sdp := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
			require.NoError(t, c.Send(NewOffer("482913", sdp)))

			got := receive(t, c)
			assert.Equal(t, MessageTypeOffer, got.Type)
			assert.Equal(t, "482913", got.RoomID)
			assert.JSONEq(t, string(sdp), string(got.SDP))
		})
	}
}

func TestClient_FallsBackToJSON(t *testing.T) {
	url := echoServer(t)

	c := NewClient(url, Msgpack, nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, SubprotocolJSON, c.Codec().Subprotocol())

	require.NoError(t, c.Send(JoinRoom("482913")))
	assert.Equal(t, MessageTypeJoinRoom, receive(t, c).Type)
}

func TestClient_SendAfterClose(t *testing.T) {
	c := NewClient(echoServer(t, SubprotocolJSON), JSON, nil)
	require.NoError(t, c.Connect(context.Background()))

	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Send(LeaveRoom("482913")), ErrClientClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", JSON, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, c.Connect(ctx))
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, Msgpack, c)

	c, err = CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, JSON, c)

	_, err = CodecByName("xml")
	assert.Error(t, err)
}

func TestMsgpack_KeepsPayloadBytes(t *testing.T) {
	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	enabled := true

	data, err := Msgpack.Marshal(&Message{Type: MessageTypeCandidate, RoomID: "482913", Candidate: cand, Enabled: &enabled})
	require.NoError(t, err)

	var got Message
	require.NoError(t, Msgpack.Unmarshal(data, &got))
	assert.Equal(t, []byte(cand), []byte(got.Candidate))
	require.NotNil(t, got.Enabled)
	assert.True(t, *got.Enabled)
}

func TestJSON_PayloadKeepsMeaning(t *testing.T) {
	sdp := json.RawMessage("{ \"type\": \"offer\",\n  \"sdp\": \"v=0\\r\\na=group:BUNDLE 0 <1>\" }")

	data, err := JSON.Marshal(&Message{Type: MessageTypeOffer, RoomID: "482913", SDP: sdp})
	require.NoError(t, err)

	var got Message
	require.NoError(t, JSON.Unmarshal(data, &got))
	assert.JSONEq(t, string(sdp), string(got.SDP))
	assert.NotEqual(t, []byte(sdp), []byte(got.SDP))

	var desc struct{ Type, SDP string }
	require.NoError(t, json.Unmarshal(got.SDP, &desc))
	assert.Equal(t, "offer", desc.Type)
	assert.Equal(t, "v=0\r\na=group:BUNDLE 0 <1>", desc.SDP)
}
