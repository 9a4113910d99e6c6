package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C0neF/gomoku-project/internal/room"
	"github.com/C0neF/gomoku-project/internal/signaling"
)

type testPeer struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
	seq  int
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := signaling.NewHub(room.NewDirectory())
	srv := httptest.NewServer(NewRouter(hub, Options{}))
	t.Cleanup(srv.Close)
	return srv
}

func dialPeer(t *testing.T, srv *httptest.Server) *testPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &testPeer{t: t, conn: conn}
	msg := p.read()
	require.Equal(t, signaling.MessageTypeWelcome, msg.Type)

	var welcome signaling.Welcome
	require.NoError(t, json.Unmarshal(msg.Payload, &welcome))
	_, err = uuid.Parse(welcome.ParticipantID)
	require.NoError(t, err)
	p.id = welcome.ParticipantID
	return p
}

func (p *testPeer) read() signaling.Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg signaling.Message
	require.NoError(p.t, p.conn.ReadJSON(&msg))
	return msg
}

func (p *testPeer) send(msg signaling.Message) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(msg))
}

// request sends msg and returns the next message, which must be its response.
func (p *testPeer) request(msg signaling.Message) signaling.Response {
	p.t.Helper()
	p.seq++
	msg.RequestID = p.id[:8] + "-" + string(rune('a'+p.seq))
	msg.ClientType = "cli"
	p.send(msg)

	reply := p.read()
	require.Equal(p.t, signaling.MessageTypeResponse, reply.Type)
	require.Equal(p.t, msg.RequestID, reply.RequestID)

	var resp signaling.Response
	require.NoError(p.t, json.Unmarshal(reply.Payload, &resp))
	return resp
}

func TestGateway_CreateJoinRelayLeave(t *testing.T) {
	srv := newTestServer(t)
	host := dialPeer(t, srv)
	guest := dialPeer(t, srv)

	// When: the host creates a room
	created := host.request(signaling.Message{Type: signaling.MessageTypeCreateRoom})

	// Then: it gets a room code and the host role
	require.True(t, created.OK)
	assert.True(t, room.ValidID(created.RoomID))
	assert.Equal(t, signaling.RoleHost, created.Role)
	assert.Equal(t, host.id, created.ParticipantID)

	// When: the guest joins
	joined := guest.request(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: created.RoomID})

	// Then: the guest sees the host, and the host is told about the guest
	require.True(t, joined.OK)
	assert.Equal(t, signaling.RoleGuest, joined.Role)
	assert.Equal(t, []string{host.id}, joined.Others)
	assert.Equal(t, 2, joined.ParticipantCount)
	assert.Equal(t, "cli", joined.PeerClientType)

	note := host.read()
	require.Equal(t, signaling.MessageTypePeerJoined, note.Type)
	var pj signaling.PeerJoined
	require.NoError(t, json.Unmarshal(note.Payload, &pj))
	assert.Equal(t, guest.id, pj.ParticipantID)
	assert.Equal(t, 2, pj.ParticipantCount)
	assert.Equal(t, []string{guest.id}, pj.Others)

	// When: the host relays an offer to the guest
	host.send(signaling.Message{
		Type:     signaling.MessageTypeOffer,
		TargetID: guest.id,
		Payload:  json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})

	// Then: the guest receives it untouched with the sender stamped
	offer := guest.read()
	assert.Equal(t, signaling.MessageTypeOffer, offer.Type)
	assert.Equal(t, host.id, offer.SenderID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.Payload))

	// When: the guest disconnects
	guest.conn.Close()

	// Then: the host is told it is alone and keeps the room
	left := host.read()
	require.Equal(t, signaling.MessageTypePeerLeft, left.Type)
	var pl signaling.PeerLeft
	require.NoError(t, json.Unmarshal(left.Payload, &pl))
	assert.Equal(t, guest.id, pl.ParticipantID)
	assert.Equal(t, 1, pl.ParticipantCount)
}

func TestGateway_JoinErrors(t *testing.T) {
	srv := newTestServer(t)
	host := dialPeer(t, srv)
	guest := dialPeer(t, srv)
	third := dialPeer(t, srv)

	t.Run("room not found", func(t *testing.T) {
		resp := guest.request(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: "ZZZZZZ"})

		assert.False(t, resp.OK)
		assert.Equal(t, signaling.ErrorRoomNotFound, resp.Error)
	})

	t.Run("room full", func(t *testing.T) {
		created := host.request(signaling.Message{Type: signaling.MessageTypeCreateRoom})
		require.True(t, guest.request(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: created.RoomID}).OK)
		require.Equal(t, signaling.MessageTypePeerJoined, host.read().Type)

		resp := third.request(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: created.RoomID})

		assert.False(t, resp.OK)
		assert.Equal(t, signaling.ErrorRoomFull, resp.Error)

		// The room is unchanged.
		others := host.request(signaling.Message{Type: signaling.MessageTypeListOthers, RoomID: created.RoomID})
		assert.Equal(t, []string{guest.id}, others.Others)
	})
}

func TestGateway_RelayOutsideRoomIsDropped(t *testing.T) {
	srv := newTestServer(t)
	host := dialPeer(t, srv)
	stranger := dialPeer(t, srv)

	created := host.request(signaling.Message{Type: signaling.MessageTypeCreateRoom})
	require.True(t, created.OK)

	// When: the host relays to a connected participant outside its room
	host.send(signaling.Message{
		Type:     signaling.MessageTypeICECandidate,
		TargetID: stranger.id,
		Payload:  json.RawMessage(`{"candidate":"x"}`),
	})

	// Then: the stranger's next message is its own response, not the relay
	resp := stranger.request(signaling.Message{Type: signaling.MessageTypeListOthers, RoomID: created.RoomID})
	assert.True(t, resp.OK)
	assert.Equal(t, []string{host.id}, resp.Others)
}

func TestGateway_LeaveRoomDeletesEmptyRoom(t *testing.T) {
	srv := newTestServer(t)
	host := dialPeer(t, srv)
	guest := dialPeer(t, srv)

	created := host.request(signaling.Message{Type: signaling.MessageTypeCreateRoom})
	require.True(t, host.request(signaling.Message{Type: signaling.MessageTypeLeaveRoom, RoomID: created.RoomID}).OK)

	resp := guest.request(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: created.RoomID})

	assert.Equal(t, signaling.ErrorRoomNotFound, resp.Error)
}

func TestGateway_HealthAndStats(t *testing.T) {
	srv := newTestServer(t)
	host := dialPeer(t, srv)
	require.True(t, host.request(signaling.Message{Type: signaling.MessageTypeCreateRoom}).OK)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer res.Body.Close()

	var stats signaling.Stats
	require.NoError(t, json.NewDecoder(res.Body).Decode(&stats))
	assert.Equal(t, signaling.Stats{Rooms: 1, Connections: 1}, stats)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"gomoku.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "no origin")

	req.Header.Set("Origin", "https://gomoku.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}

func TestHub_CloseEndsConnections(t *testing.T) {
	hub := signaling.NewHub(room.NewDirectory())
	srv := httptest.NewServer(NewRouter(hub, Options{}))
	t.Cleanup(srv.Close)

	p := dialPeer(t, srv)
	hub.Close()

	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg signaling.Message
	err := p.conn.ReadJSON(&msg)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), "got %v", err)

	assert.Eventually(t, func() bool {
		return hub.Stats().Connections == 0
	}, 5*time.Second, 20*time.Millisecond)
}
