package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/parley/internal/chat"
	"github.com/jason-s-yu/parley/internal/config"
	"github.com/jason-s-yu/parley/internal/payload"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		OutboxSize:   32,
		WriteTimeout: 2 * time.Second,
		PingInterval: time.Minute,
		StoreTimeout: time.Second,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *chat.Registry) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := chat.NewRegistry(chat.NewMemoryMuteStore(), logger)
	mux := http.NewServeMux()
	mux.Handle("/chat/ws", ChatWSHandler(logger, reg, testConfig()))
	mux.Handle("/rooms", ListRoomsHandler(logger, reg))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{chatSubprotocol},
	})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return &client{t: t, ws: ws}
}

func (c *client) send(p payload.Payload) {
	c.t.Helper()
	data, err := payload.Encode(p)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(c.t, c.ws.Write(ctx, websocket.MessageText, data))
}

func (c *client) sendRaw(data string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(c.t, c.ws.Write(ctx, websocket.MessageText, []byte(data)))
}

func (c *client) read() payload.Payload {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.ws.Read(ctx)
	require.NoError(c.t, err)
	p, err := payload.Decode(data)
	require.NoError(c.t, err)
	return p
}

// expect reads until a payload of kind arrives.
func (c *client) expect(kind payload.Kind) payload.Payload {
	c.t.Helper()
	for range 20 {
		if p := c.read(); p.Kind() == kind {
			return p
		}
	}
	c.t.Fatalf("no %s payload received", kind)
	return nil
}

func (c *client) handshake(name string) int64 {
	c.t.Helper()
	c.send(&payload.Connect{ClientName: name})
	id := c.expect(payload.KindClientID).(*payload.ClientID)
	require.Equal(c.t, name, id.ClientName)
	return id.ClientID
}

func TestChatWS_HandshakeSyncAndBroadcast(t *testing.T) {
	srv, reg := newTestServer(t)

	alice := dial(t, srv)
	aliceID := alice.handshake("alice")

	bob := dial(t, srv)
	bobID := bob.handshake("bob")
	assert.NotEqual(t, aliceID, bobID)

	sync := bob.expect(payload.KindClientSync).(*payload.ClientSync)
	assert.Equal(t, aliceID, sync.ClientID)
	assert.Equal(t, "alice", sync.ClientName)
	assert.Equal(t, chat.LobbyName, sync.Room)

	joined := alice.expect(payload.KindRoomAction).(*payload.RoomAction)
	assert.True(t, joined.Joined)
	assert.Equal(t, "bob", joined.ClientName)

	alice.send(&payload.Message{Common: payload.Common{Message: "**hello**"}})
	for _, c := range []*client{alice, bob} {
		msg := c.expect(payload.KindMessage).(*payload.Message)
		assert.Equal(t, "<b>hello</b>", msg.Message)
		assert.Equal(t, aliceID, msg.SenderID)
	}
	assert.Equal(t, 2, reg.Lobby().Size())
}

func TestChatWS_InvalidPayloadKeepsConnection(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv)
	alice.handshake("alice")

	alice.sendRaw(`{"type":"teleport"}`)
	msg := alice.expect(payload.KindMessage).(*payload.Message)
	assert.Equal(t, "Invalid payload", msg.Message)
	assert.Equal(t, payload.SystemID, msg.SenderID)

	alice.send(&payload.RoomList{})
	rooms := alice.expect(payload.KindRoomResults).(*payload.RoomResults)
	assert.Equal(t, []string{chat.LobbyName}, rooms.Rooms)
}

func TestChatWS_DisconnectNotifiesRoom(t *testing.T) {
	srv, reg := newTestServer(t)

	alice := dial(t, srv)
	alice.handshake("alice")
	bob := dial(t, srv)
	bobID := bob.handshake("bob")
	alice.expect(payload.KindRoomAction)

	bob.send(&payload.Disconnect{})

	gone := alice.expect(payload.KindDisconnect).(*payload.Disconnect)
	assert.Equal(t, bobID, gone.ClientID)
	assert.Eventually(t, func() bool { return reg.Lobby().Size() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatWS_ClosingSocketLeavesRoom(t *testing.T) {
	srv, reg := newTestServer(t)

	alice := dial(t, srv)
	alice.handshake("alice")
	bob := dial(t, srv)
	bobID := bob.handshake("bob")
	alice.expect(payload.KindRoomAction)

	require.NoError(t, bob.ws.Close(websocket.StatusNormalClosure, "bye"))

	gone := alice.expect(payload.KindDisconnect).(*payload.Disconnect)
	assert.Equal(t, bobID, gone.ClientID)
	assert.Eventually(t, func() bool { return reg.Lobby().Size() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatWS_RejectsMissingSubprotocol(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer ws.CloseNow()

	_, _, err = ws.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, BadSubprotocolError, websocket.CloseStatus(err))
}

func TestChatWS_ShutdownClosesClients(t *testing.T) {
	srv, reg := newTestServer(t)

	alice := dial(t, srv)
	alice.handshake("alice")

	reg.Shutdown()

	alice.expect(payload.KindDisconnect)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := alice.ws.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestListRoomsHandler(t *testing.T) {
	srv, reg := newTestServer(t)
	require.True(t, reg.CreateRoom("den"))
	require.True(t, reg.CreateRoom("attic"))

	resp, err := http.Get(srv.URL + "/rooms?q=e")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body roomsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"den"}, body.Rooms)

	resp, err = http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
