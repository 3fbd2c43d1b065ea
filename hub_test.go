package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/bankbox/ledger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Code      string          `json:"code"`
	State     json.RawMessage `json:"state"`
	Data      json.RawMessage `json:"data"`
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	// An unknown game answers with an error once the hub knows the client,
	// which makes the registration visible to the test.
	send(t, conn, ClientMessage{Type: "join_session", SessionID: "lobby-check"})
	msg := receive(t, conn)
	require.Equal(t, "error", msg.Type)
	require.Equal(t, "session_not_found", msg.Code)

	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
}

func receive(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))

	var msg wireMessage
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "unexpected %s message", msg.Type)
}

func TestSubscribersSeeTransfers(t *testing.T) {
	ts := newTestServer(t, testConfig())

	watcher := ts.dial(t)
	lobby := ts.dial(t)

	g := ts.setup(t)

	for _, conn := range []*websocket.Conn{watcher, lobby} {
		msg := receive(t, conn)
		assert.Equal(t, string(ledger.EventSessionCreated), msg.Type)
		assert.Equal(t, g.game.ID, msg.SessionID)
	}

	send(t, watcher, ClientMessage{Type: "join_session", SessionID: g.game.ID})

	msg := receive(t, watcher)
	require.Equal(t, "subscribed", msg.Type)

	var state ledger.SessionState
	require.NoError(t, json.Unmarshal(msg.State, &state))
	assert.Equal(t, g.game.ID, state.Session.ID)
	assert.Len(t, state.Accounts, 3)
	assert.Empty(t, state.Transfers)

	var applied ledger.TransferResult
	ts.call(t, "POST", "/api/transactions", map[string]any{
		"game_id":        g.game.ID,
		"from_player_id": g.bank.ID,
		"to_player_id":   g.alice.ID,
		"amount":         200,
	}, http.StatusCreated, &applied)

	msg = receive(t, watcher)
	require.Equal(t, string(ledger.EventTransferApplied), msg.Type)
	assert.Equal(t, g.game.ID, msg.SessionID)

	var got ledger.TransferResult
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, applied.Transfer.ID, got.Transfer.ID)
	assert.True(t, got.To.Balance.Equal(balance(1700)))

	expectSilence(t, lobby)

	ts.call(t, "PUT", "/api/games/end", map[string]any{"player_id": g.bank.ID}, http.StatusOK, nil)

	msg = receive(t, watcher)
	assert.Equal(t, string(ledger.EventSessionEnded), msg.Type)

	ts.call(t, "PUT", "/api/games/end", map[string]any{"player_id": g.bank.ID}, http.StatusOK, nil)
	expectSilence(t, watcher)
}

func TestLeaveSession(t *testing.T) {
	ts := newTestServer(t, testConfig())

	conn := ts.dial(t)
	g := ts.setup(t)
	require.Equal(t, string(ledger.EventSessionCreated), receive(t, conn).Type)

	send(t, conn, ClientMessage{Type: "join_session", SessionID: g.game.ID})
	require.Equal(t, "subscribed", receive(t, conn).Type)

	send(t, conn, ClientMessage{Type: "leave_session", SessionID: g.game.ID})

	// Round-trip through the hub so the leave is processed.
	send(t, conn, ClientMessage{Type: "join_session", SessionID: "missing"})
	require.Equal(t, "error", receive(t, conn).Type)

	ts.call(t, "POST", "/api/players", map[string]any{"game_id": g.game.ID, "name": "Carol"}, http.StatusCreated, nil)
	expectSilence(t, conn)
}

func TestMalformedClientMessage(t *testing.T) {
	ts := newTestServer(t, testConfig())
	conn := ts.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("join please")))

	msg := receive(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "invalid_message", msg.Code)
}

func TestHubRooms(t *testing.T) {
	hub := newHub(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-hub.done
	}()
	go hub.run(ctx)

	c := &Client{send: make(chan any, 8), sessions: make(map[string]bool)}

	require.True(t, submit(hub, hub.register, c))
	require.True(t, submit(hub, hub.subs, subscription{client: c, sessionID: "a", join: true}))

	hub.Publish(ledger.Event{Type: ledger.EventParticipantJoined, SessionID: "b"})
	hub.Publish(ledger.Event{Type: ledger.EventParticipantJoined, SessionID: "a"})
	hub.Publish(ledger.Event{Type: ledger.EventSessionCreated, SessionID: "c"})

	for _, want := range []string{"a", "c"} {
		select {
		case msg := <-c.send:
			assert.Equal(t, want, msg.(ledger.Event).SessionID)
		case <-time.After(5 * time.Second):
			t.Fatalf("no event for session %s", want)
		}
	}

	require.True(t, submit(hub, hub.unreg, c))

	select {
	case _, ok := <-c.send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(5 * time.Second):
		t.Fatal("client was not released")
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.eventBuffer = 1
	hub := newHub(cfg)

	hub.Publish(ledger.Event{Type: ledger.EventSessionCreated, SessionID: "a"})
	hub.Publish(ledger.Event{Type: ledger.EventSessionCreated, SessionID: "b"})

	require.Len(t, hub.events, 1)
	assert.Equal(t, "a", (<-hub.events).SessionID)
}

func TestSubmitAfterStop(t *testing.T) {
	hub := newHub(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.run(ctx)
	cancel()
	<-hub.done

	assert.False(t, submit(hub, hub.register, &Client{}))
}
