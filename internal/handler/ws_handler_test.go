package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"parley/internal/app/chat"
	"parley/internal/pkg/errs"
)

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		wsURL += "?token=" + token
	}

	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if res != nil {
		res.Body.Close()
	}

	t.Cleanup(func() { conn.Close() })

	// The handshake completes before the server attaches the session; give
	// it a moment so a follow-up join sees this session.
	time.Sleep(50 * time.Millisecond)

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) chat.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev chat.Event
	require.NoError(t, json.Unmarshal(frame, &ev))

	return ev
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType chat.EventType, payload any) {
	t.Helper()

	encoded, err := json.Marshal(payload)
	require.NoError(t, err)

	frame, err := json.Marshal(chat.Event{Type: eventType, Payload: encoded})
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestWebSocket_HTTPJoinSubscribesOpenSession(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, userID := registerUser(t, srv, "alice")
	room := createRoom(t, srv, token, "general")

	// Connect first, join second; the join must reach the open session.
	conn := dialWS(t, srv, token)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/join", token, nil)
	req.Equal(http.StatusOK, status)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/messages", token, map[string]string{"text": "over http"})
	req.Equal(http.StatusCreated, status)

	ev := readEvent(t, conn)
	req.Equal(chat.EventNewMessage, ev.Type)

	var payload chat.MessagePayload
	req.NoError(json.Unmarshal(ev.Payload, &payload))
	req.Equal("over http", payload.Text)
	req.Equal(userID, payload.SenderID)
	req.Equal(room.ID, payload.RoomID)
}

func TestWebSocket_SendMessagePersistsAndEchoesToSender(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, userID := registerUser(t, srv, "alice")
	room := createRoom(t, srv, token, "general")

	conn := dialWS(t, srv, token)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/join", token, nil)
	req.Equal(http.StatusOK, status)

	sendEvent(t, conn, chat.EventSendMessage, chat.SendMessagePayload{
		RoomID: room.ID,
		Text:   "over the socket",
	})

	// The sender's own session receives the broadcast.
	ev := readEvent(t, conn)
	req.Equal(chat.EventNewMessage, ev.Type)

	var payload chat.MessagePayload
	req.NoError(json.Unmarshal(ev.Payload, &payload))
	req.Equal("over the socket", payload.Text)
	req.Equal(userID, payload.SenderID)

	// And the message landed in history, same as an HTTP post.
	messages := listMessages(t, srv, room.ID, "")
	req.Len(messages, 1)
	req.Equal("over the socket", messages[0].Text)
	req.Equal(userID, messages[0].SenderID)
}

func TestWebSocket_SubscribeDeliversToMembers(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	bobToken, bobID := registerUser(t, srv, "bobby")
	room := createRoom(t, srv, aliceToken, "general")

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/join", bobToken, nil)
	req.Equal(http.StatusOK, status)

	// Bob reconnects after joining and subscribes explicitly. Subscribe has
	// no ack, so give the read loop a moment before publishing.
	conn := dialWS(t, srv, bobToken)
	sendEvent(t, conn, chat.EventSubscribe, chat.SubscribePayload{RoomID: room.ID})
	time.Sleep(300 * time.Millisecond)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/messages", bobToken, map[string]string{"text": "anyone here"})
	req.Equal(http.StatusCreated, status)

	ev := readEvent(t, conn)
	req.Equal(chat.EventNewMessage, ev.Type)

	var payload chat.MessagePayload
	req.NoError(json.Unmarshal(ev.Payload, &payload))
	req.Equal("anyone here", payload.Text)
	req.Equal(bobID, payload.SenderID)
}

func TestWebSocket_SubscribeRequiresMembership(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	bobToken, _ := registerUser(t, srv, "bobby")
	room := createRoom(t, srv, aliceToken, "general")

	conn := dialWS(t, srv, bobToken)
	sendEvent(t, conn, chat.EventSubscribe, chat.SubscribePayload{RoomID: room.ID})

	ev := readEvent(t, conn)
	req.Equal(chat.EventError, ev.Type)

	var payload chat.ErrorPayload
	req.NoError(json.Unmarshal(ev.Payload, &payload))
	req.Equal(errs.ErrUnauthorized, payload.Code)
}

func TestWebSocket_AnonymousIngressSilentlyDropped(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, _ := registerUser(t, srv, "alice")
	room := createRoom(t, srv, token, "general")

	conn := dialWS(t, srv, "")
	sendEvent(t, conn, chat.EventSendMessage, chat.SendMessagePayload{
		RoomID: room.ID,
		Text:   "should vanish",
	})

	// No error frame comes back and nothing lands in the log.
	req.NoError(conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	_, _, err := conn.ReadMessage()
	req.Error(err)

	req.Empty(listMessages(t, srv, room.ID, ""))
}

func TestWebSocket_InvalidTokenFallsBackToAnonymous(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, _ := registerUser(t, srv, "alice")
	room := createRoom(t, srv, token, "general")

	// The upgrade still succeeds; the session is just anonymous.
	conn := dialWS(t, srv, "garbage-token")
	sendEvent(t, conn, chat.EventSendMessage, chat.SendMessagePayload{
		RoomID: room.ID,
		Text:   "should vanish",
	})

	time.Sleep(100 * time.Millisecond)
	req.Empty(listMessages(t, srv, room.ID, ""))
}
