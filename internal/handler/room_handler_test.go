package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"parley/internal/app/model"
	"parley/internal/pkg/errs"
)

func createRoom(t *testing.T, srv *httptest.Server, token, name string) model.Room {
	t.Helper()

	status, env := doJSON(t, http.MethodPost, srv.URL+"/rooms/", token, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, 0, env.Code)

	var data struct {
		Room model.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Room.ID)

	return data.Room
}

func getRoom(t *testing.T, srv *httptest.Server, roomID string) model.Room {
	t.Helper()

	status, env := doJSON(t, http.MethodGet, srv.URL+"/rooms/"+roomID, "", nil)
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Room model.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	return data.Room
}

func listMessages(t *testing.T, srv *httptest.Server, roomID, query string) []model.Message {
	t.Helper()

	status, env := doJSON(t, http.MethodGet, srv.URL+"/rooms/"+roomID+"/messages"+query, "", nil)
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Messages []model.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	return data.Messages
}

func TestRooms_WriteEndpointsRequireIdentity(t *testing.T) {
	srv := newTestServer(t)

	endpoints := []struct {
		method string
		path   string
		body   map[string]string
	}{
		{http.MethodPost, "/rooms/", map[string]string{"name": "general"}},
		{http.MethodPost, "/rooms/" + uuid.New().String() + "/join", nil},
		{http.MethodPost, "/rooms/" + uuid.New().String() + "/messages", map[string]string{"text": "hi"}},
	}

	for _, e := range endpoints {
		status, env := doJSON(t, e.method, srv.URL+e.path, "", e.body)
		require.Equal(t, http.StatusUnauthorized, status, "%s %s", e.method, e.path)
		require.Equal(t, errs.ErrUnauthorized, env.Code)
	}
}

func TestRooms_GarbageTokenIsAnonymous(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	status, env := doJSON(t, http.MethodPost, srv.URL+"/rooms/", "not-a-jwt", map[string]string{"name": "general"})
	req.Equal(http.StatusUnauthorized, status)
	req.Equal(errs.ErrUnauthorized, env.Code)
}

func TestRoomLifecycle(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, userID := registerUser(t, srv, "alice")

	room := createRoom(t, srv, token, "general")
	req.Equal("general", room.Name)
	req.Empty(room.Members, "creating a room does not enroll the creator")

	// Duplicate names are rejected.
	status, env := doJSON(t, http.MethodPost, srv.URL+"/rooms/", token, map[string]string{"name": "general"})
	req.Equal(http.StatusBadRequest, status)
	req.Equal(errs.ErrRoomNameTaken, env.Code)

	status, env = doJSON(t, http.MethodGet, srv.URL+"/rooms/", "", nil)
	req.Equal(http.StatusOK, status)
	var listing struct {
		Rooms []model.Room `json:"rooms"`
	}
	req.NoError(json.Unmarshal(env.Data, &listing))
	req.Len(listing.Rooms, 1)
	req.Equal(room.ID, listing.Rooms[0].ID)

	// Join, then join again; membership stays a set.
	for i := 0; i < 2; i++ {
		status, env = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/join", token, nil)
		req.Equal(http.StatusOK, status)
		req.Equal(0, env.Code)
	}
	req.Equal([]string{userID}, getRoom(t, srv, room.ID).Members)
}

func TestRooms_Misses(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, _ := registerUser(t, srv, "alice")
	missing := uuid.New().String()

	status, env := doJSON(t, http.MethodGet, srv.URL+"/rooms/"+missing, "", nil)
	req.Equal(http.StatusNotFound, status)
	req.Equal(errs.ErrRoomNotFound, env.Code)

	status, env = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+missing+"/join", token, nil)
	req.Equal(http.StatusNotFound, status)
	req.Equal(errs.ErrRoomNotFound, env.Code)

	status, env = doJSON(t, http.MethodGet, srv.URL+"/rooms/"+missing+"/messages", "", nil)
	req.Equal(http.StatusNotFound, status)
	req.Equal(errs.ErrRoomNotFound, env.Code)

	status, env = doJSON(t, http.MethodPost, srv.URL+"/rooms/"+missing+"/messages", token, map[string]string{"text": "hi"})
	req.Equal(http.StatusNotFound, status)
	req.Equal(errs.ErrRoomNotFound, env.Code)
}

func TestPostMessage_EnrollsSenderAndAppendsLog(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	aliceToken, _ := registerUser(t, srv, "alice")
	bobToken, bobID := registerUser(t, srv, "bobby")

	room := createRoom(t, srv, aliceToken, "general")

	// Bob posts without joining first; posting enrolls him.
	status, env := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/messages", bobToken, map[string]string{"text": "hello"})
	req.Equal(http.StatusCreated, status)
	req.Equal(0, env.Code)

	var created struct {
		Message model.Message `json:"message"`
	}
	req.NoError(json.Unmarshal(env.Data, &created))
	req.Equal("hello", created.Message.Text)
	req.Equal(bobID, created.Message.SenderID)

	req.Equal([]string{bobID}, getRoom(t, srv, room.ID).Members)

	messages := listMessages(t, srv, room.ID, "")
	req.Len(messages, 1)
	req.Equal("hello", messages[0].Text)
	req.Equal(bobID, messages[0].SenderID)
}

func TestPostMessage_EmptyTextRejected(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, _ := registerUser(t, srv, "alice")
	room := createRoom(t, srv, token, "general")

	status, env := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/messages", token, map[string]string{"text": "   "})
	req.Equal(http.StatusBadRequest, status)
	req.Equal(errs.ErrMessageTextEmpty, env.Code)

	req.Empty(listMessages(t, srv, room.ID, ""))
}

func TestListMessages_OrderingAndLimit(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, _ := registerUser(t, srv, "alice")
	room := createRoom(t, srv, token, "general")

	for _, text := range []string{"first", "second", "third"} {
		status, _ := doJSON(t, http.MethodPost, srv.URL+"/rooms/"+room.ID+"/messages", token, map[string]string{"text": text})
		req.Equal(http.StatusCreated, status)
	}

	messages := listMessages(t, srv, room.ID, "")
	req.Len(messages, 3)
	req.Equal("third", messages[0].Text)
	req.Equal("first", messages[2].Text)

	limited := listMessages(t, srv, room.ID, "?limit=2")
	req.Len(limited, 2)
	req.Equal("third", limited[0].Text)

	status, env := doJSON(t, http.MethodGet, srv.URL+"/rooms/"+room.ID+"/messages?limit=abc", "", nil)
	req.Equal(http.StatusBadRequest, status)
	req.Equal(errs.ErrInvalidParams, env.Code)
}

func TestCreateRoom_RateLimited(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	token, _ := registerUser(t, srv, "alice")

	var status int
	for i := 0; i < CreateRoomBurst+1; i++ {
		status, _ = doJSON(t, http.MethodPost, srv.URL+"/rooms/", token, map[string]string{"name": "room-" + string(rune('a'+i))})
	}

	req.Equal(http.StatusTooManyRequests, status)
}
