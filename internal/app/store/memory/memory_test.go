package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

func seedUser(t *testing.T, s *Store, username string) model.User {
	t.Helper()

	u := model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		CreatedAt:    model.Now(),
	}
	require.NoError(t, s.CreateUser(context.Background(), &u))

	return u
}

func seedRoom(t *testing.T, s *Store, name string) model.Room {
	t.Helper()

	r := model.Room{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: model.Now(),
	}
	require.NoError(t, s.CreateRoom(context.Background(), &r))

	return r
}

func TestCreateUser_UniqueUsernameAndEmail(t *testing.T) {
	req := require.New(t)
	s := New()
	ctx := context.Background()

	seedUser(t, s, "alice")

	sameName := model.User{ID: uuid.New().String(), Username: "alice", Email: "other@example.com"}
	req.ErrorIs(s.CreateUser(ctx, &sameName), store.ErrConflict)

	sameEmail := model.User{ID: uuid.New().String(), Username: "bob", Email: "alice@example.com"}
	req.ErrorIs(s.CreateUser(ctx, &sameEmail), store.ErrConflict)
}

func TestGetUser_Misses(t *testing.T) {
	req := require.New(t)
	s := New()
	ctx := context.Background()

	_, err := s.GetUserByID(ctx, uuid.New().String())
	req.ErrorIs(err, store.ErrNotFound)

	_, err = s.GetUserByUsername(ctx, "nobody")
	req.ErrorIs(err, store.ErrNotFound)
}

func TestCreateRoom_DuplicateName(t *testing.T) {
	req := require.New(t)
	s := New()
	ctx := context.Background()

	seedRoom(t, s, "general")

	dup := model.Room{ID: uuid.New().String(), Name: "general"}
	req.ErrorIs(s.CreateRoom(ctx, &dup), store.ErrConflict)

	rooms, err := s.ListRooms(ctx)
	req.NoError(err)
	req.Len(rooms, 1)
	req.Equal("general", rooms[0].Name)
}

func TestAddMember_IdempotentAndChecked(t *testing.T) {
	req := require.New(t)
	s := New()
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "general")

	req.NoError(s.AddMember(ctx, room.ID, alice.ID))
	req.NoError(s.AddMember(ctx, room.ID, alice.ID))

	got, err := s.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.Equal([]string{alice.ID}, got.Members)

	req.ErrorIs(s.AddMember(ctx, uuid.New().String(), alice.ID), store.ErrNotFound)
	req.ErrorIs(s.AddMember(ctx, room.ID, uuid.New().String()), store.ErrNotFound)
}

func TestAppendMessage_RequiresRoomAndSender(t *testing.T) {
	req := require.New(t)
	s := New()
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "general")

	missingRoom := model.Message{ID: uuid.New().String(), RoomID: uuid.New().String(), SenderID: alice.ID, Text: "hi"}
	req.ErrorIs(s.AppendMessage(ctx, &missingRoom), store.ErrNotFound)

	missingSender := model.Message{ID: uuid.New().String(), RoomID: room.ID, SenderID: uuid.New().String(), Text: "hi"}
	req.ErrorIs(s.AppendMessage(ctx, &missingSender), store.ErrNotFound)
}

func TestListMessages_NewestFirstWithInsertionOrderTies(t *testing.T) {
	req := require.New(t)
	s := New()
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "general")

	// All three share one second-resolution timestamp; insertion order must
	// decide.
	stamp := model.Timestamp(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	for _, text := range []string{"first", "second", "third"} {
		m := model.Message{
			ID:        uuid.New().String(),
			RoomID:    room.ID,
			SenderID:  alice.ID,
			Text:      text,
			CreatedAt: stamp,
		}
		req.NoError(s.AppendMessage(ctx, &m))
	}

	messages, err := s.ListMessages(ctx, room.ID, 10)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("third", messages[0].Text)
	req.Equal("second", messages[1].Text)
	req.Equal("first", messages[2].Text)

	limited, err := s.ListMessages(ctx, room.ID, 2)
	req.NoError(err)
	req.Len(limited, 2)
	req.Equal("third", limited[0].Text)

	_, err = s.ListMessages(ctx, uuid.New().String(), 10)
	req.ErrorIs(err, store.ErrNotFound)
}

func TestMessagesAssignedIncreasingSeq(t *testing.T) {
	req := require.New(t)
	s := New()
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "general")

	var last int64
	for i := 0; i < 5; i++ {
		m := model.Message{ID: uuid.New().String(), RoomID: room.ID, SenderID: alice.ID, Text: "m", CreatedAt: model.Now()}
		req.NoError(s.AppendMessage(ctx, &m))
		req.Greater(m.Seq, last)
		last = m.Seq
	}
}
