package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parley/internal/app/model"
	"parley/internal/app/store"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
)

const (
	// MaxTextBytes bounds the size of a message text.
	MaxTextBytes = 5000

	// DefaultHistoryLimit is the recent-window size returned when the
	// caller does not ask for less.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps how many messages one history query may return.
	MaxHistoryLimit = 50
)

// Broadcaster is the fan-out capability the service publishes into. The Hub
// implements it; tests substitute a recorder.
type Broadcaster interface {
	// Publish delivers ev to every session subscribed to the room.
	Publish(roomID string, ev Event)

	// SubscribeUser subscribes every open session of userID to the room.
	SubscribeUser(roomID, userID string)
}

// Service implements the room, membership, and message-log operations. All
// mutations on one room are serialized through a per-room lock so that
// appending a message and growing the member set compose atomically;
// operations on different rooms never contend.
type Service struct {
	store store.Store
	hub   Broadcaster

	// roomLocks maps room id to its *sync.Mutex.
	roomLocks sync.Map

	logger zerolog.Logger
}

// NewService wires the service to its store and fan-out channel.
func NewService(st store.Store, hub Broadcaster) *Service {
	return &Service{
		store:  st,
		hub:    hub,
		logger: logx.Logger().With().Str("component", "chat").Logger(),
	}
}

func (s *Service) roomLock(roomID string) *sync.Mutex {
	lock, _ := s.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// CreateRoom creates a room with empty membership. The name must be unique.
func (s *Service) CreateRoom(ctx context.Context, name string) (model.Room, *errs.CustomError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Room{}, errs.NewError(errs.ErrInvalidParams)
	}

	room := model.Room{
		ID:        uuid.New().String(),
		Name:      name,
		Members:   []string{},
		CreatedAt: model.Now(),
	}

	if err := s.store.CreateRoom(ctx, &room); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return model.Room{}, errs.NewError(errs.ErrRoomNameTaken)
		}
		logx.Error(err, "failed to create room", "name", name)
		return model.Room{}, errs.NewError(errs.ErrUnknown, err)
	}

	s.logger.Info().Str("room_id", room.ID).Str("name", room.Name).Msg("room created")

	return room, nil
}

// ListRooms returns all rooms with their membership.
func (s *Service) ListRooms(ctx context.Context) ([]model.Room, *errs.CustomError) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		logx.Error(err, "failed to list rooms")
		return nil, errs.NewError(errs.ErrUnknown, err)
	}

	if rooms == nil {
		rooms = []model.Room{}
	}
	return rooms, nil
}

// GetRoom returns one room with its membership.
func (s *Service) GetRoom(ctx context.Context, roomID string) (model.Room, *errs.CustomError) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Room{}, errs.NewError(errs.ErrRoomNotFound)
		}
		logx.Error(err, "failed to fetch room", "room_id", roomID)
		return model.Room{}, errs.NewError(errs.ErrUnknown, err)
	}

	return room, nil
}

// JoinRoom adds the user to the room's member set and subscribes their open
// sessions to the room's fan-out channel. Joining a room the user already
// belongs to succeeds without modification; membership never shrinks.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string) *errs.CustomError {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.NewError(errs.ErrUserNotFound)
		}
		logx.Error(err, "failed to fetch user", "user_id", userID)
		return errs.NewError(errs.ErrUnknown, err)
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	customErr := s.ensureMembership(ctx, roomID, userID)
	lock.Unlock()

	if customErr != nil {
		return customErr
	}

	s.hub.SubscribeUser(roomID, userID)

	return nil
}

// PostMessage validates and appends a message to the room's log, makes the
// sender a member if they were not one already, and fans the message out to
// every subscribed session (the sender's own included).
func (s *Service) PostMessage(ctx context.Context, roomID, senderID, text string) (model.Message, *errs.CustomError) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, errs.NewError(errs.ErrMessageTextEmpty)
	}
	if len(text) > MaxTextBytes {
		return model.Message{}, errs.NewError(errs.ErrMessageTooLong)
	}

	msg := model.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: model.Now(),
	}

	lock := s.roomLock(roomID)
	lock.Lock()

	if err := s.store.AppendMessage(ctx, &msg); err != nil {
		lock.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			return model.Message{}, errs.NewError(errs.ErrRoomNotFound)
		}
		logx.Error(err, "failed to append message", "room_id", roomID)
		return model.Message{}, errs.NewError(errs.ErrUnknown, err)
	}

	customErr := s.ensureMembership(ctx, roomID, senderID)
	lock.Unlock()

	if customErr != nil {
		return model.Message{}, customErr
	}

	// Posting implies membership, so the sender's sessions start receiving
	// the room's events from here on.
	s.hub.SubscribeUser(roomID, senderID)

	ev, err := NewMessageEvent(msg)
	if err != nil {
		logx.Error(err, "failed to build new_message event", "message_id", msg.ID)
	} else {
		s.hub.Publish(roomID, ev)
	}

	return msg, nil
}

// ensureMembership adds userID to the room's member set if absent. It is
// the explicit form of the join-on-post side effect: PostMessage and
// JoinRoom both funnel through it. Callers hold the room lock.
func (s *Service) ensureMembership(ctx context.Context, roomID, userID string) *errs.CustomError {
	if err := s.store.AddMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.NewError(errs.ErrRoomNotFound)
		}
		logx.Error(err, "failed to add member", "room_id", roomID, "user_id", userID)
		return errs.NewError(errs.ErrUnknown, err)
	}
	return nil
}

// ListMessages returns the room's most recent messages, newest first.
// limit is clamped to 1..MaxHistoryLimit; zero or negative means the
// default window.
func (s *Service) ListMessages(ctx context.Context, roomID string, limit int) ([]model.Message, *errs.CustomError) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	messages, err := s.store.ListMessages(ctx, roomID, limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrRoomNotFound)
		}
		logx.Error(err, "failed to list messages", "room_id", roomID)
		return nil, errs.NewError(errs.ErrUnknown, err)
	}

	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}
