/*
Package memory implements the store contract with in-process maps.

It backs the test suite and development runs without a database. Membership
and the message log of each room sit behind one per-room mutex, so appending
a message and growing the member set compose atomically while different
rooms stay fully independent.
*/
package memory

import (
	"context"
	"sync"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

type roomState struct {
	// mu serializes every membership and message-log mutation for one room.
	mu sync.Mutex

	id        string
	name      string
	createdAt model.Timestamp

	members     map[string]struct{}
	memberOrder []string

	// messages is kept in insertion order; nextSeq assigns the tiebreaker.
	messages []model.Message
	nextSeq  int64
}

func (rs *roomState) snapshot() model.Room {
	members := make([]string, len(rs.memberOrder))
	copy(members, rs.memberOrder)

	return model.Room{
		ID:        rs.id,
		Name:      rs.name,
		Members:   members,
		CreatedAt: rs.createdAt,
	}
}

// Store is the in-memory implementation of store.Store.
type Store struct {
	// mu guards the registries themselves; room contents are guarded by the
	// per-room mutex.
	mu sync.RWMutex

	users        map[string]model.User
	usersByName  map[string]string
	usersByEmail map[string]string

	rooms       map[string]*roomState
	roomsByName map[string]string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[string]model.User),
		usersByName:  make(map[string]string),
		usersByEmail: make(map[string]string),
		rooms:        make(map[string]*roomState),
		roomsByName:  make(map[string]string),
	}
}

// CreateUser implements store.Store.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByName[u.Username]; taken {
		return store.ErrConflict
	}
	if _, taken := s.usersByEmail[u.Email]; taken {
		return store.ErrConflict
	}

	s.users[u.ID] = *u
	s.usersByName[u.Username] = u.ID
	s.usersByEmail[u.Email] = u.ID

	return nil
}

// GetUserByID implements store.Store.
func (s *Store) GetUserByID(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

// GetUserByUsername implements store.Store.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[username]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return s.users[id], nil
}

// CreateRoom implements store.Store.
func (s *Store) CreateRoom(ctx context.Context, r *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.roomsByName[r.Name]; taken {
		return store.ErrConflict
	}

	s.rooms[r.ID] = &roomState{
		id:        r.ID,
		name:      r.Name,
		createdAt: r.CreatedAt,
		members:   make(map[string]struct{}),
	}
	s.roomsByName[r.Name] = r.ID

	return nil
}

// ListRooms implements store.Store.
func (s *Store) ListRooms(ctx context.Context) ([]model.Room, error) {
	s.mu.RLock()
	states := make([]*roomState, 0, len(s.rooms))
	for _, rs := range s.rooms {
		states = append(states, rs)
	}
	s.mu.RUnlock()

	rooms := make([]model.Room, 0, len(states))
	for _, rs := range states {
		rs.mu.Lock()
		rooms = append(rooms, rs.snapshot())
		rs.mu.Unlock()
	}

	return rooms, nil
}

// GetRoom implements store.Store.
func (s *Store) GetRoom(ctx context.Context, id string) (model.Room, error) {
	rs, err := s.roomByID(id)
	if err != nil {
		return model.Room{}, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	return rs.snapshot(), nil
}

// AddMember implements store.Store.
func (s *Store) AddMember(ctx context.Context, roomID, userID string) error {
	s.mu.RLock()
	_, userExists := s.users[userID]
	s.mu.RUnlock()

	if !userExists {
		return store.ErrNotFound
	}

	rs, err := s.roomByID(roomID)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, already := rs.members[userID]; already {
		return nil
	}

	rs.members[userID] = struct{}{}
	rs.memberOrder = append(rs.memberOrder, userID)

	return nil
}

// AppendMessage implements store.Store.
func (s *Store) AppendMessage(ctx context.Context, m *model.Message) error {
	s.mu.RLock()
	_, senderExists := s.users[m.SenderID]
	s.mu.RUnlock()

	if !senderExists {
		return store.ErrNotFound
	}

	rs, err := s.roomByID(m.RoomID)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.nextSeq++
	m.Seq = rs.nextSeq
	rs.messages = append(rs.messages, *m)

	return nil
}

// ListMessages implements store.Store.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	rs, err := s.roomByID(roomID)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if limit > len(rs.messages) {
		limit = len(rs.messages)
	}
	if limit < 0 {
		limit = 0
	}

	// Walk the insertion-ordered log backwards so the latest append wins
	// created-at ties.
	out := make([]model.Message, 0, limit)
	for i := len(rs.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rs.messages[i])
	}

	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() {}

func (s *Store) roomByID(id string) (*roomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rs, nil
}
