/*
Package store defines the storage contract for users, rooms, membership, and
the per-room message log.

Two implementations exist: postgres (production) and memory (tests and
development without a database). Both guarantee that AddMember is idempotent
and that ListMessages returns newest-first with insertion order breaking
created-at ties.
*/
package store

import (
	"context"
	"errors"

	"parley/internal/app/model"
)

var (
	// ErrNotFound is returned on a lookup miss for a user or room.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique constraint (room name, username,
	// email) would be violated.
	ErrConflict = errors.New("record already exists")
)

// Store is the backing store for the chat service. Implementations must be
// safe for concurrent use.
type Store interface {
	// CreateUser persists a new user. ErrConflict if the username or email
	// is taken.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUserByID fetches a user by id. ErrNotFound on a miss.
	GetUserByID(ctx context.Context, id string) (model.User, error)

	// GetUserByUsername fetches a user by login name. ErrNotFound on a miss.
	GetUserByUsername(ctx context.Context, username string) (model.User, error)

	// CreateRoom persists a new room with empty membership. ErrConflict if
	// the name is taken.
	CreateRoom(ctx context.Context, r *model.Room) error

	// ListRooms returns all rooms with their membership. No ordering
	// guarantee.
	ListRooms(ctx context.Context) ([]model.Room, error)

	// GetRoom fetches a room and its membership by id. ErrNotFound on a miss.
	GetRoom(ctx context.Context, id string) (model.Room, error)

	// AddMember adds userID to the room's member set. Adding an existing
	// member is a no-op. ErrNotFound if the room or user is absent.
	AddMember(ctx context.Context, roomID, userID string) error

	// AppendMessage appends m to its room's log and fills in m.Seq.
	// ErrNotFound if the room or sender is absent.
	AppendMessage(ctx context.Context, m *model.Message) error

	// ListMessages returns up to limit messages for the room, newest first.
	// ErrNotFound if the room is absent.
	ListMessages(ctx context.Context, roomID string, limit int) ([]model.Message, error)

	// Close releases any underlying resources.
	Close()
}
