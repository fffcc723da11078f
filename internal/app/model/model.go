/*
Package model defines the persistent records of the chat system: users,
rooms with their membership, and messages.

Identity is immutable after creation, room membership only grows, and
messages are append-only within their room.
*/
package model

import (
	"encoding/json"
	"time"
)

// TimeLayout is the wire format for timestamps. Second resolution means
// timestamps can collide; ordering ties are broken by insertion order.
const TimeLayout = "2006-01-02 15:04:05"

// Timestamp is a time.Time that marshals as TimeLayout in UTC.
type Timestamp time.Time

// Now returns the current UTC time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UTC())
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(TimeLayout))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return err
	}

	*t = Timestamp(parsed)
	return nil
}

// User is a registered account. The credential hash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    Timestamp `json:"-"`
}

// Room groups users and messages under a unique name. Members holds the ids
// of every user who joined or posted; there is no leave operation.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"users"`
	CreatedAt Timestamp `json:"-"`
}

// HasMember reports whether userID is in the room's member set.
func (r Room) HasMember(userID string) bool {
	for _, id := range r.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is one immutable chat entry. Seq is the store-assigned insertion
// sequence used to break created-at ties; it is not exposed to clients.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt Timestamp `json:"created_at"`
	Seq       int64     `json:"-"`
}
