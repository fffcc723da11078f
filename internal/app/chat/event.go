/*
Package chat contains the core of the system: room and membership
operations, the append-only message log, and real-time fan-out to
connected sessions.
*/
package chat

import (
	"encoding/json"

	"parley/internal/app/model"
)

// EventType names the envelope types exchanged over the real-time channel.
type EventType string

const (
	// EventNewMessage is the server broadcast carrying one persisted message.
	EventNewMessage EventType = "new_message"

	// EventSendMessage is the inbound client request to post a message.
	EventSendMessage EventType = "send_message"

	// EventSubscribe is the inbound client request to receive a room's
	// broadcasts on this session.
	EventSubscribe EventType = "subscribe"

	// EventError is sent to a single session when its inbound event was
	// rejected.
	EventError EventType = "error"
)

// Event is the wire envelope for the real-time channel.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// newEvent marshals payload into an Event envelope.
func newEvent(eventType EventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// MessagePayload is the body of a new_message broadcast.
type MessagePayload struct {
	MessageID string          `json:"message_id"`
	Text      string          `json:"text"`
	SenderID  string          `json:"sender_id"`
	RoomID    string          `json:"room_id"`
	CreatedAt model.Timestamp `json:"created_at"`
}

// NewMessageEvent wraps a persisted message for broadcast.
func NewMessageEvent(m model.Message) (Event, error) {
	return newEvent(EventNewMessage, MessagePayload{
		MessageID: m.ID,
		Text:      m.Text,
		SenderID:  m.SenderID,
		RoomID:    m.RoomID,
		CreatedAt: m.CreatedAt,
	})
}

// SendMessagePayload is the body of an inbound send_message event.
type SendMessagePayload struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

// SubscribePayload is the body of an inbound subscribe event.
type SubscribePayload struct {
	RoomID string `json:"room_id"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
