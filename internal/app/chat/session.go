package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parley/internal/app/model"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
)

const (
	// timeout for a single write to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time to wait for a Pong from the client.
	pongWait = 60 * time.Second

	// frequency of server Ping messages.
	pingPeriod = (pongWait * 9) / 10

	// maximum size in bytes of an inbound frame.
	maxFrameSize = 8192

	// sendQueueSize bounds the per-session delivery queue. A full queue
	// drops the event for that session instead of blocking the publisher.
	sendQueueSize = 256
)

// Session is one connected real-time client. A session may be anonymous;
// only authenticated sessions can publish, but any subscribed session
// receives broadcasts.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	svc  *Service

	// user is nil for anonymous sessions.
	user *model.User

	send chan []byte

	// mu guards closed and the topics set.
	mu     sync.Mutex
	closed bool
	topics map[*topic]struct{}

	logger zerolog.Logger
}

// NewSession wraps an upgraded WebSocket connection. user may be nil.
func NewSession(hub *Hub, conn *websocket.Conn, svc *Service, user *model.User) *Session {
	logger := logx.Logger().With().Str("component", "session").Logger()
	if user != nil {
		logger = logger.With().Str("user_id", user.ID).Logger()
	}

	return &Session{
		hub:    hub,
		conn:   conn,
		svc:    svc,
		user:   user,
		send:   make(chan []byte, sendQueueSize),
		topics: make(map[*topic]struct{}),
		logger: logger,
	}
}

// UserID returns the authenticated user id, or "" for anonymous sessions.
func (s *Session) UserID() string {
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// ReadPump consumes frames from the connection until it closes, then
// detaches the session from the hub. Run on the connection's goroutine.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Detach(s)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("connection close after read loop")
		}
	}()

	s.conn.SetReadLimit(maxFrameSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("unexpected connection close")
			}
			break
		}

		s.handleInbound(frame)
	}
}

// handleInbound dispatches one raw inbound frame.
func (s *Session) handleInbound(frame []byte) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("session sent invalid JSON")
		return
	}

	switch ev.Type {
	case EventSendMessage:
		s.handleSendMessage(ev.Payload)

	case EventSubscribe:
		s.handleSubscribe(ev.Payload)

	default:
		s.logger.Warn().Str("event_type", string(ev.Type)).Msg("session sent unsupported event type")
	}
}

// handleSendMessage routes an inbound message through the same persistence
// path as the HTTP endpoint, so real-time messages never vanish from
// history. Events from anonymous sessions are dropped without a reply.
func (s *Session) handleSendMessage(payload json.RawMessage) {
	if s.user == nil {
		s.logger.Debug().Msg("dropping send_message from anonymous session")
		return
	}

	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn().Err(err).Msg("session sent invalid send_message payload")
		return
	}

	if _, err := s.svc.PostMessage(context.Background(), p.RoomID, s.user.ID, p.Text); err != nil {
		s.sendError(err)
	}
}

// handleSubscribe attaches this session to a room's fan-out channel. Only
// members of the room may subscribe.
func (s *Session) handleSubscribe(payload json.RawMessage) {
	if s.user == nil {
		s.logger.Debug().Msg("dropping subscribe from anonymous session")
		return
	}

	var p SubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn().Err(err).Msg("session sent invalid subscribe payload")
		return
	}

	room, err := s.svc.GetRoom(context.Background(), p.RoomID)
	if err != nil {
		s.sendError(err)
		return
	}

	if !room.HasMember(s.user.ID) {
		s.sendError(errs.NewError(errs.ErrUnauthorized))
		return
	}

	s.hub.Subscribe(s, room.ID)
}

// WritePump drains the send queue onto the connection and keeps the
// heartbeat alive. Run on its own goroutine.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("connection close after write loop")
		}
	}()

	for {
		select {
		case message, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					s.logger.Debug().Err(err).Msg("error writing close message")
				}
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Error().Err(err).Msg("error writing message")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("failed to set write deadline on ping")
				return
			}

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Error().Err(err).Msg("error writing ping")
				return
			}
		}
	}
}

// enqueue offers one encoded event to the session without blocking.
// It reports false when the session is closed or its queue is full.
func (s *Session) enqueue(message []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- message:
		return true
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("session send queue full, dropping event")
		return false
	}
}

// sendError delivers an error event to this session only.
func (s *Session) sendError(customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	ev, err := newEvent(EventError, ErrorPayload{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build error event")
		return
	}

	encoded, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode error event")
		return
	}

	s.enqueue(encoded)
}

// close marks the session closed and shuts its send queue. Safe to call once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.send)
}

// addTopic records a topic this session is subscribed to.
func (s *Session) addTopic(t *topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[t] = struct{}{}
}

// removeTopic forgets a topic after unsubscribing.
func (s *Session) removeTopic(t *topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, t)
}

// currentTopics snapshots the topics this session is subscribed to.
func (s *Session) currentTopics() []*topic {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}
