package chat

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"parley/internal/pkg/logx"
)

// Hub coordinates all real-time state: attached sessions, the sessions of
// each authenticated user, and the per-room fan-out topics.
type Hub struct {
	mu sync.RWMutex

	topics map[string]*topic

	// sessions holds every attached session; byUser indexes the sessions of
	// authenticated users so joinRoom can subscribe all of them at once.
	sessions map[*Session]struct{}
	byUser   map[string]map[*Session]struct{}

	// cleanup receives topics whose run loop has finished.
	cleanup     chan *topic
	cleanupDone chan struct{}

	// wg tracks running topic loops for shutdown.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewHub builds a Hub and starts its cleanup loop.
func NewHub() *Hub {
	h := &Hub{
		topics:      make(map[string]*topic),
		sessions:    make(map[*Session]struct{}),
		byUser:      make(map[string]map[*Session]struct{}),
		cleanup:     make(chan *topic, 16),
		cleanupDone: make(chan struct{}),
		logger:      logx.Logger().With().Str("component", "hub").Logger(),
	}

	go h.runCleanupLoop()

	return h
}

func (h *Hub) runCleanupLoop() {
	defer close(h.cleanupDone)

	for t := range h.cleanup {
		h.deleteTopic(t)
	}
}

// deleteTopic removes t from the topic map unless a replacement topic for
// the same room was already created.
func (h *Hub) deleteTopic(t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.topics[t.roomID]; ok && current == t {
		delete(h.topics, t.roomID)
		h.logger.Info().Str("room_id", t.roomID).Msg("topic removed")
	}
}

// Attach registers a newly connected session.
func (h *Hub) Attach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s] = struct{}{}

	if uid := s.UserID(); uid != "" {
		if h.byUser[uid] == nil {
			h.byUser[uid] = make(map[*Session]struct{})
		}
		h.byUser[uid][s] = struct{}{}
	}

	h.logger.Info().Str("user_id", s.UserID()).Int("total_sessions", len(h.sessions)).Msg("session attached")
}

// Detach removes a disconnected session from the hub and every topic it was
// subscribed to, then closes its send queue. A detached session silently
// stops receiving events.
func (h *Hub) Detach(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	if uid := s.UserID(); uid != "" {
		delete(h.byUser[uid], s)
		if len(h.byUser[uid]) == 0 {
			delete(h.byUser, uid)
		}
	}
	total := len(h.sessions)
	h.mu.Unlock()

	for _, t := range s.currentTopics() {
		select {
		case t.unsubscribe <- s:
		case <-t.stopped:
		}
	}

	s.close()

	h.logger.Info().Str("user_id", s.UserID()).Int("total_sessions", total).Msg("session detached")
}

// Subscribe adds s to the room's delivery set, creating the topic on first
// use. Only effective while the session's connection stays open.
func (h *Hub) Subscribe(s *Session, roomID string) {
	for {
		t := h.getOrCreateTopic(roomID)

		select {
		case t.subscribe <- s:
			return
		case <-t.stopped:
			// The topic idled out between lookup and subscribe; retry with
			// a fresh one.
		}
	}
}

// SubscribeUser subscribes every open session of userID to the room.
func (h *Hub) SubscribeUser(roomID, userID string) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.byUser[userID]))
	for s := range h.byUser[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.Subscribe(s, roomID)
	}
}

// Publish delivers ev to every session subscribed to the room, including
// the sender's own. Delivery is best-effort at-most-once: with no topic or
// a saturated one, the event is simply dropped.
func (h *Hub) Publish(roomID string, ev Event) {
	encoded, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("failed to encode event for broadcast")
		return
	}

	h.mu.RLock()
	t := h.topics[roomID]
	h.mu.RUnlock()

	if t == nil {
		return
	}

	t.offer(encoded)
}

func (h *Hub) getOrCreateTopic(roomID string) *topic {
	h.mu.RLock()
	t := h.topics[roomID]
	h.mu.RUnlock()

	if t != nil {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if t = h.topics[roomID]; t != nil {
		return t
	}

	t = newTopic(roomID, h.cleanup)
	h.topics[roomID] = t

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		t.run()
	}()

	h.logger.Info().Str("room_id", roomID).Msg("topic started")

	return t
}

// Shutdown stops all topic loops, drains the cleanup loop, and closes every
// attached session.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("hub shutting down")

	h.mu.Lock()
	topics := make([]*topic, 0, len(h.topics))
	for _, t := range h.topics {
		topics = append(topics, t)
	}
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, t := range topics {
		t.stop()
	}
	h.wg.Wait()

	close(h.cleanup)
	<-h.cleanupDone

	for _, s := range sessions {
		s.close()
	}

	h.logger.Info().Msg("hub shutdown complete")
}
