package chat

import (
	"time"

	"github.com/rs/zerolog"

	"parley/internal/pkg/logx"
)

const (
	// broadcastBuffer sizes a topic's inbound broadcast queue.
	broadcastBuffer = 1024

	// topicIdleTimeout is how long a topic with no subscribed sessions
	// stays alive before shutting down. The room record itself persists;
	// only the fan-out machinery is released.
	topicIdleTimeout = time.Minute
)

// topic is the fan-out channel for one room. It owns the set of subscribed
// sessions and delivers every published event to all of them, the sender's
// own session included.
type topic struct {
	roomID string

	sessions map[*Session]struct{}

	subscribe   chan *Session
	unsubscribe chan *Session
	broadcast   chan []byte

	// stopChan forces the run loop to exit; stopped is closed once it has.
	stopChan chan struct{}
	stopped  chan struct{}

	// cleanup notifies the hub that this topic's run loop has finished.
	cleanup chan<- *topic

	idleTimer *time.Timer

	logger zerolog.Logger
}

func newTopic(roomID string, cleanup chan<- *topic) *topic {
	return &topic{
		roomID:      roomID,
		sessions:    make(map[*Session]struct{}),
		subscribe:   make(chan *Session),
		unsubscribe: make(chan *Session),
		broadcast:   make(chan []byte, broadcastBuffer),
		stopChan:    make(chan struct{}),
		stopped:     make(chan struct{}),
		cleanup:     cleanup,
		idleTimer:   time.NewTimer(topicIdleTimeout),
		logger:      logx.Logger().With().Str("component", "topic").Str("room_id", roomID).Logger(),
	}
}

// stop forces the run loop to exit. Safe to call more than once.
func (t *topic) stop() {
	select {
	case <-t.stopChan:
	default:
		close(t.stopChan)
	}
}

// run is the topic's event loop. It exits when stopped or after sitting
// empty for topicIdleTimeout, then notifies the hub for cleanup.
func (t *topic) run() {
	defer func() {
		close(t.stopped)

		t.idleTimer.Stop()

		for s := range t.sessions {
			s.removeTopic(t)
		}

		// The hub closes the cleanup channel only after waiting for all
		// topic loops, but guard against shutdown ordering bugs anyway.
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Warn().Msg("cleanup channel closed before topic exit notification")
				}
			}()

			select {
			case t.cleanup <- t:
			default:
				t.logger.Warn().Msg("hub cleanup channel full, skipping notification")
			}
		}()

		t.logger.Info().Msg("topic stopped")
	}()

	for {
		select {
		case s := <-t.subscribe:
			if t.idleTimer.Stop() {
				select {
				case <-t.idleTimer.C:
				default:
				}
			}

			t.sessions[s] = struct{}{}
			s.addTopic(t)

			t.logger.Info().
				Str("user_id", s.UserID()).
				Int("subscribers", len(t.sessions)).
				Msg("session subscribed")

		case s := <-t.unsubscribe:
			if _, ok := t.sessions[s]; !ok {
				continue
			}

			delete(t.sessions, s)
			s.removeTopic(t)

			t.logger.Info().
				Str("user_id", s.UserID()).
				Int("subscribers", len(t.sessions)).
				Msg("session unsubscribed")

			if len(t.sessions) == 0 {
				t.idleTimer.Reset(topicIdleTimeout)
			}

		case message := <-t.broadcast:
			// Best-effort at-most-once: a session with a full queue just
			// misses this event.
			for s := range t.sessions {
				s.enqueue(message)
			}

		case <-t.idleTimer.C:
			if len(t.sessions) == 0 {
				t.logger.Info().Msg("topic idle timeout reached, shutting down")
				return
			}

		case <-t.stopChan:
			return
		}
	}
}

// offer hands an encoded event to the run loop without blocking the
// publisher. Events for a stopped or saturated topic are dropped.
func (t *topic) offer(message []byte) {
	select {
	case t.broadcast <- message:
	case <-t.stopped:
	default:
		t.logger.Warn().Msg("topic broadcast queue full, dropping event")
	}
}
