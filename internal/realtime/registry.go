package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/observability"
)

const sendBufferSize = 32

// Conn is the subset of the websocket connection the registry needs.
// *websocket.Conn satisfies it; tests plug in fakes.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one live websocket connection bound to an authenticated
// identity. Writes go through a buffered channel drained by a single writer
// goroutine; a full buffer drops the event instead of blocking the sender.
type Session struct {
	conn          Conn
	send          chan Event
	userID        uint
	role          string
	correlationID string
	closed        chan struct{}
	once          sync.Once
	registry      *Registry
}

// UserID returns the authenticated identity behind the session.
func (s *Session) UserID() uint { return s.userID }

// Role returns the role the session authenticated with.
func (s *Session) Role() string { return s.role }

// Registry tracks live sessions per user and per staff member. Staff
// (moderators and admins) live in a separate keyspace from marketplace users
// because their identifiers are not user ids.
type Registry struct {
	mu         sync.RWMutex
	users      map[uint]map[*Session]struct{}
	moderators map[uint]map[*Session]struct{}
	log        zerolog.Logger
}

// NewRegistry constructs an empty session registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		users:      make(map[uint]map[*Session]struct{}),
		moderators: make(map[uint]map[*Session]struct{}),
		log:        logger.With().Str("component", "realtime_registry").Logger(),
	}
}

// NewSession wraps a connection into a session and registers it. The caller
// owns the reader loop; the writer goroutine starts here.
func (r *Registry) NewSession(conn Conn, userID uint, role, correlationID string) *Session {
	session := &Session{
		conn:          conn,
		send:          make(chan Event, sendBufferSize),
		userID:        userID,
		role:          role,
		correlationID: correlationID,
		closed:        make(chan struct{}),
		registry:      r,
	}

	r.register(session)
	go session.writer()

	return session
}

func (r *Registry) register(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.users
	if session.role == models.RoleModerator || session.role == models.RoleAdmin {
		bucket = r.moderators
	}
	if _, ok := bucket[session.userID]; !ok {
		bucket[session.userID] = make(map[*Session]struct{})
	}
	bucket[session.userID][session] = struct{}{}

	observability.RealtimeConnections().Inc()
	r.log.Debug().Uint("user_id", session.userID).Str("role", session.role).Msg("realtime session registered")
}

func (r *Registry) unregister(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.users
	if session.role == models.RoleModerator || session.role == models.RoleAdmin {
		bucket = r.moderators
	}
	if sessions, ok := bucket[session.userID]; ok {
		if _, present := sessions[session]; present {
			delete(sessions, session)
			if len(sessions) == 0 {
				delete(bucket, session.userID)
			}
			observability.RealtimeConnections().Dec()
		}
	}
	r.log.Debug().Uint("user_id", session.userID).Str("role", session.role).Msg("realtime session unregistered")
}

// PushToUser delivers an event to every session the user holds. Offline
// users are not an error; the REST surface remains the system of record.
func (r *Registry) PushToUser(userID uint, event Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for session := range r.users[userID] {
		if session.enqueue(event) {
			delivered++
		}
	}
	return delivered
}

// PushToModerator delivers an event to the sessions of one staff member.
func (r *Registry) PushToModerator(moderatorID uint, event Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for session := range r.moderators[moderatorID] {
		if session.enqueue(event) {
			delivered++
		}
	}
	return delivered
}

// BroadcastToModerators delivers an event to every connected staff session.
func (r *Registry) BroadcastToModerators(event Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, sessions := range r.moderators {
		for session := range sessions {
			if session.enqueue(event) {
				delivered++
			}
		}
	}
	return delivered
}

func (s *Session) enqueue(event Event) bool {
	select {
	case s.send <- event:
		return true
	default:
		observability.FanoutDropped().Inc()
		s.registry.log.Warn().Uint("user_id", s.userID).Str("event", event.Type).Msg("dropping event for slow client")
		return false
	}
}

func (s *Session) writer() {
	defer s.Close()

	for {
		select {
		case event, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(event); err != nil {
				s.registry.log.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				s.registry.log.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-s.closed:
			return
		}
	}
}

// Close tears the session down exactly once: unregister, stop the writer,
// close the underlying connection.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.registry.unregister(s)
		_ = s.conn.Close()
	})
}
