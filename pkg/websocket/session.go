package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionState string

const (
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
)

// Session is one authenticated live connection. The SessionManager owns it;
// the Router only references it.
type Session struct {
	ID          string
	UserID      primitive.ObjectID
	DeviceID    string
	ConnectedAt time.Time

	mu         sync.Mutex
	state      SessionState
	rooms      map[primitive.ObjectID]struct{}
	send       chan *Event
	closed     bool
	onOverflow func(*Session)
}

func newSession(userID primitive.ObjectID, deviceID string, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		DeviceID:    deviceID,
		ConnectedAt: time.Now(),
		state:       SessionConnecting,
		rooms:       make(map[primitive.ObjectID]struct{}),
		send:        make(chan *Event, bufferSize),
	}
}

// NewSession builds a detached session, mainly for tests of Router users.
// It has no overflow hook: once its buffer is full Deliver returns false and
// the event is dropped, the session stays connected. Size the buffer for the
// events a test expects, or drain it.
func NewSession(userID primitive.ObjectID, deviceID string, bufferSize int) *Session {
	s := newSession(userID, deviceID, bufferSize)
	s.state = SessionConnected
	return s
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Deliver queues ev without blocking. A full queue means the peer is not
// reading; the session is then torn down through onOverflow.
func (s *Session) Deliver(ev *Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	select {
	case s.send <- ev:
		s.mu.Unlock()
		return true
	default:
	}

	overflow := s.onOverflow
	s.mu.Unlock()
	if overflow != nil {
		go overflow(s)
	}
	return false
}

// Outbound is drained by the connection writer. It is closed on disconnect.
func (s *Session) Outbound() <-chan *Event {
	return s.send
}

func (s *Session) Rooms() []primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]primitive.ObjectID, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	sortIDs(rooms)
	return rooms
}

func (s *Session) InRoom(tripID primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[tripID]
	return ok
}

func (s *Session) addRoom(tripID primitive.ObjectID) {
	s.mu.Lock()
	s.rooms[tripID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeRoom(tripID primitive.ObjectID) {
	s.mu.Lock()
	delete(s.rooms, tripID)
	s.mu.Unlock()
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.state = SessionDisconnected
	close(s.send)
}
