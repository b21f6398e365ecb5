package websocket

import (
	"context"
	"sync"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TokenVerifier resolves a bearer credential to a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (primitive.ObjectID, error)
}

type SessionOptions struct {
	HandshakeTimeout time.Duration
	SendBufferSize   int
}

type deviceKey struct {
	userID   primitive.ObjectID
	deviceID string
}

// SessionManager owns every live session: it authenticates connects, keeps
// one session per user device, and drives presence from session counts.
type SessionManager struct {
	verifier TokenVerifier
	presence *Presence
	router   *Router
	opts     SessionOptions
	logger   *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byDevice map[deviceKey]*Session
	byUser   map[primitive.ObjectID]map[string]*Session
}

func NewSessionManager(verifier TokenVerifier, presence *Presence, router *Router, opts SessionOptions, log *logger.Logger) *SessionManager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &SessionManager{
		verifier: verifier,
		presence: presence,
		router:   router,
		opts:     opts,
		logger:   log,
		sessions: make(map[string]*Session),
		byDevice: make(map[deviceKey]*Session),
		byUser:   make(map[primitive.ObjectID]map[string]*Session),
	}
}

func (m *SessionManager) verify(ctx context.Context, token string) (primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	type result struct {
		userID primitive.ObjectID
		err    error
	}
	done := make(chan result, 1)
	go func() {
		userID, err := m.verifier.VerifyToken(ctx, token)
		done <- result{userID: userID, err: err}
	}()

	select {
	case res := <-done:
		return res.userID, res.err
	case <-ctx.Done():
		return primitive.NilObjectID, ctx.Err()
	}
}

// Connect authenticates token and registers a new session for the device.
// Any verification failure, including the handshake deadline, is reported as
// AuthenticationFailed.
func (m *SessionManager) Connect(ctx context.Context, token, deviceID string) (*Session, error) {
	if token == "" {
		return nil, apperrors.New(apperrors.KindAuthenticationFailed, "missing credential")
	}

	userID, err := m.verify(ctx, token)
	if err != nil {
		m.logger.WithError(err).LogSecurityEvent("websocket_auth_failed", "low", map[string]interface{}{
			"device_id": deviceID,
		})
		return nil, apperrors.Wrap(apperrors.KindAuthenticationFailed, "authentication failed", err)
	}

	s := newSession(userID, deviceID, m.opts.SendBufferSize)
	s.onOverflow = func(s *Session) {
		m.Disconnect(s.ID, ReasonSlowConsumer)
	}

	key := deviceKey{userID: userID, deviceID: deviceID}

	m.mu.Lock()
	previous := m.byDevice[key]
	m.sessions[s.ID] = s
	m.byDevice[key] = s
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Session)
	}
	m.byUser[userID][s.ID] = s
	// presence follows the session count, so it changes under the same lock
	m.presence.MarkOnline(userID)
	m.mu.Unlock()

	s.setState(SessionConnected)

	if previous != nil {
		previous.Deliver(NewEvent(EventDisconnect, &DisconnectPayload{Reason: ReasonSuperseded}))
		m.Disconnect(previous.ID, ReasonSuperseded)
	}

	connected := NewEvent(EventConnect, &ConnectPayload{SessionID: s.ID, UserID: userID.Hex()})
	connected.UserID = userID.Hex()
	s.Deliver(connected)

	m.logger.LogSessionEvent(s.ID, userID, "connected", map[string]interface{}{
		"device_id": deviceID,
	})
	return s, nil
}

// Disconnect tears the session down. It is idempotent.
func (m *SessionManager) Disconnect(sessionID, reason string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, sessionID)

	key := deviceKey{userID: s.UserID, deviceID: s.DeviceID}
	if m.byDevice[key] == s {
		delete(m.byDevice, key)
	}

	wentOffline := false
	if userSessions := m.byUser[s.UserID]; userSessions != nil {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(m.byUser, s.UserID)
			wentOffline = m.presence.MarkOffline(s.UserID)
		}
	}
	m.mu.Unlock()

	s.setState(SessionDisconnected)
	left := m.router.LeaveAll(s)

	if wentOffline {
		for _, tripID := range left {
			ev := NewTripEvent(EventUserOffline, tripID, &PresencePayload{UserID: s.UserID.Hex()})
			ev.UserID = s.UserID.Hex()
			m.router.Broadcast(tripID, ev, "")
		}
	}

	s.close()

	m.logger.LogSessionEvent(s.ID, s.UserID, "disconnected", map[string]interface{}{
		"reason": reason,
		"rooms":  len(left),
	})
}

func (m *SessionManager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *SessionManager) SessionsOf(userID primitive.ObjectID) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.byUser[userID]))
	for _, s := range m.byUser[userID] {
		sessions = append(sessions, s)
	}
	return sessions
}

// NotifyUser delivers ev to every live session of userID.
func (m *SessionManager) NotifyUser(userID primitive.ObjectID, ev *Event) int {
	delivered := 0
	for _, s := range m.SessionsOf(userID) {
		if s.Deliver(ev) {
			delivered++
		}
	}
	return delivered
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) Presence() *Presence {
	return m.presence
}

// Shutdown disconnects every session.
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if s, ok := m.Get(id); ok {
			s.Deliver(NewEvent(EventDisconnect, &DisconnectPayload{Reason: ReasonShutdown}))
		}
		m.Disconnect(id, ReasonShutdown)
	}
}
